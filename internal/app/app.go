// Package app wires stores and engines from configuration.
// Both binaries build their components through it.
package app

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"binary-comp-engine/internal/career"
	"binary-comp-engine/internal/config"
	"binary-comp-engine/internal/events"
	"binary-comp-engine/internal/investment"
	"binary-comp-engine/internal/ledger"
	"binary-comp-engine/internal/matching"
	"binary-comp-engine/internal/orchestrator"
	"binary-comp-engine/internal/placement"
	"binary-comp-engine/internal/storage"
	chstore "binary-comp-engine/internal/storage/clickhouse"
	"binary-comp-engine/internal/storage/memory"
	pgstore "binary-comp-engine/internal/storage/postgres"
	redisstore "binary-comp-engine/internal/storage/redis"
)

// StreamMaxLen bounds the Redis event stream.
const StreamMaxLen = 100000

// App holds the wired components of one process.
type App struct {
	Config *config.Config

	Store   storage.Store
	Archive storage.LedgerArchiveStore // nil without ClickHouse
	Guard   storage.PaymentRefGuard
	Events  events.Publisher

	Ledger       *ledger.Ledger
	Placement    *placement.Engine
	Matching     *matching.Engine
	Career       *career.Engine
	Investment   *investment.Service
	Orchestrator *orchestrator.Orchestrator

	// Backend handles, nil when not configured.
	Pool       *pgstore.Pool
	Clickhouse *chstore.Conn
	Redis      *goredis.Client

	log     zerolog.Logger
	closers []func()
}

// New connects the configured backends and builds every engine.
// Call Close when done.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	a := &App{Config: cfg, log: log}
	if err := a.connect(ctx); err != nil {
		a.Close()
		return nil, err
	}
	a.build()
	return a, nil
}

// connect opens the store and the optional archive, guard and stream.
func (a *App) connect(ctx context.Context) error {
	cfg := a.Config

	switch cfg.Storage {
	case config.StoragePostgres:
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return err
		}
		a.Pool = pool
		a.closers = append(a.closers, pool.Close)
		a.Store = pgstore.NewStore(pool)
		a.log.Info().Msg("using postgres storage")
	default:
		a.Store = memory.NewStore()
		a.log.Warn().Msg("using in-memory storage, state is lost on exit")
	}

	if cfg.ClickhouseDSN != "" {
		conn, err := chstore.NewConn(ctx, cfg.ClickhouseDSN)
		if err != nil {
			return fmt.Errorf("connect to clickhouse: %w", err)
		}
		a.Clickhouse = conn
		a.closers = append(a.closers, func() { _ = conn.Close() })
		a.Archive = chstore.NewLedgerArchiveStore(conn)
		a.log.Info().Msg("ledger archive: clickhouse")
	} else if cfg.Storage == config.StorageMemory {
		a.Archive = memory.NewLedgerArchiveStore()
	}

	if cfg.Redis.Addr != "" {
		client, err := redisstore.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		a.Redis = client
		a.closers = append(a.closers, func() { _ = client.Close() })
		a.Guard = redisstore.NewPaymentRefGuard(client, cfg.Redis.PaymentRefTTL)
		a.Events = redisstore.NewStreamPublisher(client, cfg.Redis.Stream, StreamMaxLen)
		a.log.Info().Str("stream", cfg.Redis.Stream).Msg("redis guard and event stream enabled")
	} else {
		a.Guard = memory.NewPaymentRefGuard()
		a.Events = events.Noop{}
	}
	return nil
}

func (a *App) build() {
	cfg := a.Config

	a.Ledger = ledger.New(a.Store, ledger.Options{
		Currency: cfg.Currency,
		Logger:   a.log,
	})
	a.Placement = placement.New(a.Store, placement.Options{
		MaxDepth: cfg.Placement.MaxDepth,
		Logger:   a.log,
	})
	a.Career = career.New(a.Store, a.Ledger, career.Options{
		Events: a.Events,
		Logger: a.log,
	})
	rootTerms := &matching.PackageTerms{
		BinaryPct: cfg.Cycle.DefaultBinaryPct,
		CapAmount: cfg.Cycle.DefaultCap,
	}
	a.Matching = matching.New(a.Store, a.Ledger, matching.Options{
		Workers:   cfg.Cycle.Workers,
		Career:    a.Career,
		Events:    a.Events,
		RootTerms: rootTerms,
		Logger:    a.log,
	})
	a.Investment = investment.New(a.Store, a.Ledger, a.Placement, a.Matching, investment.Options{
		Guard:  a.Guard,
		Events: a.Events,
		Logger: a.log,
	})
	a.Orchestrator = orchestrator.New(orchestrator.Options{
		Store:     a.Store,
		Matching:  a.Matching,
		Career:    a.Career,
		Archive:   a.Archive,
		OutputDir: cfg.OutputDir,
		Logger:    a.log,
	})
}

// Close releases backend connections in reverse order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
