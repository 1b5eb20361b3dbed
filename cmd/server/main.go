// Package main runs the compensation service:
// - Daily cycle (scheduled): matching → career catch-up → archive export → report
// - HTTP: /healthz, /metrics, /status
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"binary-comp-engine/internal/app"
	"binary-comp-engine/internal/config"
	"binary-comp-engine/internal/logger"
	"binary-comp-engine/internal/observability"
)

const shutdownTimeout = 30 * time.Second

// Server holds the scheduler state of the service.
type Server struct {
	app *app.App
	log zerolog.Logger

	interval time.Duration
	started  time.Time

	// State
	mu         sync.Mutex
	running    bool
	lastRun    time.Time
	lastCycle  string
	lastErrors int
	runs       int
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Logger is not configured yet.
		boot := logger.Init("binary-server", false, false)
		boot.Fatal().Err(err).Msg("load config")
	}
	log := logger.Init("binary-server", cfg.Debug, cfg.LogJSON)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("build components")
	}
	defer a.Close()

	server := &Server{
		app:      a,
		log:      log,
		interval: cfg.Cycle.Interval,
		started:  time.Now(),
	}

	// Channel to signal completion
	done := make(chan struct{})

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("shutting down")
		cancel()

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			log.Warn().Str("signal", sig.String()).Msg("second signal, forcing exit")
			os.Exit(1)
		case <-time.After(shutdownTimeout):
			log.Error().Dur("timeout", shutdownTimeout).Msg("graceful shutdown timed out, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	httpServer := server.startHTTPServer(cfg.MetricsAddr)

	err = server.runScheduler(ctx)
	close(done)

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	_ = httpServer.Shutdown(shutdownCtx)

	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("server error")
		return
	}
	log.Info().Msg("shutdown complete")
}

// runScheduler runs the daily cycle immediately and then on every tick.
func (s *Server) runScheduler(ctx context.Context) error {
	s.log.Info().Dur("interval", s.interval).Msg("starting cycle scheduler")

	s.runCycle(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

// runCycle executes one daily cycle unless one is already running.
func (s *Server) runCycle(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.log.Warn().Msg("cycle already running, skipping")
		return
	}
	s.running = true
	s.mu.Unlock()

	var (
		cycleID string
		errs    int
	)
	defer func() {
		s.mu.Lock()
		s.running = false
		s.lastRun = time.Now()
		s.lastCycle = cycleID
		s.lastErrors = errs
		s.runs++
		s.mu.Unlock()
	}()

	start := time.Now()
	result, err := s.app.Orchestrator.RunDailyCycle(ctx)
	if err != nil {
		errs = 1
		s.log.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("daily cycle failed")
		return
	}
	cycleID = result.CycleID
	errs = len(result.Errors)
	for _, e := range result.Errors {
		s.log.Warn().Str("cycle", cycleID).Str("error", e).Msg("cycle error")
	}
	s.log.Info().
		Str("cycle", cycleID).
		Int("paid", result.Batch.Paid).
		Str("total_bonus", result.Batch.TotalBonus.String()).
		Strs("reports", result.ReportFiles).
		Dur("elapsed", time.Since(start)).
		Msg("daily cycle finished")
}

// startHTTPServer starts the HTTP server for health/metrics/status.
func (s *Server) startHTTPServer(addr string) *http.Server {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// Prometheus metrics
	mux.Handle("/metrics", observability.Handler())

	// Status endpoint
	mux.HandleFunc("/status", s.handleStatus)

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		s.log.Info().Str("addr", addr).Msg("starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("HTTP server error")
		}
	}()
	return srv
}

// StatusResponse is the JSON response for /status endpoint.
type StatusResponse struct {
	Status     string    `json:"status"`
	Uptime     string    `json:"uptime"`
	Storage    string    `json:"storage"`
	LastRun    time.Time `json:"last_run,omitempty"`
	LastCycle  string    `json:"last_cycle,omitempty"`
	LastErrors int       `json:"last_errors"`
	Runs       int       `json:"runs"`
	Running    bool      `json:"running"`
}

// handleStatus returns server status as JSON.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	resp := StatusResponse{
		Status:     "running",
		Uptime:     time.Since(s.started).Round(time.Second).String(),
		Storage:    s.app.Config.Storage,
		LastRun:    s.lastRun,
		LastCycle:  s.lastCycle,
		LastErrors: s.lastErrors,
		Runs:       s.runs,
		Running:    s.running,
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
