package main

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"binary-comp-engine/internal/app"
	"binary-comp-engine/internal/config"
	"binary-comp-engine/internal/logger"
)

// RootFlags are shared by every command.
type RootFlags struct {
	JSONLogs bool
	Debug    bool
}

// NewCmdRoot builds the command tree.
func NewCmdRoot() *cobra.Command {
	rf := &RootFlags{}
	cmd := &cobra.Command{
		Use:           "binaryctl",
		Short:         "Operate the binary compensation engine",
		Long:          "Operator commands for the binary compensation engine. Configuration is read from the environment and an optional .env file.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().BoolVar(&rf.JSONLogs, "json-logs", false, "Write logs as JSON")
	cmd.PersistentFlags().BoolVar(&rf.Debug, "debug", false, "Enable debug logging")

	cmd.AddCommand(
		NewCmdMigrate(rf),
		NewCmdCycle(rf),
		NewCmdReconcile(rf),
		NewCmdVerify(rf),
		NewCmdReport(rf),
		NewCmdSeedLevels(rf),
		NewCmdParticipant(rf),
	)
	return cmd
}

// setup loads the configuration and initializes the logger.
func (rf *RootFlags) setup() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	log := logger.Init("binaryctl", rf.Debug || cfg.Debug, rf.JSONLogs || cfg.LogJSON)
	return cfg, log, nil
}

// withApp runs fn with fully wired components.
func (rf *RootFlags) withApp(ctx context.Context, fn func(a *app.App, log zerolog.Logger) error) error {
	cfg, log, err := rf.setup()
	if err != nil {
		return err
	}
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a, log)
}
