package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"mercator-hq/meter/pkg/cli"
	"mercator-hq/meter/pkg/engine"
	"mercator-hq/meter/pkg/server"
	"mercator-hq/meter/pkg/telemetry"
)

var serveFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the metering API server",
	Long: `Start the metering API server with the specified configuration.

The server records costs, enforces budgets and fires alerts until it receives
SIGINT or SIGTERM, then drains in-flight requests and pending notifications.

Examples:
  # Start with built-in defaults (SQLite under ./data)
  meter serve

  # Start with a config file
  meter serve --config /etc/meter/meter.yaml

  # Override listen address
  meter serve --listen 0.0.0.0:8090

  # Validate config without starting
  meter serve --dry-run`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveFlags.listenAddress, "listen", "l", "", "override listen address")
	serveCmd.Flags().StringVar(&serveFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	serveCmd.Flags().BoolVar(&serveFlags.dryRun, "dry-run", false, "validate config without starting server")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveFlags.listenAddress != "" {
		cfg.Server.ListenAddress = serveFlags.listenAddress
	}
	if serveFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = serveFlags.logLevel
	}

	if serveFlags.dryRun {
		fmt.Fprintln(cmd.OutOrStdout(), "✓ Configuration valid")
		return nil
	}

	tel, err := telemetry.New(&cfg.Telemetry, Version)
	if err != nil {
		return cli.NewConfigError("telemetry", err.Error())
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			slog.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	ctx, stop := cli.SetupSignalHandler(cmd.Context())
	defer stop()

	eng, err := engine.NewFromConfig(ctx, cfg, tel)
	if err != nil {
		return cli.NewCommandError("serve", err)
	}
	if err := eng.Start(ctx); err != nil {
		_ = eng.Close()
		return cli.NewCommandError("serve", err)
	}

	srv := server.New(server.Options{
		Config:      &cfg.Server,
		Engine:      eng,
		Health:      tel.Health,
		Metrics:     tel.Metrics,
		MetricsPath: cfg.Telemetry.Metrics.Path,
		Version: server.VersionInfo{
			Version:   Version,
			Commit:    GitCommit,
			BuildTime: BuildDate,
		},
		Logger: tel.Logger,
	})

	tel.Logger.Info("meter starting",
		"version", Version,
		"listen_address", cfg.Server.ListenAddress,
		"ledger_backend", cfg.Storage.Backend,
	)

	serveErr := srv.Start(ctx)
	closeErr := eng.Close()
	if err := errors.Join(serveErr, closeErr); err != nil {
		return cli.NewCommandError("serve", err)
	}
	tel.Logger.Info("meter stopped")
	return nil
}
