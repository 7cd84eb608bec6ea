package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/meter/pkg/cli"
	"mercator-hq/meter/pkg/config"
	"mercator-hq/meter/pkg/engine"
	"mercator-hq/meter/pkg/pricing"
	"mercator-hq/meter/pkg/telemetry"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "meter",
	Short: "Meter - cost metering and budget enforcement for agent workloads",
	Long: `Meter records the cost of every operation an agent performs, enforces
budgets with automatic actions, and reports where the money goes.

Configuration is read from --config when given and then overridden by
METER_* environment variables. Without a file the built-in defaults apply.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return cli.ExitCode(err)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default: built-in defaults)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// loadConfig reads configuration and applies the global flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return nil, cli.NewConfigError(cfgFile, err.Error())
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}
	return cfg, nil
}

// session bundles what the storage-backed commands need.
type session struct {
	cfg *config.Config
	tel *telemetry.Telemetry
	eng *engine.Engine
}

// openSession loads configuration and opens the engine on the configured
// storage. Close must be called when done.
func openSession(ctx context.Context) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	tel, err := telemetry.New(&cfg.Telemetry, Version)
	if err != nil {
		return nil, cli.NewConfigError("telemetry", err.Error())
	}
	eng, err := engine.NewFromConfig(ctx, cfg, tel)
	if err != nil {
		_ = tel.Shutdown(ctx)
		return nil, err
	}
	return &session{cfg: cfg, tel: tel, eng: eng}, nil
}

func (r *session) Close() error {
	err := r.eng.Close()
	if terr := r.tel.Shutdown(context.Background()); err == nil {
		err = terr
	}
	return err
}

// loadCalculator builds a calculator from the configured pricing table
// without opening any storage.
func loadCalculator(cfg *config.Config) (*pricing.Calculator, error) {
	if cfg.Pricing.File == "" {
		return pricing.NewCalculator(pricing.DefaultTable()), nil
	}
	table, err := pricing.LoadTable(cfg.Pricing.File)
	if err != nil {
		return nil, cli.NewConfigError("pricing.file", err.Error())
	}
	return pricing.NewCalculator(table), nil
}

// printResult writes data in the requested output format.
func printResult(cmd *cobra.Command, format string, data any) error {
	f, err := cli.ParseOutputFormat(format)
	if err != nil {
		return err
	}
	return cli.NewFormatter(f).FormatTo(cmd.OutOrStdout(), data)
}
