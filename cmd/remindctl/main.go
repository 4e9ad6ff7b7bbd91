package main

import (
	"fmt"
	"os"

	"clinicnotify/internal/app"
	"clinicnotify/internal/config"
	"clinicnotify/internal/database"
	"clinicnotify/internal/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:   "remindctl",
	Short: "Operate the appointment reminder pipeline",
	Long: `remindctl runs reminder scans and notification drains against the
database directly, generates VAPID keys, and watches a user's pending
notifications from a terminal.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before the environment")
	rootCmd.AddCommand(scanCmd, drainCmd, vapidKeysCmd, tokenCmd, watchCmd)
}

// loadConfig reads configuration and builds the logger.
func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, nil, err
	}
	zl, err := logger.New(cfg.IsProduction(), cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	return cfg, zl, nil
}

// openPipeline connects to the database and wires the pipeline.
func openPipeline() (*app.App, error) {
	cfg, zl, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	opts := database.DefaultOptions()
	opts.MaxRetries = 1
	db, err := database.Open(cfg.DSN(), zl, opts)
	if err != nil {
		return nil, err
	}
	return app.New(cfg, db, zl)
}

func main() {
	Execute()
}
