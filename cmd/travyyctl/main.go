package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/travyy/tour-booking-backend/internal/config"
	"github.com/travyy/tour-booking-backend/internal/database"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "travyyctl",
		Short:         "Maintenance tool for the Travyy booking backend",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(secretsCmd())
	rootCmd.AddCommand(devTokenCmd())
	rootCmd.AddCommand(seedDepartureCmd())
	rootCmd.AddCommand(auditCmd())
	rootCmd.AddCommand(mismatchesCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// cliLogger writes text logs to stderr so stdout stays parseable
func cliLogger(verbose bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger.SetLevel(logrus.WarnLevel)
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	return logger
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// openPostgres connects without running migrations
func openPostgres() (*database.PostgresDB, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.Storage.Driver != "postgres" {
		return nil, fmt.Errorf("this command needs STORAGE_DRIVER=postgres (got %q)", cfg.Storage.Driver)
	}
	return database.NewConnection(cfg.Database)
}
