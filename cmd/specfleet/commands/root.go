package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/specfleet/specfleet/pkg/config"
	"github.com/specfleet/specfleet/pkg/stores"
	"github.com/specfleet/specfleet/pkg/telemetry"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool

	// rootLogger is the process logger handed in by main; components
	// receive tagged children of it.
	rootLogger *telemetry.Logger
)

// telemetryShutdownTimeout bounds the notification drain on exit.
const telemetryShutdownTimeout = 5 * time.Second

// Execute runs the root command.
func Execute(ctx context.Context, logger *telemetry.Logger, version, commit, buildDate string) error {
	rootLogger = logger
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "specfleet",
		Short: "specfleet - telescope fleet orchestration",
		Long: `specfleet coordinates a fleet of telescope units and a shared
spectrograph to execute observation plans.

A plan names the units, their targets and the spectrograph setup. The
engine probes the fleet, dispatches assignments, waits for the units to
reach guiding, starts the exposure and archives the outcome.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose && rootLogger != nil {
				rootLogger = rootLogger.Level("debug")
				log.Logger = rootLogger.Zerolog()
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newWatchCommand())
	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newAbortCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newValidateCommand())

	return rootCmd
}

// componentLogger returns a child logger tagged with the component name.
func componentLogger(component string) zerolog.Logger {
	if rootLogger == nil {
		return log.Logger
	}
	return rootLogger.NewComponentLogger(component).Zerolog()
}

// resolveConfigPath picks the configuration location: --config, the
// environment or the default, in that order.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	if path := os.Getenv("SPECFLEET_CONFIG"); path != "" {
		return path
	}
	return "/etc/specfleet/config.yaml"
}

// loadConfig reads and validates the configuration.
func loadConfig() (*config.Config, error) {
	return config.Load(resolveConfigPath())
}

// historyPath returns the history database location under the data dir.
func historyPath(cfg *config.Config) string {
	return filepath.Join(cfg.Service.DataDir, "history.db")
}

// openHistory opens the execution history archive ready for use.
func openHistory(ctx context.Context, cfg *config.Config) (*stores.HistoryStore, error) {
	history, err := stores.NewHistoryStore(stores.Config{Path: historyPath(cfg)})
	if err != nil {
		return nil, err
	}
	if err := history.Init(ctx); err != nil {
		return nil, err
	}
	if err := history.Migrate(ctx); err != nil {
		_ = history.Close()
		return nil, err
	}
	return history, nil
}
