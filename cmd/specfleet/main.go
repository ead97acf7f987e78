package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/specfleet/specfleet/cmd/specfleet/commands"
	"github.com/specfleet/specfleet/pkg/telemetry"
)

// Version information (set via ldflags during build)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	logger, err := setupLogging()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging setup failed: %v\n", err)
		os.Exit(1)
	}
	log.Logger = logger.Zerolog()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info().Msg("Received interrupt signal, shutting down...")
		cancel()
	}()

	if err := commands.Execute(ctx, logger, Version, Commit, BuildDate); err != nil {
		log.Error().Err(err).Msg("Command execution failed")
		os.Exit(1)
	}
}

// setupLogging builds the root logger. LOG_LEVEL overrides the default
// level before flags are parsed.
func setupLogging() (*telemetry.Logger, error) {
	cfg := telemetry.DefaultConfig().Logging
	cfg.Output = "stderr"
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Level = level
	}
	return telemetry.NewLogger(cfg)
}
