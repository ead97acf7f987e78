package commands

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/specfleet/specfleet/pkg/config"
	"github.com/specfleet/specfleet/pkg/engine"
	"github.com/specfleet/specfleet/pkg/plan"
	"github.com/specfleet/specfleet/pkg/policy"
	"github.com/specfleet/specfleet/pkg/telemetry"
)

func newWatchCommand() *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run the orchestration service",
		Long: `Run the orchestration service: watch the pending area for new plan
records and execute each one against the fleet. Records dropped into
the pending directory are picked up once they settle; outcomes are
archived into the completed and failed areas and into the history
database.`,
		Example: `  # Run with the default config
  specfleet watch

  # Run with an explicit config and metrics address
  specfleet watch -c ./config.yaml --metrics-addr :9191`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			configWatcher, err := config.NewWatcher(resolveConfigPath(), componentLogger("config"))
			if err != nil {
				return err
			}
			cfg := configWatcher.Current()
			if err := configWatcher.Watch(ctx, func(*config.Config) {
				log.Warn().Msg("Config changed on disk, restart to apply")
			}); err != nil {
				return err
			}

			store, err := plan.NewStore(cfg.Service.DataDir, componentLogger("plans"))
			if err != nil {
				return err
			}

			history, err := openHistory(ctx, cfg)
			if err != nil {
				return err
			}
			defer history.Close()

			tcfg := telemetry.DefaultConfig()
			tcfg.ServiceName = cfg.Service.Name
			if metricsAddr != "" {
				tcfg.Metrics.ListenAddress = metricsAddr
			}

			metrics, err := telemetry.NewMetrics(tcfg.Metrics)
			if err != nil {
				return err
			}
			if tcfg.Metrics.Enabled {
				if err := metrics.StartMetricsServer(); err != nil {
					return err
				}
			}

			tracer, err := telemetry.NewTracer(tcfg.Tracing, tcfg.ServiceName, tcfg.ServiceVersion, tcfg.Environment)
			if err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
				defer cancel()
				_ = tracer.Shutdown(shutdownCtx)
			}()

			publisher := telemetry.NewPublisher(tcfg.Events)
			publisher.Subscribe(func(n telemetry.Notification) {
				log.Info().
					Str("type", n.Type).
					Str("component", n.Component).
					Str("message", n.Message).
					Strs("details", n.Details).
					Msg("Notification")
			}, nil)

			gate, err := policy.NewGate(componentLogger("policy"))
			if err != nil {
				return err
			}
			if cfg.Service.PolicyDir != "" {
				loader := policy.NewLoader(componentLogger("policy"))
				policies, err := loader.LoadDir(cfg.Service.PolicyDir)
				if err != nil {
					return err
				}
				if err := gate.AddPolicies(policies); err != nil {
					return err
				}
				if err := loader.Watch(ctx, cfg.Service.PolicyDir, gate); err != nil {
					return err
				}
			}

			eng := engine.New(cfg, store, componentLogger("engine")).
				WithGate(gate).
				WithHistory(history).
				WithMetrics(metrics).
				WithPublisher(publisher).
				WithTracer(tracer)
			if cfg.Service.ConditionsFile != "" {
				eng.WithConditions(policy.NewFileConditions(
					cfg.Service.ConditionsFile, cfg.Service.ConditionsMaxAge))
			}

			watcher := plan.NewWatcher(store, componentLogger("plans"))
			if err := watcher.Watch(ctx, func(path string) {
				id, err := eng.Submit(ctx, path)
				if err != nil {
					log.Error().Err(err).Str("path", path).Msg("Plan submission failed")
					return
				}
				log.Info().Str("plan_id", id).Str("path", path).Msg("Plan submitted")
			}); err != nil {
				return err
			}

			<-ctx.Done()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
			defer cancel()
			return publisher.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "metrics listen address (default :9090)")
	return cmd
}
