package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/specfleet/specfleet/pkg/engine"
	"github.com/specfleet/specfleet/pkg/plan"
	"github.com/specfleet/specfleet/pkg/stores"
)

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <plan-file>",
		Short: "Execute one plan and wait for its outcome",
		Long: `Execute a single plan record synchronously. The record is validated,
its unit specifiers are resolved against the site inventory and the
execution runs to termination. The record file is archived into the
completed or failed area like any other run.`,
		Example: `  # Execute a plan
  specfleet run ./targets/ngc253.toml

  # Machine-readable outcome
  specfleet run ./targets/ngc253.toml --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := loadConfig()
			if err != nil {
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

			eng := engine.New(cfg, store, componentLogger("engine")).WithHistory(history)

			rec, err := store.Load(args[0])
			if err != nil {
				return err
			}
			fleet, err := eng.ResolveFleet(rec)
			if err != nil {
				return err
			}

			log.Info().
				Str("plan_id", rec.Task.ID).
				Int("units", len(fleet.Units)).
				Msg("Executing plan")

			out, err := eng.ExecuteRecord(ctx, rec, fleet)
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				if err := enc.Encode(out); err != nil {
					return err
				}
			} else {
				fmt.Printf("plan %s: %s\n", rec.Task.ID, out.Reason)
				for _, detail := range out.Details {
					fmt.Printf("  %s\n", detail)
				}
			}

			if out.Reason != stores.ReasonCompleted {
				return fmt.Errorf("plan %s: %s", out.Reason, strings.Join(out.Details, "; "))
			}
			return nil
		},
	}
	return cmd
}
