package commands

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/specfleet/specfleet/pkg/engine"
	"github.com/specfleet/specfleet/pkg/plan"
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <plan-file>",
		Short: "Validate a plan record without executing it",
		Long: `Check a plan record against the schema and resolve its unit
specifiers against the site inventory. Nothing is dispatched and the
record file is left untouched.`,
		Example: `  specfleet validate ./targets/ngc253.toml`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			var rec plan.Record
			if err := toml.Unmarshal(data, &rec); err != nil {
				return fmt.Errorf("invalid plan file: %w", err)
			}
			rec.ApplyDefaults()
			if rec.Task.ID == "" {
				rec.Task.ID = plan.NewID()
			}
			if err := plan.ValidateRecord(&rec); err != nil {
				return err
			}

			store, err := plan.NewStore(cfg.Service.DataDir, componentLogger("plans"))
			if err != nil {
				return err
			}
			eng := engine.New(cfg, store, componentLogger("engine"))

			fleet, err := eng.ResolveFleet(&rec)
			if err != nil {
				return err
			}

			fmt.Printf("plan is valid\n")
			fmt.Printf("  instrument: %s\n", fleet.SpecAssignment.Instrument)
			fmt.Printf("  quorum:     %d\n", rec.Task.Quorum)
			fmt.Printf("  units:\n")
			for _, unit := range fleet.Units {
				fmt.Printf("    %s (ra=%v dec=%v)\n",
					unit.Ref, unit.Assignment.Target.RA, unit.Assignment.Target.Dec)
			}
			return nil
		},
	}
	return cmd
}
