package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/specfleet/specfleet/pkg/stores"
)

func newHistoryCommand() *cobra.Command {
	var (
		reason string
		limit  int
		offset int
	)

	cmd := &cobra.Command{
		Use:   "history [plan-id]",
		Short: "Query archived plan executions",
		Long: `List archived plan executions, newest first, or show one execution
with its full event trail when a plan id is given.`,
		Example: `  # The last 20 executions
  specfleet history

  # Failed executions only
  specfleet history --reason failed

  # One execution in detail
  specfleet history 0198c2f4-5e7a-7c3b-9d21-8f4a6b1c0d2e`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			history, err := openHistory(ctx, cfg)
			if err != nil {
				return err
			}
			defer history.Close()

			if len(args) == 1 {
				exec, err := history.GetExecution(ctx, args[0])
				if err != nil {
					return err
				}
				if jsonOutput {
					enc := json.NewEncoder(os.Stdout)
					enc.SetIndent("", "  ")
					return enc.Encode(exec)
				}
				printExecution(exec)
				return nil
			}

			execs, err := history.ListExecutions(ctx, stores.TerminationReason(reason), limit, offset)
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(execs)
			}
			for _, exec := range execs {
				fmt.Printf("%s  %-9s  %s  %s\n",
					exec.TerminatedAt.Format("2006-01-02 15:04:05"),
					exec.Reason,
					exec.PlanID,
					strings.Join(exec.Details, "; "))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&reason, "reason", "r", "", "filter by outcome (completed, failed, rejected)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum executions to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "skip this many executions")
	return cmd
}

func printExecution(exec *stores.Execution) {
	fmt.Printf("plan:       %s\n", exec.PlanID)
	if exec.Owner != "" {
		fmt.Printf("owner:      %s\n", exec.Owner)
	}
	if exec.Instrument != "" {
		fmt.Printf("instrument: %s\n", exec.Instrument)
	}
	fmt.Printf("quorum:     %d (committed: %d)\n", exec.Quorum, exec.Committed)
	fmt.Printf("outcome:    %s\n", exec.Reason)
	for _, detail := range exec.Details {
		fmt.Printf("  %s\n", detail)
	}
	fmt.Printf("duration:   %s\n", exec.Duration())
	if len(exec.Events) > 0 {
		fmt.Println("events:")
		for _, ev := range exec.Events {
			line := fmt.Sprintf("  %s  %s", ev.At.Format("15:04:05"), ev.What)
			if len(ev.Details) > 0 {
				line += "  " + strings.Join(ev.Details, "; ")
			}
			fmt.Println(line)
		}
	}
}
