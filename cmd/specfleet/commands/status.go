package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/specfleet/specfleet/pkg/remote"
)

// peerStatus is one row of the fleet status report.
type peerStatus struct {
	Peer              string   `json:"peer"`
	Detected          bool     `json:"detected"`
	Operational       bool     `json:"operational"`
	Activities        []string `json:"activities,omitempty"`
	WhyNotOperational []string `json:"why_not_operational,omitempty"`
	Errors            []string `json:"errors,omitempty"`
}

func newStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Probe the fleet and report each peer's status",
		Long: `Probe every deployed unit of the local site and the shared
spectrograph concurrently and report detection, health and current
activities per peer.`,
		Example: `  specfleet status
  specfleet status --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			site, err := cfg.LocalSite()
			if err != nil {
				return err
			}

			var endpoints []*remote.Endpoint
			var names []string
			for _, unit := range site.DeployedUnits {
				ep, err := remote.NewEndpoint(cfg.UnitEndpoint(site, unit), componentLogger("remote"))
				if err != nil {
					return err
				}
				endpoints = append(endpoints, ep)
				names = append(names, unit)
			}
			if site.SpecHost != "" {
				specCfg, err := cfg.SpecEndpoint(site)
				if err != nil {
					return err
				}
				ep, err := remote.NewEndpoint(specCfg, componentLogger("remote"))
				if err != nil {
					return err
				}
				endpoints = append(endpoints, ep)
				names = append(names, "spec:"+site.SpecHost)
			}

			results := remote.GatherStatuses(cmd.Context(), endpoints)

			rows := make([]peerStatus, len(results))
			for i, res := range results {
				row := peerStatus{
					Peer:     names[i],
					Detected: res.Endpoint.Detected(),
				}
				if res.Status != nil {
					row.Operational = res.Status.Operational
					row.Activities = res.Status.ActivitiesVerbal
					row.WhyNotOperational = res.Status.WhyNotOperational
				} else {
					row.Errors = res.Response.Failure()
				}
				rows[i] = row
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(rows)
			}

			for _, row := range rows {
				state := "down"
				switch {
				case row.Detected && row.Operational:
					state = "operational"
				case row.Detected:
					state = "not operational"
				}
				line := fmt.Sprintf("%-16s %s", row.Peer, state)
				if len(row.Activities) > 0 {
					line += "  [" + strings.Join(row.Activities, "|") + "]"
				}
				if len(row.WhyNotOperational) > 0 {
					line += "  (" + strings.Join(row.WhyNotOperational, "; ") + ")"
				}
				fmt.Println(line)
			}
			return nil
		},
	}
	return cmd
}
