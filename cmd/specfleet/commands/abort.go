package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/specfleet/specfleet/pkg/canonical"
	"github.com/specfleet/specfleet/pkg/remote"
)

func newAbortCommand() *cobra.Command {
	var units []string

	cmd := &cobra.Command{
		Use:   "abort",
		Short: "Tell the fleet to abandon its current assignments",
		Long: `Send an abort to the deployed units and the spectrograph. Without
--unit the whole local fleet is aborted. Best effort: peers that are
down are reported but do not fail the command.`,
		Example: `  # Abort everything at the local site
  specfleet abort

  # Abort specific units only
  specfleet abort --unit mast01 --unit mast02`,
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

			targets := units
			if len(targets) == 0 {
				targets = site.DeployedUnits
			}

			var endpoints []*remote.Endpoint
			var names []string
			for _, unit := range targets {
				if !site.HasUnit(unit) {
					return fmt.Errorf("unknown unit %q at site %s", unit, site.Name)
				}
				ep, err := remote.NewEndpoint(cfg.UnitEndpoint(site, unit), componentLogger("remote"))
				if err != nil {
					return err
				}
				endpoints = append(endpoints, ep)
				names = append(names, unit)
			}
			if len(units) == 0 && site.SpecHost != "" {
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

			results := remote.GatherCalls(cmd.Context(), endpoints,
				func(ctx context.Context, ep *remote.Endpoint) canonical.Response {
					return ep.Abort(ctx)
				})

			for i, res := range results {
				if res.Response.Failed() {
					fmt.Printf("%-16s abort failed: %v\n", names[i], res.Response.Failure())
					continue
				}
				fmt.Printf("%-16s aborted\n", names[i])
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&units, "unit", "u", nil, "abort these units only")
	return cmd
}
