package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/dunamismax/pixelsuffix/internal/capability"
	"github.com/dunamismax/pixelsuffix/internal/store"
	"github.com/spf13/cobra"
)

func newProbeCmd(root *rootOptions) *cobra.Command {
	var (
		persist    bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Probe which WebP features this build can decode",
		Long: `Decode the embedded lossy, lossless and animated WebP samples and report
which succeed. With --persist the results are written to the configured
capability store (CAPABILITY_STORE), keeping any value already stored.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			if err := capability.Startup(); err != nil {
				return fmt.Errorf("codec runtime startup: %w", err)
			}
			defer capability.Shutdown()

			table := capability.NewTable()
			cfg := capability.BootstrapConfig{}
			if persist {
				snapshots, closeStore, err := store.Open(ctx, root.cfg)
				if err != nil {
					return err
				}
				defer closeStore()
				cfg.Store = snapshots
			}

			bootstrapper := capability.NewBootstrapper(table, cfg, root.logger)
			bootstrapper.Start(ctx)
			bootstrapper.Wait()

			snapshot := table.Snapshot()
			if jsonOutput {
				out := make(map[string]string, len(snapshot))
				for c, state := range snapshot {
					out[string(c)] = state.String()
				}
				return writeJSON(cmd.OutOrStdout(), out)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CAPABILITY\tSUPPORTED")
			for _, c := range capability.All() {
				fmt.Fprintf(w, "%s\t%s\n", c, snapshot[c])
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&persist, "persist", false, "write results to the configured capability store")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}
