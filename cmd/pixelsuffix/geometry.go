package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/dunamismax/pixelsuffix/internal/geometry"
	"github.com/dunamismax/pixelsuffix/internal/rules"
	"github.com/spf13/cobra"
)

func newGeometryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "geometry",
		Short: "List scale modes and how many size components each takes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "MODE\tCOMPONENTS")
			for _, mode := range geometry.Modes() {
				n, _ := geometry.RequiredComponents(mode)
				fmt.Fprintf(w, "%s\t%d\n", mode, n)
			}
			return w.Flush()
		},
	}
}

func newDecodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode SUFFIX",
		Short: "Split a transformation suffix back into scale, size and rules",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			decoded, err := rules.ParseSuffix(args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), decoded)
		},
	}
}
