package main

import (
	"encoding/json"
	"io"
	"log"

	"github.com/dunamismax/pixelsuffix/internal/config"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	verbose bool
	cfg     config.Config
	logger  *log.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "pixelsuffix",
		Short: "Resolve image CDN transformation suffixes",
		Long: `pixelsuffix appends a CDN transformation suffix to an image URL, picking
the pixel ratio, size and output format for the requesting device.

Example usage:
  pixelsuffix resolve a.png --size 100 --scale fw --dpr 2 --network wifi
  pixelsuffix probe --persist
  pixelsuffix geometry
  pixelsuffix decode '!/fw/100/format/webp'`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			opts.cfg = config.Load()
			out := io.Discard
			if opts.verbose {
				out = cmd.ErrOrStderr()
			}
			opts.logger = log.New(out, "[cli] ", log.LstdFlags|log.Lmsgprefix)
		},
	}
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log resolution steps to stderr")

	root.AddCommand(
		newResolveCmd(opts),
		newProbeCmd(opts),
		newGeometryCmd(),
		newDecodeCmd(),
	)
	return root
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
