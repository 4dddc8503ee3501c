package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dunamismax/pixelsuffix/internal/capability"
	"github.com/dunamismax/pixelsuffix/internal/network"
	"github.com/dunamismax/pixelsuffix/internal/pipeline"
	"github.com/spf13/cobra"
)

type resolveOptions struct {
	size        string
	scale       string
	format      string
	quality     float64
	rules       string
	structured  string
	dpr         float64
	viewport    float64
	networkName string
	supports    []string
	jsonOutput  bool
}

func newResolveCmd(root *rootOptions) *cobra.Command {
	opts := &resolveOptions{}

	cmd := &cobra.Command{
		Use:   "resolve SRC",
		Short: "Print SRC with its transformation suffix appended",
		Long: `Resolve an image reference for a device.

Without --supports the WebP capabilities of this build are probed first.

Examples:
  pixelsuffix resolve a.png --size 100 --scale fw --dpr 2 --network wifi
  pixelsuffix resolve hero.jpg --size 750x300 --rules /sharpen/1
  pixelsuffix resolve anim.gif --options '{"size":120,"scale":"fwfh"}'
  pixelsuffix resolve a.png --size 100 --supports lossy,lossless --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(cmd, root, opts, args[0])
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.size, "size", "", "design-draft size, e.g. 100 or 120x80")
	flags.StringVar(&opts.scale, "scale", "", "scale mode (see 'pixelsuffix geometry')")
	flags.StringVar(&opts.format, "format", "", "explicit output format")
	flags.Float64Var(&opts.quality, "quality", 0, "output quality (default from QUALITY)")
	flags.StringVar(&opts.rules, "rules", "", "extra rules, e.g. /rotate/90/sharpen/1")
	flags.StringVar(&opts.structured, "options", "", "structured request as a JSON object; replaces the positional flags")
	flags.Float64Var(&opts.dpr, "dpr", 1, "device pixel ratio")
	flags.Float64Var(&opts.viewport, "viewport", 0, "viewport width in CSS pixels")
	flags.StringVar(&opts.networkName, "network", string(network.ClassUnknown), "network class: wifi, 4g, 3g, 2g, ...")
	flags.StringSliceVar(&opts.supports, "supports", nil, "capabilities to treat as supported (lossy, lossless, animation); skips probing")
	flags.BoolVar(&opts.jsonOutput, "json", false, "print the full resolution as JSON")
	return cmd
}

func runResolve(cmd *cobra.Command, root *rootOptions, opts *resolveOptions, src string) error {
	in, err := opts.input()
	if err != nil {
		return err
	}

	var caps capability.Querier
	if cmd.Flags().Changed("supports") {
		caps, err = fixedCapabilities(opts.supports)
		if err != nil {
			return err
		}
	} else {
		table := capability.NewTable()
		bootstrapper := capability.NewBootstrapper(table, capability.BootstrapConfig{}, root.logger)
		bootstrapper.Start(cmd.Context())
		bootstrapper.Wait()
		caps = table
	}

	pipeOpts := root.cfg.Resolver.Options()
	pipeOpts.Debug = pipeOpts.Debug || root.verbose
	p := pipeline.New(pipeOpts, caps, network.Static(network.Parse(opts.networkName)), root.logger)

	res, err := p.Resolve(cmd.Context(), src, pipeline.Device{
		PixelRatio:    opts.dpr,
		ViewportWidth: opts.viewport,
	}, in)
	if err != nil {
		return err
	}

	if opts.jsonOutput {
		return writeJSON(cmd.OutOrStdout(), res)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), res.URL)
	return err
}

func (o *resolveOptions) input() (pipeline.Input, error) {
	if strings.TrimSpace(o.structured) == "" {
		return pipeline.Positional{
			Size:    o.size,
			Scale:   o.scale,
			Format:  o.format,
			Quality: o.quality,
			Rules:   o.rules,
		}, nil
	}

	var structured map[string]any
	if err := json.Unmarshal([]byte(o.structured), &structured); err != nil {
		return nil, fmt.Errorf("parse --options: %w", err)
	}
	return pipeline.Structured(structured), nil
}

func fixedCapabilities(supported []string) (capability.Fixed, error) {
	caps := capability.Fixed{}
	for _, c := range capability.All() {
		caps[c] = capability.Unsupported
	}
	for _, name := range supported {
		c, err := capability.Parse(name)
		if err != nil {
			return nil, err
		}
		caps[c] = capability.Supported
	}
	return caps, nil
}
