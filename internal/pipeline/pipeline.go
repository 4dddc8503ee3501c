package pipeline

import (
	"context"
	"io"
	"log"
	"strings"

	"github.com/dunamismax/pixelsuffix/internal/capability"
	"github.com/dunamismax/pixelsuffix/internal/geometry"
	"github.com/dunamismax/pixelsuffix/internal/network"
	"github.com/dunamismax/pixelsuffix/internal/resolver"
	"github.com/dunamismax/pixelsuffix/internal/rules"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Options struct {
	MaxPixelRatio float64
	DraftRatio    float64
	ScaleMode     string
	Quality       float64
	ExtraRules    string
	// MinWidth is the widest rendered width, in physical pixels, that still
	// gets WebP by default. Zero derives it per request as
	// viewport width * device pixel ratio / 2.
	MinWidth float64
	// ViewportWidth is used when a Device carries no viewport.
	ViewportWidth float64
	Debug         bool
}

func DefaultOptions() Options {
	return Options{
		MaxPixelRatio: 3,
		DraftRatio:    2,
		ScaleMode:     geometry.DefaultMode,
		Quality:       90,
		ViewportWidth: 375,
	}
}

// Device is the live context of the client the URL is resolved for.
type Device struct {
	PixelRatio    float64
	ViewportWidth float64
	// Network overrides the pipeline's network source when set.
	Network network.Class
}

type Resolution struct {
	URL        string        `json:"url"`
	Suffix     string        `json:"suffix"`
	Format     string        `json:"format,omitempty"`
	Scale      string        `json:"scale,omitempty"`
	Size       string        `json:"size,omitempty"`
	PixelRatio float64       `json:"pixel_ratio,omitempty"`
	Network    network.Class `json:"network,omitempty"`
}

type Pipeline struct {
	opts    Options
	caps    capability.Querier
	network network.Source
	logger  *log.Logger
	tracer  trace.Tracer
}

func New(opts Options, caps capability.Querier, source network.Source, logger *log.Logger) *Pipeline {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if source == nil {
		logger.Printf("warning: no network class source configured, every request resolves as %q", network.ClassUnknown)
	}

	defaults := DefaultOptions()
	if opts.MaxPixelRatio <= 0 {
		opts.MaxPixelRatio = defaults.MaxPixelRatio
	}
	if opts.DraftRatio <= 0 {
		opts.DraftRatio = defaults.DraftRatio
	}
	if strings.TrimSpace(opts.ScaleMode) == "" {
		opts.ScaleMode = defaults.ScaleMode
	}
	if opts.Quality <= 0 {
		opts.Quality = defaults.Quality
	}
	if opts.ViewportWidth <= 0 {
		opts.ViewportWidth = defaults.ViewportWidth
	}

	return &Pipeline{
		opts:    opts,
		caps:    caps,
		network: network.Safe(source),
		logger:  logger,
		tracer:  otel.Tracer("pixelsuffix/pipeline"),
	}
}

func (p *Pipeline) Options() Options {
	return p.opts
}

// Resolve appends the transformation suffix for in to source. An empty
// source resolves to an empty URL. Only a malformed extra-rules string or an
// unknown scale mode produce an error; every other bad input is defaulted.
func (p *Pipeline) Resolve(ctx context.Context, source string, device Device, in Input) (Resolution, error) {
	if strings.TrimSpace(source) == "" {
		return Resolution{}, nil
	}
	if in == nil {
		in = Positional{}
	}

	_, span := p.tracer.Start(ctx, "pipeline.resolve")
	defer span.End()

	res, err := p.resolve(source, device, in)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "resolve failed")
		return Resolution{}, err
	}

	span.SetAttributes(
		attribute.String("image.format", res.Format),
		attribute.String("image.scale", res.Scale),
		attribute.String("network.class", string(res.Network)),
		attribute.Float64("device.pixel_ratio", res.PixelRatio),
	)
	return res, nil
}

func (p *Pipeline) resolve(source string, device Device, in Input) (Resolution, error) {
	req, err := in.canonical(p.opts)
	if err != nil {
		return Resolution{}, err
	}

	class := device.Network
	if class == "" {
		class = p.network()
	}
	class = network.Parse(string(class))

	dpr := device.PixelRatio
	if dpr <= 0 {
		dpr = 1
	}

	p.debugf("network: %s", class)
	p.debugf("origin image src: %s", source)
	p.debugf("origin image size=%q scale=%q format=%q quality=%v rules=%v", req.size, req.scale, req.format, req.quality, req.extra)

	scale := req.scale
	if scale == "" {
		scale = p.opts.ScaleMode
	}
	if _, err := geometry.RequiredComponents(scale); err != nil {
		return Resolution{}, err
	}

	quality := req.quality
	if quality <= 0 {
		quality = p.opts.Quality
	}

	pixelRatio := resolver.EffectivePixelRatio(class, dpr, p.opts.MaxPixelRatio)
	size, err := resolver.EffectiveSize(req.size, scale, pixelRatio, p.opts.DraftRatio)
	if err != nil {
		return Resolution{}, err
	}
	width, hasWidth := size.Width()

	format := resolver.EffectiveFormat(resolver.FormatRequest{
		Explicit: req.format,
		Origin:   resolver.OriginFormat(source),
		Width:    width,
		HasWidth: hasWidth,
		MinWidth: p.minWidth(device, dpr),
		Lossless: rules.Truthy(req.extra[rules.KeyLossless]),
	}, p.caps)

	// size is always present so a caller's extra size rule can never reach
	// the scale/size prefix; nil is dropped again by serialization.
	resolved := rules.Set{
		rules.KeyFormat:  format,
		rules.KeyScale:   scale,
		rules.KeyQuality: quality,
		rules.KeySize:    nil,
	}
	if size != nil {
		resolved[rules.KeySize] = size.String()
	}

	p.debugf("final image size=%q pixel_ratio=%v scale=%s quality=%v format=%s rules=%v", size.String(), pixelRatio, scale, quality, format, req.extra)

	suffix := rules.Stringify(rules.Merge(resolved, req.extra))
	p.debugf("final image rule: %s", suffix)

	return Resolution{
		URL:        source + suffix,
		Suffix:     suffix,
		Format:     format,
		Scale:      scale,
		Size:       size.String(),
		PixelRatio: pixelRatio,
		Network:    class,
	}, nil
}

func (p *Pipeline) minWidth(device Device, dpr float64) float64 {
	if p.opts.MinWidth > 0 {
		return p.opts.MinWidth
	}
	viewport := device.ViewportWidth
	if viewport <= 0 {
		viewport = p.opts.ViewportWidth
	}
	return viewport * dpr / 2
}

func (p *Pipeline) debugf(format string, args ...any) {
	if !p.opts.Debug {
		return
	}
	p.logger.Printf(format, args...)
}
