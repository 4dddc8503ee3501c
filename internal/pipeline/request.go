package pipeline

import (
	"strconv"
	"strings"

	"github.com/dunamismax/pixelsuffix/internal/rules"
)

// Input is either a Positional or a Structured request.
type Input interface {
	canonical(opts Options) (imageRequest, error)
}

// Positional mirrors the filter call form: size, scale, format, quality and
// extra rules as separate arguments. Zero values fall back to Options.
type Positional struct {
	Size    string
	Scale   string
	Format  string
	Quality float64
	// Rules is a "/key/value/..." string; RuleSet, when non-nil, is used
	// instead.
	Rules   string
	RuleSet rules.Set
}

// Structured is the single-mapping call form. The keys size, scale, format
// and quality are lifted out; every other key is an extra rule.
type Structured map[string]any

type imageRequest struct {
	size    string
	scale   string
	format  string
	quality float64
	extra   rules.Set
}

func (p Positional) canonical(opts Options) (imageRequest, error) {
	req := imageRequest{
		size:    strings.TrimSpace(p.Size),
		scale:   strings.TrimSpace(p.Scale),
		format:  strings.TrimSpace(p.Format),
		quality: p.Quality,
	}

	switch {
	case p.RuleSet != nil:
		req.extra = p.RuleSet.Clone()
	case p.Rules != "":
		extra, err := rules.ParseExtra(p.Rules)
		if err != nil {
			return imageRequest{}, err
		}
		req.extra = extra
	default:
		extra, err := rules.ParseExtra(opts.ExtraRules)
		if err != nil {
			return imageRequest{}, err
		}
		req.extra = extra
	}
	return req, nil
}

func (s Structured) canonical(Options) (imageRequest, error) {
	req := imageRequest{extra: rules.Set{}}
	for k, v := range s {
		switch k {
		case rules.KeySize:
			req.size, _ = rules.FormatValue(v)
		case rules.KeyScale:
			req.scale, _ = v.(string)
		case rules.KeyFormat:
			req.format, _ = v.(string)
		case rules.KeyQuality:
			req.quality = toFloat(v)
		default:
			req.extra[k] = v
		}
	}
	req.size = strings.TrimSpace(req.size)
	req.scale = strings.TrimSpace(req.scale)
	req.format = strings.TrimSpace(req.format)
	return req, nil
}

func toFloat(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case float32:
		return float64(x)
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}
