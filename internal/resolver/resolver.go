// Package resolver computes the effective pixel ratio, size and output format
// of an image request from raw input, device context and codec support.
// Every function here is pure apart from reading the capability Querier.
package resolver

import (
	"math"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/dunamismax/pixelsuffix/internal/capability"
	"github.com/dunamismax/pixelsuffix/internal/geometry"
	"github.com/dunamismax/pixelsuffix/internal/network"
)

const (
	FormatWebP = "webp"
	FormatJPG  = "jpg"
	FormatPNG  = "png"
	FormatGIF  = "gif"
)

// EffectivePixelRatio spends resolution only when the network can afford
// it: 4g and unknown networks are clamped to max, wifi passes through and
// anything slower renders at 1x.
func EffectivePixelRatio(class network.Class, dpr, max float64) float64 {
	switch class {
	case network.Class4G, network.ClassUnknown:
		if dpr >= max {
			return max
		}
		return dpr
	case network.ClassWiFi:
		return dpr
	default:
		return 1
	}
}

// Size is a pixel-rounded size tuple with one or two components.
type Size []int

func (s Size) String() string {
	parts := make([]string, len(s))
	for i, v := range s {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, "x")
}

// Width returns the first component; ok is false for an empty size.
func (s Size) Width() (int, bool) {
	if len(s) == 0 {
		return 0, false
	}
	return s[0], true
}

// EffectiveSize converts a design-draft size such as "100" or "120x80" to
// physical pixels and fits it to the component count of mode. Non-numeric
// components are dropped, including ones with a unit such as "100px"; a
// missing second component repeats the first.
// A nil Size means no usable size was given.
func EffectiveSize(raw, mode string, pixelRatio, draftRatio float64) (Size, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	required, err := geometry.RequiredComponents(mode)
	if err != nil {
		return nil, err
	}
	if draftRatio <= 0 {
		draftRatio = 1
	}

	var values Size
	for _, part := range strings.Split(raw, "x") {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			continue
		}
		values = append(values, int(math.Round(f/draftRatio*pixelRatio)))
	}

	if len(values) == 0 {
		return nil, nil
	}
	if len(values) > required {
		values = values[:required]
	}

	out := make(Size, required)
	for i := range out {
		out[i] = values[i%len(values)]
	}
	return out, nil
}

// FormatRequest carries the inputs of EffectiveFormat.
type FormatRequest struct {
	Explicit string
	Origin   string
	Width    int
	HasWidth bool
	MinWidth float64
	Lossless bool
}

// EffectiveFormat picks the output format. Capabilities that are still
// unknown count as unsupported. An explicit webp on any static origin,
// including unrecognized ones, needs the lossy or lossless capability.
func EffectiveFormat(req FormatRequest, caps capability.Querier) string {
	explicit := strings.ToLower(strings.TrimSpace(req.Explicit))
	origin := strings.ToLower(strings.TrimSpace(req.Origin))

	if explicit == "" {
		if origin == FormatGIF {
			if capability.IsSupported(caps, capability.Animation) {
				return FormatWebP
			}
			return FormatGIF
		}
		if capability.IsSupported(caps, capability.Lossy) && req.HasWidth && req.MinWidth >= float64(req.Width) {
			return FormatWebP
		}
		return FormatJPG
	}

	if explicit != FormatWebP {
		return explicit
	}

	if origin == FormatGIF {
		if capability.IsSupported(caps, capability.Animation) {
			return FormatWebP
		}
		return FormatGIF
	}

	needed := capability.Lossy
	if req.Lossless {
		needed = capability.Lossless
	}
	if !capability.IsSupported(caps, needed) {
		return FormatJPG
	}
	return FormatWebP
}

// OriginFormat returns the lower-cased extension of the image reference,
// ignoring any query string or fragment, or "" when there is none.
func OriginFormat(source string) string {
	p := source
	if u, err := url.Parse(source); err == nil {
		p = u.Path
	} else if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}

	ext := path.Ext(p)
	if ext == "" {
		return ""
	}
	return strings.ToLower(ext[1:])
}
