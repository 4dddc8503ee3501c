package resolver

import (
	"errors"
	"testing"

	"github.com/dunamismax/pixelsuffix/internal/capability"
	"github.com/dunamismax/pixelsuffix/internal/geometry"
	"github.com/dunamismax/pixelsuffix/internal/network"
)

func TestEffectivePixelRatio(t *testing.T) {
	for _, dpr := range []float64{0.5, 1, 1.5, 2, 3, 3.5, 4} {
		if got := EffectivePixelRatio(network.ClassWiFi, dpr, 3); got != dpr {
			t.Fatalf("wifi dpr=%v: expected passthrough, got %v", dpr, got)
		}

		want := dpr
		if dpr > 3 {
			want = 3
		}
		if got := EffectivePixelRatio(network.Class4G, dpr, 3); got != want {
			t.Fatalf("4g dpr=%v: expected %v, got %v", dpr, want, got)
		}
		if got := EffectivePixelRatio(network.ClassUnknown, dpr, 3); got != want {
			t.Fatalf("unknown dpr=%v: expected %v, got %v", dpr, want, got)
		}
		if got := EffectivePixelRatio(network.Class3G, dpr, 3); got != 1 {
			t.Fatalf("3g dpr=%v: expected 1, got %v", dpr, got)
		}
	}
}

func TestEffectiveSize(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		mode  string
		ratio float64
		draft float64
		want  string
	}{
		{"single component", "100", "fw", 2, 2, "100"},
		{"draft to physical", "100x50", "both", 3, 2, "150x75"},
		{"rounds half up", "45", "fw", 1, 2, "23"},
		{"truncates extra component", "100x50", "fw", 1, 1, "100"},
		{"drops non-numeric", "abcx60", "fw", 1, 1, "60"},
		{"pads by repetition", "80", "both", 1, 1, "80x80"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := EffectiveSize(tc.raw, tc.mode, tc.ratio, tc.draft)
			if err != nil {
				t.Fatalf("EffectiveSize returned error: %v", err)
			}
			if got.String() != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got.String())
			}
		})
	}
}

func TestEffectiveSizeTwoComponentModesDuplicateSingleInput(t *testing.T) {
	for _, mode := range geometry.Modes() {
		required, _ := geometry.RequiredComponents(mode)
		if required != 2 {
			continue
		}
		got, err := EffectiveSize("64", mode, 2, 2)
		if err != nil {
			t.Fatalf("mode %s: %v", mode, err)
		}
		if len(got) != 2 || got[0] != got[1] {
			t.Fatalf("mode %s: expected two identical components, got %v", mode, got)
		}
	}
}

func TestEffectiveSizeAbsent(t *testing.T) {
	for _, raw := range []string{"", "  ", "axb", "x"} {
		got, err := EffectiveSize(raw, "both", 2, 2)
		if err != nil {
			t.Fatalf("raw %q: %v", raw, err)
		}
		if got != nil {
			t.Fatalf("raw %q: expected no size, got %v", raw, got)
		}
	}
}

func TestEffectiveSizeRejectsUnitSuffixes(t *testing.T) {
	for _, raw := range []string{"100px", "1e2px", "50%"} {
		got, err := EffectiveSize(raw, "fw", 1, 1)
		if err != nil {
			t.Fatalf("raw %q: %v", raw, err)
		}
		if got != nil {
			t.Fatalf("raw %q: expected no size, got %v", raw, got)
		}
	}

	got, err := EffectiveSize("100pt x 60", "both", 1, 1)
	if err != nil {
		t.Fatalf("EffectiveSize returned error: %v", err)
	}
	if got.String() != "60x60" {
		t.Fatalf("expected only the numeric component to survive, got %q", got.String())
	}
}

func TestEffectiveSizeUnknownMode(t *testing.T) {
	_, err := EffectiveSize("100", "stretch", 1, 1)
	if !errors.Is(err, geometry.ErrUnknownScaleMode) {
		t.Fatalf("expected ErrUnknownScaleMode, got %v", err)
	}
}

func TestEffectiveFormatDefaults(t *testing.T) {
	all := capability.Fixed{
		capability.Lossy:     capability.Supported,
		capability.Lossless:  capability.Supported,
		capability.Animation: capability.Supported,
	}
	none := capability.Fixed{
		capability.Lossy:     capability.Unsupported,
		capability.Lossless:  capability.Unsupported,
		capability.Animation: capability.Unsupported,
	}
	unknown := capability.Fixed{}

	tests := []struct {
		name string
		req  FormatRequest
		caps capability.Querier
		want string
	}{
		{"small static prefers webp", FormatRequest{Origin: "png", Width: 100, HasWidth: true, MinWidth: 375}, all, FormatWebP},
		{"wide static falls back to jpg", FormatRequest{Origin: "png", Width: 800, HasWidth: true, MinWidth: 375}, all, FormatJPG},
		{"threshold is inclusive", FormatRequest{Origin: "jpg", Width: 375, HasWidth: true, MinWidth: 375}, all, FormatWebP},
		{"no width falls back to jpg", FormatRequest{Origin: "png", MinWidth: 375}, all, FormatJPG},
		{"no lossy support", FormatRequest{Origin: "png", Width: 100, HasWidth: true, MinWidth: 375}, none, FormatJPG},
		{"unknown lossy fails closed", FormatRequest{Origin: "png", Width: 100, HasWidth: true, MinWidth: 375}, unknown, FormatJPG},
		{"animated with support", FormatRequest{Origin: "gif"}, all, FormatWebP},
		{"animated without support", FormatRequest{Origin: "gif"}, none, FormatGIF},
		{"animated unknown fails closed", FormatRequest{Origin: "GIF"}, unknown, FormatGIF},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := EffectiveFormat(tc.req, tc.caps); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestEffectiveFormatExplicit(t *testing.T) {
	lossyOnly := capability.Fixed{
		capability.Lossy:     capability.Supported,
		capability.Lossless:  capability.Unsupported,
		capability.Animation: capability.Unsupported,
	}

	tests := []struct {
		name string
		req  FormatRequest
		want string
	}{
		{"explicit non-webp wins", FormatRequest{Explicit: "PNG", Origin: "jpg"}, "png"},
		{"explicit webp lossy supported", FormatRequest{Explicit: "webp", Origin: "png"}, FormatWebP},
		{"explicit webp lossless unsupported", FormatRequest{Explicit: "webp", Origin: "png", Lossless: true}, FormatJPG},
		{"explicit webp animated unsupported", FormatRequest{Explicit: "webp", Origin: "gif"}, FormatGIF},
		{"explicit webp on unknown origin", FormatRequest{Explicit: "webp", Origin: ""}, FormatWebP},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := EffectiveFormat(tc.req, lossyOnly); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestEffectiveFormatExplicitWebPOnOtherStaticOrigins(t *testing.T) {
	none := capability.Fixed{
		capability.Lossy:     capability.Unsupported,
		capability.Lossless:  capability.Unsupported,
		capability.Animation: capability.Unsupported,
	}
	lossyOnly := capability.Fixed{capability.Lossy: capability.Supported}

	tests := []struct {
		name string
		caps capability.Querier
		req  FormatRequest
		want string
	}{
		{"bmp without lossy", none, FormatRequest{Explicit: "webp", Origin: "bmp"}, FormatJPG},
		{"no extension without lossy", none, FormatRequest{Explicit: "webp", Origin: ""}, FormatJPG},
		{"bmp with lossy", lossyOnly, FormatRequest{Explicit: "webp", Origin: "bmp"}, FormatWebP},
		{"bmp lossless while unknown", lossyOnly, FormatRequest{Explicit: "webp", Origin: "bmp", Lossless: true}, FormatJPG},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := EffectiveFormat(tc.req, tc.caps); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestOriginFormat(t *testing.T) {
	tests := map[string]string{
		"a.png":                                "png",
		"https://cdn.example.com/x/photo.JPG":  "jpg",
		"https://cdn.example.com/anim.gif?v=2": "gif",
		"/images/banner.webp#top":              "webp",
		"https://cdn.example.com/noext":        "",
		"":                                     "",
	}
	for in, want := range tests {
		if got := OriginFormat(in); got != want {
			t.Fatalf("OriginFormat(%q) = %q, want %q", in, got, want)
		}
	}
}
