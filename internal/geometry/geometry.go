package geometry

import (
	"errors"
	"fmt"
	"sort"
)

// DefaultMode is the scale mode used when a request names none.
const DefaultMode = "both"

var ErrUnknownScaleMode = errors.New("unknown scale mode")

// components maps each CDN scale mode to the number of size components it
// takes: 1 for "N", 2 for "NxM".
var components = map[string]int{
	"fw":     1,
	"fh":     1,
	"max":    1,
	"min":    1,
	"fwfh":   2,
	"fwfh2":  2,
	"both":   2,
	"sq":     1,
	"scale":  1,
	"wscale": 1,
	"hscale": 1,
	"fxfn":   2,
	"fxfn2":  2,
	"fp":     1,
}

// RequiredComponents returns how many size components mode expects.
// Unknown modes fail with ErrUnknownScaleMode rather than falling back.
func RequiredComponents(mode string) (int, error) {
	n, ok := components[mode]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownScaleMode, mode)
	}
	return n, nil
}

func IsMode(mode string) bool {
	_, ok := components[mode]
	return ok
}

// Modes lists every known scale mode in lexical order.
func Modes() []string {
	out := make([]string, 0, len(components))
	for mode := range components {
		out = append(out, mode)
	}
	sort.Strings(out)
	return out
}
