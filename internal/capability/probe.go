package capability

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"

	"golang.org/x/image/webp"
)

// Prober decides whether a single capability is supported.
type Prober interface {
	Probe(ctx context.Context, c Capability) (bool, error)
}

// 1x1 WebP samples, one per capability.
var samples = map[Capability]string{
	Lossy:     "UklGRiIAAABXRUJQVlA4IBYAAAAwAQCdASoBAAEADsD+JaQAA3AAAAAA",
	Lossless:  "UklGRhoAAABXRUJQVlA4TA0AAAAvAAAAEAcQERGIiP4HAA==",
	Animation: "UklGRlIAAABXRUJQVlA4WAoAAAASAAAAAAAAAAAAQU5JTQYAAAD/////AABBTk1GJgAAAAAAAAAAAAAAAAAAAGQAAABWUDhMDQAAAC8AAAAQBxAREYiI/gcA",
}

// Sample returns the decoded probe image for c.
func Sample(c Capability) ([]byte, error) {
	encoded, ok := samples[c]
	if !ok {
		return nil, fmt.Errorf("no probe sample for capability %q", c)
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode probe sample %s: %w", c, err)
	}
	return data, nil
}

// DecodeProber probes with the pure-Go WebP decoder. A capability is
// supported when its sample decodes to a non-empty image; decoder errors are
// an "unsupported" outcome, not a probe failure.
type DecodeProber struct{}

func (DecodeProber) Probe(ctx context.Context, c Capability) (bool, error) {
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	default:
	}

	data, err := Sample(c)
	if err != nil {
		return false, err
	}

	img, err := webp.Decode(bytes.NewReader(data))
	if err != nil {
		return false, nil
	}
	bounds := img.Bounds()
	return bounds.Dx() > 0 && bounds.Dy() > 0, nil
}
