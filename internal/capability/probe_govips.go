//go:build govips && cgo

package capability

import (
	"context"

	"github.com/davidbyttow/govips/v2/vips"
)

type govipsProber struct{}

func (govipsProber) Probe(ctx context.Context, c Capability) (bool, error) {
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	default:
	}

	data, err := Sample(c)
	if err != nil {
		return false, err
	}

	img, err := vips.NewImageFromBuffer(data)
	if err != nil {
		return false, nil
	}
	defer img.Close()

	if img.Format() != vips.ImageTypeWEBP {
		return false, nil
	}
	return img.Width() > 0 && img.Height() > 0, nil
}
