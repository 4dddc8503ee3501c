// Package store persists settled capability results so that every process
// sharing a backend probes each capability at most once.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dunamismax/pixelsuffix/internal/capability"
)

// StorageName is the key the capability snapshot is stored under.
const StorageName = "CHECKED_WEBP_FEATURES"

var ErrUnknownCapability = errors.New("unknown capability")

// SnapshotStore is implemented by every backend in this package. Save is
// write-once: a capability that is already stored keeps its first value.
type SnapshotStore interface {
	Load(ctx context.Context) (capability.Snapshot, error)
	Save(ctx context.Context, c capability.Capability, supported bool) error
}

func validate(c capability.Capability) error {
	for _, known := range capability.All() {
		if c == known {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownCapability, string(c))
}

func name(storageName string) string {
	if strings.TrimSpace(storageName) == "" {
		return StorageName
	}
	return storageName
}

// decodeEntry turns a stored field into a snapshot entry. Unknown
// capabilities and unparseable states are skipped.
func decodeEntry(out capability.Snapshot, field, value string) {
	c, err := capability.Parse(field)
	if err != nil {
		return
	}
	var state capability.TriState
	if err := state.UnmarshalText([]byte(value)); err != nil || !state.Settled() {
		return
	}
	out[c] = state
}
