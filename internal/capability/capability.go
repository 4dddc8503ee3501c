// Package capability tracks which WebP codec features the delivery target can
// decode. Each feature starts unknown and settles exactly once.
package capability

import (
	"fmt"
	"strings"
)

type Capability string

const (
	Lossy     Capability = "lossy"
	Lossless  Capability = "lossless"
	Animation Capability = "animation"
)

// All returns every tracked capability in probe order.
func All() []Capability {
	return []Capability{Lossy, Lossless, Animation}
}

func Parse(s string) (Capability, error) {
	switch c := Capability(strings.ToLower(strings.TrimSpace(s))); c {
	case Lossy, Lossless, Animation:
		return c, nil
	default:
		return "", fmt.Errorf("unknown capability: %q", s)
	}
}

type TriState int

const (
	Unknown TriState = iota
	Supported
	Unsupported
)

func FromBool(ok bool) TriState {
	if ok {
		return Supported
	}
	return Unsupported
}

func (s TriState) Settled() bool {
	return s == Supported || s == Unsupported
}

func (s TriState) String() string {
	switch s {
	case Supported:
		return "true"
	case Unsupported:
		return "false"
	default:
		return "unknown"
	}
}

func (s TriState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *TriState) UnmarshalText(b []byte) error {
	switch string(b) {
	case "true":
		*s = Supported
	case "false":
		*s = Unsupported
	case "unknown", "":
		*s = Unknown
	default:
		return fmt.Errorf("invalid capability state: %q", string(b))
	}
	return nil
}

// Querier is the read side the resolver depends on.
type Querier interface {
	Query(c Capability) TriState
}

// IsSupported reports whether c is confirmed supported. Unknown counts as
// unsupported: a request resolved before its probe settles never relies on an
// unconfirmed codec.
func IsSupported(q Querier, c Capability) bool {
	if q == nil {
		return false
	}
	return q.Query(c) == Supported
}

// Snapshot is a point-in-time view of every capability.
type Snapshot map[Capability]TriState

// Fixed is an immutable Querier backed by a snapshot.
type Fixed Snapshot

func (f Fixed) Query(c Capability) TriState {
	return f[c]
}
