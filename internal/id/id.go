package id

import (
	"crypto/rand"
	"encoding/hex"
)

// New returns a random 128-bit identifier, hex encoded, used to correlate a
// resolve request across logs, traces and responses.
func New() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "req-fallback-id"
	}
	return hex.EncodeToString(b[:])
}
