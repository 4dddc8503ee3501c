package capability

import "sync"

// Table is the process-wide capability state. Each entry moves from Unknown
// to a terminal state at most once; later writes for a settled entry are
// ignored.
type Table struct {
	mu     sync.RWMutex
	states map[Capability]TriState
}

func NewTable() *Table {
	states := make(map[Capability]TriState, len(All()))
	for _, c := range All() {
		states[c] = Unknown
	}
	return &Table{states: states}
}

func (t *Table) Query(c Capability) TriState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.states[c]
}

// Settle records the probe outcome for c. It returns false when c was
// already settled.
func (t *Table) Settle(c Capability, supported bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.states[c].Settled() {
		return false
	}
	t.states[c] = FromBool(supported)
	return true
}

// Merge settles every terminal entry of s that is still unknown in t.
func (t *Table) Merge(s Snapshot) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	merged := 0
	for c, state := range s {
		if !state.Settled() {
			continue
		}
		if _, tracked := t.states[c]; !tracked || t.states[c].Settled() {
			continue
		}
		t.states[c] = state
		merged++
	}
	return merged
}

func (t *Table) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(Snapshot, len(t.states))
	for c, state := range t.states {
		out[c] = state
	}
	return out
}

// Pending lists the capabilities still unknown, in probe order.
func (t *Table) Pending() []Capability {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []Capability
	for _, c := range All() {
		if !t.states[c].Settled() {
			out = append(out, c)
		}
	}
	return out
}
