package capability

import (
	"sync"
	"testing"
)

func TestTableSettlesOnce(t *testing.T) {
	table := NewTable()
	if got := table.Query(Lossy); got != Unknown {
		t.Fatalf("expected fresh entry to be unknown, got %s", got)
	}

	if !table.Settle(Lossy, true) {
		t.Fatal("expected first settle to apply")
	}
	if table.Settle(Lossy, false) {
		t.Fatal("expected second settle to be ignored")
	}
	if got := table.Query(Lossy); got != Supported {
		t.Fatalf("expected lossy to stay supported, got %s", got)
	}
}

func TestTableConcurrentSettleHasSingleWinner(t *testing.T) {
	table := NewTable()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if table.Settle(Animation, i%2 == 0) {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly one winning settle, got %d", wins)
	}
	if !table.Query(Animation).Settled() {
		t.Fatal("expected animation to be settled")
	}
}

func TestTableMergeSkipsUnknownAndSettled(t *testing.T) {
	table := NewTable()
	table.Settle(Lossless, false)

	merged := table.Merge(Snapshot{
		Lossy:     Supported,
		Lossless:  Supported,
		Animation: Unknown,
	})
	if merged != 1 {
		t.Fatalf("expected one merged entry, got %d", merged)
	}
	if got := table.Query(Lossless); got != Unsupported {
		t.Fatalf("expected lossless to keep its first state, got %s", got)
	}

	pending := table.Pending()
	if len(pending) != 1 || pending[0] != Animation {
		t.Fatalf("expected only animation pending, got %v", pending)
	}
}

func TestIsSupportedFailsClosedOnUnknown(t *testing.T) {
	fixed := Fixed{Lossy: Supported, Lossless: Unsupported}

	if !IsSupported(fixed, Lossy) {
		t.Fatal("expected lossy supported")
	}
	if IsSupported(fixed, Lossless) {
		t.Fatal("expected lossless unsupported")
	}
	if IsSupported(fixed, Animation) {
		t.Fatal("expected unknown animation to count as unsupported")
	}
	if IsSupported(nil, Lossy) {
		t.Fatal("expected nil querier to count as unsupported")
	}
}

func TestTriStateText(t *testing.T) {
	for _, state := range []TriState{Unknown, Supported, Unsupported} {
		text, err := state.MarshalText()
		if err != nil {
			t.Fatalf("marshal %v: %v", state, err)
		}
		var parsed TriState
		if err := parsed.UnmarshalText(text); err != nil {
			t.Fatalf("unmarshal %q: %v", text, err)
		}
		if parsed != state {
			t.Fatalf("expected %s, got %s", state, parsed)
		}
	}

	var bad TriState
	if err := bad.UnmarshalText([]byte("maybe")); err == nil {
		t.Fatal("expected error for invalid state")
	}
}

func TestParse(t *testing.T) {
	c, err := Parse(" Lossless ")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c != Lossless {
		t.Fatalf("expected lossless, got %s", c)
	}
	if _, err := Parse("alpha"); err == nil {
		t.Fatal("expected error for untracked capability")
	}
}
