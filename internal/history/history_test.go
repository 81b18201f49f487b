package history

import (
	"testing"

	"github.com/kurtskinny/twitch-chat-core/internal/core"
)

func msgWithID(id string) *core.Message {
	return core.NewMessageBuilder().WithID(id).Build()
}

func snapshotIDs(s Snapshot) []string {
	ids := make([]string, s.Len())
	for i := range ids {
		ids[i] = s.Get(i).ID
	}
	return ids
}

func equalIDs(t *testing.T, got []string, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %v want %v", got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("mismatch at %d: got %v want %v", i, got, want)
		}
	}
}

// Scenario 1: ring-buffer eviction.
func TestRingBufferEviction(t *testing.T) {
	h := New(3)
	h.Append(msgWithID("1"))
	h.Append(msgWithID("2"))
	h.Append(msgWithID("3"))
	evicted, didEvict := h.Append(msgWithID("4"))

	if !didEvict || evicted.ID != "1" {
		t.Fatalf("expected eviction of message 1, got %+v didEvict=%v", evicted, didEvict)
	}
	equalIDs(t, snapshotIDs(h.Snapshot()), []string{"2", "3", "4"})
}

// Scenario 2: front-fill partial admit.
func TestPrependBatchPartialAdmit(t *testing.T) {
	h := New(5)
	h.Append(msgWithID("1"))
	h.Append(msgWithID("2"))
	admitted := h.PrependBatch([]*core.Message{msgWithID("-2"), msgWithID("-1"), msgWithID("0")})

	var admittedIDs []string
	for _, m := range admitted {
		admittedIDs = append(admittedIDs, m.ID)
	}
	equalIDs(t, admittedIDs, []string{"-2", "-1", "0"})
	equalIDs(t, snapshotIDs(h.Snapshot()), []string{"-2", "-1", "0", "1", "2"})
}

// Scenario 3: front-fill rejection when full.
func TestPrependBatchRejectedWhenFull(t *testing.T) {
	h := New(2)
	h.Append(msgWithID("1"))
	h.Append(msgWithID("2"))
	admitted := h.PrependBatch([]*core.Message{msgWithID("-1"), msgWithID("0")})

	if len(admitted) != 0 {
		t.Fatalf("expected no admissions, got %d", len(admitted))
	}
	equalIDs(t, snapshotIDs(h.Snapshot()), []string{"1", "2"})
}

// Scenario 3b: prepend over capacity admits only the suffix of the input.
func TestPrependBatchSuffixWinsOverCapacity(t *testing.T) {
	h := New(5)
	h.Append(msgWithID("1"))
	h.Append(msgWithID("2"))
	h.Append(msgWithID("3"))
	// Only 2 slots remain; 4 candidates offered, suffix of 2 should win.
	admitted := h.PrependBatch([]*core.Message{
		msgWithID("-4"), msgWithID("-3"), msgWithID("-2"), msgWithID("-1"),
	})

	var admittedIDs []string
	for _, m := range admitted {
		admittedIDs = append(admittedIDs, m.ID)
	}
	equalIDs(t, admittedIDs, []string{"-2", "-1"})
	equalIDs(t, snapshotIDs(h.Snapshot()), []string{"-2", "-1", "1", "2", "3"})
}

// Scenario 4: replace-by-id.
func TestReplaceByID(t *testing.T) {
	h := New(10)
	h.Append(msgWithID("a"))
	h.Append(msgWithID("b"))
	h.Append(msgWithID("c"))

	replacement := msgWithID("b")
	idx, ok := h.ReplaceByID("b", replacement)
	if !ok || idx != 1 {
		t.Fatalf("expected replacement at index 1, got idx=%d ok=%v", idx, ok)
	}

	snap := h.Snapshot()
	if snap.Get(1) != replacement {
		t.Fatalf("snapshot did not observe replacement")
	}
}

func TestReplaceByIDEmptyIDIsNoop(t *testing.T) {
	h := New(10)
	h.Append(msgWithID("a"))
	if idx, ok := h.ReplaceByID("", msgWithID("z")); ok || idx != -1 {
		t.Fatalf("expected no-op for empty id, got idx=%d ok=%v", idx, ok)
	}
}

func TestSnapshotUnaffectedByLaterWrites(t *testing.T) {
	h := New(3)
	h.Append(msgWithID("1"))
	h.Append(msgWithID("2"))
	snap := h.Snapshot()

	h.Append(msgWithID("3"))
	h.Append(msgWithID("4")) // evicts "1"
	h.ReplaceByID("2", msgWithID("2-edited"))

	equalIDs(t, snapshotIDs(snap), []string{"1", "2"})
}

func TestDisableAllIsNoopWhenAlreadyDisabled(t *testing.T) {
	h := New(2)
	m := core.NewMessageBuilder().WithID("a").WithFlags(core.Disabled).Build()
	h.Append(m)

	before := h.Snapshot().Get(0)
	h.DisableAll()
	after := h.Snapshot().Get(0)

	if before != after {
		t.Fatalf("DisableAll must be a no-op (same pointer) when all messages already disabled")
	}
}

func TestDisableAllFlagsEnabledMessages(t *testing.T) {
	h := New(2)
	h.Append(msgWithID("a"))
	h.DisableAll()

	m := h.Snapshot().Get(0)
	if !m.Flags.Has(core.Disabled) {
		t.Fatalf("expected Disabled flag after DisableAll")
	}
}

func TestClearEmptiesHistoryWithoutAffectingOldSnapshot(t *testing.T) {
	h := New(3)
	h.Append(msgWithID("1"))
	snap := h.Snapshot()

	h.Clear()
	if h.Len() != 0 {
		t.Fatalf("expected empty history after Clear, got len=%d", h.Len())
	}
	if snap.Len() != 1 {
		t.Fatalf("old snapshot must be unaffected by Clear")
	}
}

func TestFindByID(t *testing.T) {
	h := New(3)
	h.Append(msgWithID("a"))
	h.Append(msgWithID("b"))

	if m := h.FindByID("b"); m == nil || m.ID != "b" {
		t.Fatalf("expected to find message b")
	}
	if m := h.FindByID("missing"); m != nil {
		t.Fatalf("expected nil for missing id, got %+v", m)
	}
}

func TestAppendAcrossManyChunks(t *testing.T) {
	const capacity = 250 // spans multiple 100-slot chunks
	h := New(capacity)
	for i := 0; i < capacity+50; i++ {
		h.Append(msgWithID(string(rune('A' + i%26))))
	}
	if h.Len() != capacity {
		t.Fatalf("expected len == capacity after overflow, got %d", h.Len())
	}
}
