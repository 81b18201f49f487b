package channel

import (
	"testing"
	"time"

	"github.com/kurtskinny/twitch-chat-core/internal/core"
)

func chatMessage(id, login, display, text string) *core.Message {
	return core.NewMessageBuilder().
		WithID(id).
		WithNames(login, display, display).
		AppendElement(core.TextElement(text, 0)).
		Build()
}

func TestAppendIndexesChatterAndFiresSignal(t *testing.T) {
	c := New("#chan", 10)

	var got *core.Message
	var gotFlags *core.Flags
	c.OnAppend(func(msg *core.Message, overridingFlags *core.Flags) {
		got, gotFlags = msg, overridingFlags
	})

	msg := chatMessage("1", "alice", "Alice", "hello")
	c.Append(msg, nil)

	if got != msg {
		t.Fatalf("expected on_append to fire with the appended message")
	}
	if gotFlags != nil {
		t.Fatalf("expected a nil overridingFlags when Append was called without one")
	}
	if !c.Chatters().Contains("Alice") {
		t.Fatalf("expected Alice to be indexed into the ChatterIndex")
	}
	if c.History().Len() != 1 {
		t.Fatalf("expected history length 1, got %d", c.History().Len())
	}
}

func TestAppendReturnsEvictedMessageAtCapacity(t *testing.T) {
	c := New("#chan", 2)
	c.Append(chatMessage("1", "a", "A", "one"), nil)
	c.Append(chatMessage("2", "b", "B", "two"), nil)

	evicted, didEvict := c.Append(chatMessage("3", "c", "C", "three"), nil)
	if !didEvict || evicted == nil || evicted.ID != "1" {
		t.Fatalf("expected message 1 to be evicted, got %+v (didEvict=%v)", evicted, didEvict)
	}
}

func TestAppendThreadsOverridingFlagsToListenersWithoutMutatingMessage(t *testing.T) {
	c := New("#chan", 10)

	var gotFlags *core.Flags
	c.OnAppend(func(msg *core.Message, overridingFlags *core.Flags) { gotFlags = overridingFlags })

	msg := chatMessage("1", "alice", "Alice", "hello")
	override := core.Highlighted
	c.Append(msg, &override)

	if gotFlags == nil || *gotFlags != core.Highlighted {
		t.Fatalf("expected on_append to receive the overriding flags, got %v", gotFlags)
	}
	if msg.Flags.Has(core.Highlighted) {
		t.Fatalf("expected overridingFlags to leave the stored message's own Flags untouched")
	}
}

func TestPrependBatchIndexesChattersAndFiresSignal(t *testing.T) {
	c := New("#chan", 10)

	var batches [][]*core.Message
	c.OnPrepend(func(batch []*core.Message) { batches = append(batches, batch) })

	admitted := c.PrependBatch([]*core.Message{
		chatMessage("1", "alice", "Alice", "a"),
		chatMessage("2", "bob", "Bob", "b"),
	})

	if len(admitted) != 2 {
		t.Fatalf("expected both messages admitted into empty history, got %d", len(admitted))
	}
	if len(batches) != 1 || len(batches[0]) != 2 {
		t.Fatalf("expected on_prepend to fire once with both messages, got %+v", batches)
	}
	if !c.Chatters().Contains("Bob") {
		t.Fatalf("expected Bob to be indexed from the prepended batch")
	}
}

func TestReplaceByIDFiresOnReplaceWithOldAndNew(t *testing.T) {
	c := New("#chan", 10)
	original := chatMessage("1", "alice", "Alice", "pending")
	c.Append(original, nil)

	var gotOld, gotNew *core.Message
	c.OnReplace(func(index int, old, new *core.Message) {
		gotOld, gotNew = old, new
	})

	replacement := chatMessage("1", "alice", "Alice", "confirmed")
	index, ok := c.ReplaceByID("1", replacement)
	if !ok || index != 0 {
		t.Fatalf("expected successful replace at index 0, got index=%d ok=%v", index, ok)
	}
	if gotOld != original || gotNew != replacement {
		t.Fatalf("expected on_replace to receive the original and replacement messages")
	}
}

func TestReplaceByIDReportsFailureForUnknownID(t *testing.T) {
	c := New("#chan", 10)
	c.Append(chatMessage("1", "alice", "Alice", "hi"), nil)

	_, ok := c.ReplaceByID("missing", chatMessage("missing", "alice", "Alice", "x"))
	if ok {
		t.Fatalf("expected ReplaceByID to fail for an id not present in history")
	}
}

func TestDisableMessagesByUserMarksOnlyThatUsersMessages(t *testing.T) {
	c := New("#chan", 10)
	c.Append(chatMessage("1", "alice", "Alice", "hi"), nil)
	c.Append(chatMessage("2", "bob", "Bob", "yo"), nil)
	c.Append(chatMessage("3", "alice", "Alice", "again"), nil)

	c.DisableMessagesByUser("alice")

	snap := c.History().Snapshot()
	if snap.Get(0).Flags.Has(core.Disabled) != true {
		t.Fatalf("expected alice's first message to be disabled")
	}
	if snap.Get(1).Flags.Has(core.Disabled) {
		t.Fatalf("expected bob's message to remain untouched")
	}
	if !snap.Get(2).Flags.Has(core.Disabled) {
		t.Fatalf("expected alice's second message to be disabled")
	}
}

func TestApplyTimeoutAppendsWhenNoPriorTimeoutExists(t *testing.T) {
	c := New("#chan", 10)
	c.Append(chatMessage("1", "alice", "Alice", "hi"), nil)

	c.ApplyTimeout("alice", 10*time.Second, "spam")

	if c.History().Len() != 2 {
		t.Fatalf("expected a new timeout message to be appended, history len = %d", c.History().Len())
	}
	last := c.History().Snapshot().Get(1)
	if !last.Flags.Has(core.Timeout) {
		t.Fatalf("expected the appended message to carry the Timeout flag")
	}
}

func TestApplyTimeoutCollapsesConsecutiveTimeoutsForSameUser(t *testing.T) {
	c := New("#chan", 10)
	c.ApplyTimeout("alice", 10*time.Second, "spam")
	c.ApplyTimeout("alice", 30*time.Second, "repeat spam")

	if c.History().Len() != 1 {
		t.Fatalf("expected the second timeout to replace the first in place, history len = %d", c.History().Len())
	}
}

func TestApplyClearChatAppendsThenReplacesOnRepeat(t *testing.T) {
	c := New("#chan", 10)
	now := time.Now()

	c.ApplyClearChat(now)
	if c.History().Len() != 1 {
		t.Fatalf("expected first clear-chat to append, history len = %d", c.History().Len())
	}

	c.ApplyClearChat(now.Add(time.Minute))
	if c.History().Len() != 1 {
		t.Fatalf("expected second clear-chat to replace the first in place, history len = %d", c.History().Len())
	}
}

func TestClearFiresOnClearAndEmptiesHistory(t *testing.T) {
	c := New("#chan", 10)
	c.Append(chatMessage("1", "alice", "Alice", "hi"), nil)

	fired := false
	c.OnClear(func() { fired = true })

	c.Clear()
	if !fired {
		t.Fatalf("expected on_clear to fire")
	}
	if c.History().Len() != 0 {
		t.Fatalf("expected history to be empty after Clear")
	}
}
