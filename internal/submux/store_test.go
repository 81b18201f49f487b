package submux

import (
	"path/filepath"
	"testing"

	"github.com/kurtskinny/twitch-chat-core/internal/eventclient"
)

func TestStoreSaveThenLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subs.bolt")
	store, err := OpenStore(path)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer func() { _ = store.Close() }()

	subs := []eventclient.Subscription{
		{Kind: "channel.chat", Condition: eventclient.Condition{ChannelID: "a"}},
		{Kind: "channel.chat", Condition: eventclient.Condition{ChannelID: "b"}},
	}
	if err := store.Save(subs); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != len(subs) {
		t.Fatalf("expected %d subscriptions, got %d", len(subs), len(got))
	}
}

func TestStoreLoadReturnsEmptyBeforeAnySave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subs.bolt")
	store, err := OpenStore(path)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer func() { _ = store.Close() }()

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no subscriptions before any Save, got %d", len(got))
	}
}
