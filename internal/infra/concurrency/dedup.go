// Package concurrency holds small thread-safety utilities shared across
// the chat-core components. This file contains Deduplicator — a
// thread-safe "seen recently" cache that suppresses repeat processing of
// events within a configurable time window. Wired into app.handleDispatch
// to collapse duplicate dispatch deliveries: submux's pool-growth and
// resubscribe-replay logic can briefly leave the same topic owned by two
// pooled eventclients, so the same dispatch body can arrive twice within
// a couple seconds of itself. Keyed on the raw event type+body rather
// than anything content-aware, since a true duplicate delivery is a
// byte-for-byte repeat, not a near-miss.

package concurrency

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kurtskinny/twitch-chat-core/internal/infra/logger"
)

// Deduplicator stores "signatures" of recently processed events and
// decides whether a new event should be treated as a repeat within the
// configured window. Thread-safe.
type Deduplicator struct {
	mu     sync.Mutex           // guards seen from concurrent goroutines
	seen   map[string]time.Time // key -> expireAt; lets a repeat check be a single map lookup
	window time.Duration        // dedup window; an event is a repeat until expireAt passes

	runMu  sync.Mutex         // guards start/stop of the background sweep
	cancel context.CancelFunc // cancels the sweep loop, if started
	wg     sync.WaitGroup     // waits for the sweep goroutine on Stop
}

// NewDeduplicator creates a dedup cache with a window of windowSec
// seconds. A zero window suppresses repeats only at the exact same
// instant, so a positive window (e.g. 60s) is normally what's wanted.
func NewDeduplicator(windowSec int) *Deduplicator {
	return &Deduplicator{
		seen:   make(map[string]time.Time),
		window: time.Duration(windowSec) * time.Second,
	}
}

// Start launches a background goroutine that sweeps expired keys.
// Repeat calls are ignored. A nil context cancels the start.
func (d *Deduplicator) Start(ctx context.Context) {
	if ctx == nil {
		return
	}

	d.runMu.Lock()
	defer d.runMu.Unlock()

	if d.cancel != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.wg.Go(func() {
		// Sweep once a minute so the map doesn't grow without bound.
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				d.DedupCleanup()
			}
		}
	})
}

// Stop shuts down the background sweep and waits for it to exit,
// guaranteeing no concurrent map mutation during shutdown.
func (d *Deduplicator) Stop() {
	d.runMu.Lock()
	cancel := d.cancel
	d.cancel = nil
	d.runMu.Unlock()

	if cancel == nil {
		return
	}

	cancel()
	d.wg.Wait()
}

// DedupSeen reports whether key has already been seen within the window.
// Returns true if the record is still live (a repeat); otherwise it
// registers a fresh record expiring after d.window and returns false.
func (d *Deduplicator) DedupSeen(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	if exp, ok := d.seen[key]; ok && now.Before(exp) {
		logger.Debug(fmt.Sprintf("dedup seen: %v", key))
		return true
	}
	d.seen[key] = now.Add(d.window)
	return false
}

// DedupCleanup removes every expired record from the map. Thread-safe;
// can be called from the background sweep (via Start) or synchronously.
func (d *Deduplicator) DedupCleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	for k, exp := range d.seen {
		if now.After(exp) {
			delete(d.seen, k)
		}
	}
}
