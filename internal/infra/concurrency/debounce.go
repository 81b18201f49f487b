// Package concurrency holds small thread-safety utilities shared across
// the chat-core components. This file implements Debouncer — a mechanism
// for coalescing repeated events keyed by an arbitrary string. It delays
// running a function until activity on the same key quiets down, then
// fires once for the "last word".
//
// Used by internal/app under the single key "image-generation" to coalesce
// bursts of image-generation bumps and emote-set dispatches into a single
// posted layouts.InvalidatePixels call. Guarantees: thread-safe, no blocking work performed
// under the lock, deferred functions run outside the critical section.

package concurrency

import (
	"context"
	"sync"
	"time"
)

// Debouncer groups repeated actions by key and runs each one only once
// after a quiet period. Thread-safe, so it can be shared across goroutines
// without extra synchronization.
type Debouncer struct {
	mu      sync.Mutex              // guards pending
	pending map[string]pendingEntry // active timers and their callbacks, keyed by key
	timeout time.Duration           // delay between the last event and running fn

	runMu  sync.Mutex         // serializes Start/Stop
	ctx    context.Context    // active context used to cancel the debouncer's work
	cancel context.CancelFunc // triggers shutdown and immediate flush of pending callbacks
	wg     sync.WaitGroup     // waits for the watcher goroutine to exit
}

// pendingEntry holds a timer and its deferred callback so a forced stop
// can invoke it manually.
type pendingEntry struct {
	timer *time.Timer
	fn    func()
}

// NewDebouncer creates a debouncer with the given delay (in milliseconds)
// between the last event and running the callback. The constructor only
// initializes the struct; lifecycle binding happens via Start.
func NewDebouncer(timeoutMS int) *Debouncer {
	return &Debouncer{
		pending: make(map[string]pendingEntry),
		timeout: time.Duration(timeoutMS) * time.Millisecond,
	}
}

// Start binds the Debouncer to ctx and launches a background goroutine
// that waits for cancellation and flushes any accumulated calls. Repeat
// calls are ignored; a nil context means "don't start".
func (d *Debouncer) Start(ctx context.Context) {
	if ctx == nil {
		return
	}
	d.runMu.Lock()
	defer d.runMu.Unlock()

	d.mu.Lock()
	if d.cancel != nil {
		d.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	d.ctx = runCtx
	d.cancel = cancel
	d.mu.Unlock()

	d.wg.Go(func() { d.waitCancel(runCtx) })
}

// Stop shuts the debouncer down: cancels its context, waits for the
// background goroutine to exit, and synchronously runs every pending
// callback. Guarantees no active timers or external references remain
// once it returns.
func (d *Debouncer) Stop() {
	d.runMu.Lock()
	var cancel context.CancelFunc
	d.mu.Lock()
	cancel = d.cancel
	d.cancel = nil
	d.ctx = nil
	d.mu.Unlock()
	d.runMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	d.wg.Wait()
	d.flushPending()
}

// Do registers fn for key and delays its run by timeout. A repeat call
// for the same key restarts the timer and replaces the callback. If the
// debouncer isn't running or its context is already cancelled, fn runs
// immediately with no delay.
func (d *Debouncer) Do(key string, fn func()) {
	d.mu.Lock()

	if d.ctx == nil || d.ctx.Err() != nil {
		d.mu.Unlock()
		fn()
		return
	}

	if entry, exists := d.pending[key]; exists {
		if entry.timer != nil {
			entry.timer.Stop()
		}
	}

	timer := time.AfterFunc(d.timeout, func() {
		d.execute(key)
	})
	d.pending[key] = pendingEntry{
		timer: timer,
		fn:    fn,
	}
	d.mu.Unlock()
}

// execute pops the pending callback for key under the lock, then runs it
// outside the critical section. A missing entry is normal (e.g. already
// flushed by Stop()).
func (d *Debouncer) execute(key string) {
	var fn func()

	d.mu.Lock()
	if entry, ok := d.pending[key]; ok {
		delete(d.pending, key)
		fn = entry.fn
	}
	d.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// waitCancel waits for context cancellation and flushes every pending callback.
func (d *Debouncer) waitCancel(ctx context.Context) {
	<-ctx.Done()
	d.flushPending()
}

// flushPending synchronously runs every accumulated callback. Stops
// timers and snapshots the callback list under the lock, then runs them
// outside the critical section.
func (d *Debouncer) flushPending() {
	var entries []pendingEntry

	d.mu.Lock()
	for id, entry := range d.pending {
		if entry.timer != nil {
			entry.timer.Stop()
		}
		entries = append(entries, entry)
		delete(d.pending, id)
	}
	d.mu.Unlock()

	for _, entry := range entries {
		entry.fn()
	}
}
