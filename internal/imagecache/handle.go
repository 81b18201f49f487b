package imagecache

import (
	"sync"
	"time"
)

// handleState is the lifecycle state of a single Handle.
type handleState int

const (
	// NotStarted means no fetch has been scheduled yet.
	NotStarted handleState = iota
	// Loading means a fetch is outstanding.
	Loading
	// Ready means at least one frame has decoded.
	Ready
	// Failed is a terminal state: the fetch or decode failed and no
	// retry will ever be scheduled. Emote/badge URLs are effectively
	// immutable in practice, so retry loops would only thrash — per
	// spec.md's resolved Open Question, Failed is explicit rather than
	// leaving the handle stuck in Loading forever.
	Failed
)

// Handle is a sharable reference to an ImageResource. The same Handle
// pointer is returned to every caller requesting the same URL; readers
// see updated pixels on their next poll once decoding completes.
type Handle struct {
	url string

	mu           sync.Mutex
	state        handleState
	frames       []Frame
	currentFrame int
	accumulator  time.Duration
	lastAdvance  time.Time
	isAnimated   bool

	// scheduleFetch is invoked at most once per handle, the first time a
	// caller asks for pixels on a NotStarted handle. Supplied by Cache so
	// Handle itself stays decode/transport agnostic.
	scheduleFetch func(h *Handle)
}

// URL returns the handle's source URL.
func (h *Handle) URL() string {
	return h.url
}

// Pixels returns the current frame. Returns ok=false until the first
// frame has decoded. The first call on a NotStarted handle transitions it
// to Loading and schedules exactly one fetch.
func (h *Handle) Pixels() (Frame, bool) {
	h.mu.Lock()
	state := h.state
	if state == NotStarted {
		h.state = Loading
	}
	var frame Frame
	if state == Ready && len(h.frames) > 0 {
		frame = h.frames[h.currentFrame]
	}
	h.mu.Unlock()

	if state == NotStarted {
		h.scheduleFetch(h)
	}
	return frame, state == Ready && frame.Pixels != nil
}

// IsAnimated reports whether more than one frame was decoded.
func (h *Handle) IsAnimated() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.isAnimated
}

// State returns the handle's current lifecycle state.
func (h *Handle) State() handleState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Advance advances the current-frame cursor for animated handles
// according to per-frame durations. Idempotent within a tick: repeated
// calls with the same now only advance as much wall-clock time as has
// actually elapsed since the last call.
func (h *Handle) Advance(now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.isAnimated || h.state != Ready || len(h.frames) == 0 {
		h.lastAdvance = now
		return
	}

	if h.lastAdvance.IsZero() {
		h.lastAdvance = now
		return
	}
	elapsed := now.Sub(h.lastAdvance)
	if elapsed <= 0 {
		return
	}
	h.lastAdvance = now
	h.accumulator += elapsed

	for h.accumulator >= h.frames[h.currentFrame].Duration {
		h.accumulator -= h.frames[h.currentFrame].Duration
		h.currentFrame = (h.currentFrame + 1) % len(h.frames)
	}
}

// markReady publishes decoded frames and flips the handle to Ready. The
// first frame becomes current immediately.
func (h *Handle) markReady(frames []Frame) {
	h.mu.Lock()
	h.frames = frames
	h.currentFrame = 0
	h.isAnimated = len(frames) > 1
	h.state = Ready
	h.mu.Unlock()
}

// markFailed flips the handle to the terminal Failed state.
func (h *Handle) markFailed() {
	h.mu.Lock()
	h.state = Failed
	h.mu.Unlock()
}
