// Package history implements the bounded, per-channel message buffer:
// tail append (hot path), head back-fill, index/id replacement, and O(1)
// point-in-time snapshots. Storage is a chunked deque of fixed-size
// immutable-once-full chunks, grounded on spec.md §4.1's storage
// description and adapted from the teacher's single-writer-mutex +
// reference-counted-snapshot shape used for session/state persistence
// (internal/infra/telegram/session), generalized here to an in-memory
// ring rather than a file.
package history

import (
	"sync"

	"github.com/kurtskinny/twitch-chat-core/internal/core"
	"github.com/kurtskinny/twitch-chat-core/internal/infra/logger"
)

// chunkSize is the fixed slot count per chunk, per spec.md §4.1.
const chunkSize = 100

// chunk is a fixed-size array of message pointers. A written slot is
// never overwritten in place (replacement clones the chunk): appends fill
// unwritten slots past backEnd in the tail chunk and front insertions fill
// unwritten slots before frontOffset in the head chunk, so existing
// snapshots (which capture their own frontOffset/backEnd) never observe
// those writes.
type chunk struct {
	items [chunkSize]*core.Message
}

// History is a bounded, insertion-ordered sequence of *core.Message with
// capacity C. A single mutex serializes all writers (Append, PrependBatch,
// ReplaceAt, ReplaceWhere, ReplaceByID, DisableAll, Clear). Readers never
// take the mutex: Snapshot swaps in the chunk vector under the lock and
// returns a value that shares chunk storage via Go's ordinary GC
// (equivalent to the source's reference counting).
type History struct {
	mu sync.Mutex

	capacity int

	chunks      []*chunk
	frontOffset int // index into chunks[0] of the logical head
	backEnd     int // one-past-end index into the last chunk of the logical tail
	size        int
}

// New creates an empty History with the given capacity. A non-positive
// capacity is treated as 1 (a zero-capacity history that always evicts on
// append is nonsensical, and the teacher's pattern of a debug assertion in
// misuse cases is preserved as a logged warning rather than a panic).
func New(capacity int) *History {
	if capacity <= 0 {
		logger.Warnf("history: constructed with non-positive capacity %d; clamping to 1", capacity)
		capacity = 1
	}
	return &History{capacity: capacity}
}

// Capacity returns the configured capacity C.
func (h *History) Capacity() int {
	return h.capacity
}

// Len returns the current size under lock.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.size
}

// Append adds msg at the logical tail. If the history is at capacity, the
// head message is evicted and returned; otherwise the second return value
// reports false. Never fails.
func (h *History) Append(msg *core.Message) (evicted *core.Message, didEvict bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.size >= h.capacity {
		evicted = h.evictFrontLocked()
		didEvict = true
	}
	h.pushBackLocked(msg)
	return evicted, didEvict
}

// PrependBatch bulk-admits msgs at the logical head, in forward order.
// Only as many as remaining capacity allows are admitted; when the batch
// exceeds remaining space, the *suffix* of msgs wins (admitted-is-suffix,
// per spec.md's resolved Open Question — confirmed against
// original_source/src/messages/LimitedQueue.hpp's iteration direction).
// Returns exactly the admitted subset, in the order they now occupy the
// head of the history.
func (h *History) PrependBatch(msgs []*core.Message) []*core.Message {
	h.mu.Lock()
	defer h.mu.Unlock()

	space := h.capacity - h.size
	if space <= 0 || len(msgs) == 0 {
		return nil
	}

	admitCount := len(msgs)
	if admitCount > space {
		admitCount = space
	}
	// Suffix of the input wins when over capacity.
	admitted := msgs[len(msgs)-admitCount:]

	for i := len(admitted) - 1; i >= 0; i-- {
		h.pushFrontLocked(admitted[i])
	}
	return admitted
}

// ReplaceAt replaces the message at logical index i with newMsg. Returns
// false if i is out of range.
func (h *History) ReplaceAt(i int, newMsg *core.Message) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.replaceAtLocked(i, newMsg)
}

// ReplaceWhere scans head to tail for the first message equal to old
// (pointer identity) and replaces it with newMsg, returning the index of
// the replacement. Returns -1, false if no match is found.
func (h *History) ReplaceWhere(old, newMsg *core.Message) (int, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i := 0; i < h.size; i++ {
		if h.getLocked(i) == old {
			h.replaceAtLocked(i, newMsg)
			return i, true
		}
	}
	return -1, false
}

// ReplaceByID scans head to tail for the first message with ID == id and
// replaces it with newMsg, returning the index of the replacement. An
// empty id always returns -1, false immediately.
func (h *History) ReplaceByID(id string, newMsg *core.Message) (int, bool) {
	if id == "" {
		return -1, false
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for i := 0; i < h.size; i++ {
		if m := h.getLocked(i); m != nil && m.ID == id {
			h.replaceAtLocked(i, newMsg)
			return i, true
		}
	}
	return -1, false
}

// FindByID scans head to tail for a message with ID == id.
func (h *History) FindByID(id string) *core.Message {
	if id == "" {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	for i := 0; i < h.size; i++ {
		if m := h.getLocked(i); m != nil && m.ID == id {
			return m
		}
	}
	return nil
}

// DisableAll replaces every currently-enabled message with a flagged copy
// carrying the Disabled bit. A no-op (no chunk copy, no generation bump)
// if every message is already disabled, per spec.md §4.1's tie-break.
func (h *History) DisableAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	anyChanged := false
	for i := 0; i < h.size; i++ {
		m := h.getLocked(i)
		if m == nil || m.Flags.Has(core.Disabled) {
			continue
		}
		h.replaceAtLocked(i, m.WithFlags(core.Disabled))
		anyChanged = true
	}
	if !anyChanged {
		return
	}
}

// Clear empties the history. Existing snapshots remain valid and
// unaffected since they hold their own chunk-vector reference.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.chunks = nil
	h.frontOffset = 0
	h.backEnd = 0
	h.size = 0
}

// Snapshot captures the current chunk vector, offsets, and size. The
// result is O(1) to produce and remains valid regardless of subsequent
// History writes, because writers only ever grow into fresh slots or
// publish copy-on-write chunk replacements rather than mutating chunks a
// snapshot has already captured.
func (h *History) Snapshot() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()

	return Snapshot{
		chunks:      h.chunks,
		frontOffset: h.frontOffset,
		size:        h.size,
	}
}

// getLocked returns the message at logical index i, or nil if out of
// range. Caller must hold h.mu.
func (h *History) getLocked(i int) *core.Message {
	if i < 0 || i >= h.size {
		return nil
	}
	chunkIdx, slotIdx := h.physicalIndex(i)
	return h.chunks[chunkIdx].items[slotIdx]
}

// replaceAtLocked performs a copy-on-write replacement of the chunk
// holding logical index i: the chunks slice itself (and thus the entire
// chunk backing the index) is cloned so any snapshot still referencing
// the old chunks slice is unaffected. Caller must hold h.mu.
func (h *History) replaceAtLocked(i int, newMsg *core.Message) bool {
	if i < 0 || i >= h.size {
		return false
	}
	chunkIdx, slotIdx := h.physicalIndex(i)

	newChunks := make([]*chunk, len(h.chunks))
	copy(newChunks, h.chunks)

	cloned := *newChunks[chunkIdx]
	cloned.items[slotIdx] = newMsg
	newChunks[chunkIdx] = &cloned

	h.chunks = newChunks
	return true
}

// physicalIndex maps a logical 0-based index to (chunkIdx, slotIdx).
func (h *History) physicalIndex(i int) (chunkIdx, slotIdx int) {
	absolute := h.frontOffset + i
	return absolute / chunkSize, absolute % chunkSize
}

// pushBackLocked appends msg at the logical tail, growing the chunk list
// if the current tail chunk is full. Caller must hold h.mu.
func (h *History) pushBackLocked(msg *core.Message) {
	if len(h.chunks) == 0 || h.backEnd == chunkSize {
		h.chunks = append(h.chunks, &chunk{})
		h.backEnd = 0
	}
	h.chunks[len(h.chunks)-1].items[h.backEnd] = msg
	h.backEnd++
	h.size++
}

// pushFrontLocked inserts msg immediately before the logical head,
// growing a new head chunk if the current head chunk has no free slots
// before frontOffset. Caller must hold h.mu; caller must have already
// verified capacity allows this.
func (h *History) pushFrontLocked(msg *core.Message) {
	if len(h.chunks) == 0 || h.frontOffset == 0 {
		newChunk := &chunk{}
		newChunks := make([]*chunk, 0, len(h.chunks)+1)
		newChunks = append(newChunks, newChunk)
		newChunks = append(newChunks, h.chunks...)
		h.chunks = newChunks
		h.frontOffset = chunkSize
		if len(h.chunks) == 1 {
			// Brand-new history: the single chunk is also the tail chunk.
			h.backEnd = chunkSize
		}
	}
	h.frontOffset--
	h.chunks[0].items[h.frontOffset] = msg
	h.size++
}

// evictFrontLocked drops the logical head message and returns it,
// advancing frontOffset (and dropping the now-empty leading chunk via a
// cheap reslice, never mutating its backing array). Caller must hold h.mu
// and must have verified size > 0.
func (h *History) evictFrontLocked() *core.Message {
	evicted := h.chunks[0].items[h.frontOffset]
	h.frontOffset++
	h.size--
	if h.frontOffset == chunkSize {
		h.chunks = h.chunks[1:]
		h.frontOffset = 0
	}
	return evicted
}

// Snapshot is an immutable, point-in-time view over a History's contents.
// Cheaply copyable: it shares chunk storage with the live History (or
// with other snapshots) via ordinary Go references.
type Snapshot struct {
	chunks      []*chunk
	frontOffset int
	size        int
}

// Len returns the number of messages captured in the snapshot.
func (s Snapshot) Len() int {
	return s.size
}

// Get returns the message at logical index i, or nil if out of range.
func (s Snapshot) Get(i int) *core.Message {
	if i < 0 || i >= s.size {
		return nil
	}
	absolute := s.frontOffset + i
	chunkIdx := absolute / chunkSize
	slotIdx := absolute % chunkSize
	if chunkIdx >= len(s.chunks) {
		return nil
	}
	return s.chunks[chunkIdx].items[slotIdx]
}

// All materializes the snapshot into a plain slice, in order. Convenience
// for callers that want to range over the whole thing; prefer Get for
// random access on large snapshots.
func (s Snapshot) All() []*core.Message {
	out := make([]*core.Message, s.size)
	for i := 0; i < s.size; i++ {
		out[i] = s.Get(i)
	}
	return out
}
