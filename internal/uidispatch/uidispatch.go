// Package uidispatch is the single-goroutine task queue standing in for
// spec.md §5's UI scheduler: a strictly single-threaded, cooperative
// drain loop that the invalidation signals internal/app wires (image
// generation bumps, emote-set dispatches) post onto rather than running
// directly on a background goroutine. Grounded on the teacher's
// lifecycle.Manager run-loop shape (one dedicated goroutine, a done
// channel, context-driven shutdown) but scoped down to exactly one
// concern: ordered, non-reentrant delivery of posted closures.
package uidispatch

import (
	"context"

	"github.com/kurtskinny/twitch-chat-core/internal/infra/logger"
)

// Queue is a channel-backed task queue. Any goroutine may Post a
// closure; exactly one dedicated goroutine (started by Run) drains and
// executes them in the order they were posted. Run never re-enters
// itself: a closure that calls Post does not execute synchronously.
type Queue struct {
	tasks chan func()
}

// New returns a Queue with the given pending-task buffer size. A size of
// 0 makes Post block until the drain loop is ready for the next task,
// matching spec.md §5's "no lock is held across a scheduler hand-off".
func New(buffer int) *Queue {
	return &Queue{tasks: make(chan func(), buffer)}
}

// Post enqueues fn for execution on the queue's single drain goroutine.
// Safe to call from any goroutine, including from within a task running
// on the queue itself (the closure still runs on a later drain
// iteration, never synchronously). Post blocks while the buffer is full,
// so a task that Posts onto its own queue with no free buffer slot
// blocks the drain goroutine for good.
func (q *Queue) Post(fn func()) {
	q.tasks <- fn
}

// TryPost enqueues fn without blocking. Reports whether it was enqueued;
// false means the buffer was full and the caller should shed load rather
// than stall an unrelated goroutine.
func (q *Queue) TryPost(fn func()) bool {
	select {
	case q.tasks <- fn:
		return true
	default:
		return false
	}
}

// Run drains tasks on the calling goroutine until ctx is canceled. A
// panicking task is recovered and logged rather than taking down the
// whole drain loop, since a single malformed invalidation handler must
// not stop every other queued repaint.
func (q *Queue) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-q.tasks:
			runTask(fn)
		}
	}
}

func runTask(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("uidispatch: recovered panic in posted task: %v", r)
		}
	}()
	fn()
}
