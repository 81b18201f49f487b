package uidispatch

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestPostRunsInOrder(t *testing.T) {
	q := New(8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	wg.Add(5)
	for i := 0; i < 5; i++ {
		i := i
		q.Post(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			wg.Done()
		})
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	for i, v := range order {
		if v != i {
			t.Fatalf("expected in-order execution, got %v", order)
		}
	}
}

func TestPostedTaskCanPostWithoutDeadlock(t *testing.T) {
	q := New(8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	done := make(chan struct{})
	q.Post(func() {
		q.Post(func() {
			close(done)
		})
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("nested Post deadlocked")
	}
}

func TestPanicInTaskDoesNotStopQueue(t *testing.T) {
	q := New(8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	q.Post(func() { panic("boom") })

	done := make(chan struct{})
	q.Post(func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("queue stopped draining after a panicking task")
	}
}

func TestTryPostReportsFullBuffer(t *testing.T) {
	q := New(1)
	block := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if !q.TryPost(func() { <-block }) {
		t.Fatalf("expected first TryPost to succeed")
	}
	if q.TryPost(func() {}) {
		t.Fatalf("expected second TryPost to fail: buffer already holds one pending task")
	}

	go q.Run(ctx)
	close(block)
}
