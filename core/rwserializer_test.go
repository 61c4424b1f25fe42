package core

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"go.uber.org/atomic"
)

// TestRWSerializer_NoWriterOverlap is half of property 4: a writer task
// records whether any other writer or reader was active concurrently;
// none ever should be.
func TestRWSerializer_NoWriterOverlap(t *testing.T) {
	pool := NewWorkerPool(8, nil)
	pool.Start()
	defer pool.Stop()

	s := NewPoolRWSerializer("no-overlap", pool)
	defer s.Shutdown()

	var activeReaders, activeWriters atomic.Int64
	var violated atomic.Bool
	group := NewTaskGroup()

	for i := 0; i < 20; i++ {
		s.PostReadTaskWithTraits(func(ctx context.Context) {
			activeReaders.Inc()
			if activeWriters.Load() != 0 {
				violated.Store(true)
			}
			time.Sleep(time.Millisecond)
			activeReaders.Dec()
		}, TaskTraits{Group: group})
		s.PostWriteTaskWithTraits(func(ctx context.Context) {
			activeWriters.Inc()
			if activeReaders.Load() != 0 || activeWriters.Load() != 1 {
				violated.Store(true)
			}
			time.Sleep(time.Millisecond)
			activeWriters.Dec()
		}, TaskTraits{Group: group})
	}

	waitIdle(t, group, 3*time.Second)

	if violated.Load() {
		t.Fatal("observed a writer overlapping a reader or another writer")
	}
}

// TestRWSerializer_WriterOrderPreserved is the ordering half of
// property 4: writers posted in sequence must start in that same
// sequence, matching spec §4.7's "Writer order preserved."
func TestRWSerializer_WriterOrderPreserved(t *testing.T) {
	pool := NewWorkerPool(4, nil)
	pool.Start()
	defer pool.Stop()

	s := NewPoolRWSerializer("writer-order", pool)
	defer s.Shutdown()

	var mu sync.Mutex
	var order []int
	group := NewTaskGroup()

	for i := 0; i < 15; i++ {
		idx := i
		s.PostWriteTaskWithTraits(func(ctx context.Context) {
			time.Sleep(time.Duration(rand.Intn(500)) * time.Microsecond)
			mu.Lock()
			order = append(order, idx)
			mu.Unlock()
		}, TaskTraits{Group: group})
	}

	waitIdle(t, group, 3*time.Second)

	mu.Lock()
	defer mu.Unlock()
	for i, v := range order {
		if v != i {
			t.Fatalf("writer order[%d] = %d, want %d (full: %v)", i, v, i, order)
		}
	}
}

// TestRWSerializer_WriterPriority is scenario S3: enqueue read, write,
// read x9 in that order. The single writer's recorded position must
// equal its enqueue index (1), every read enqueued before it must
// finish before it starts, and every read enqueued after it must
// finish after it starts.
func TestRWSerializer_WriterPriority(t *testing.T) {
	pool := NewWorkerPool(8, nil)
	pool.Start()
	defer pool.Stop()

	s := NewPoolRWSerializer("priority", pool)
	defer s.Shutdown()

	var mu sync.Mutex
	var events []string
	record := func(e string) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	}

	group := NewTaskGroup()
	jitter := func() { time.Sleep(time.Duration(rand.Intn(300)) * time.Microsecond) }

	// enqueue order: read0, write, read1..read9
	s.PostReadTaskWithTraits(func(ctx context.Context) {
		jitter()
		record("read0")
	}, TaskTraits{Group: group})

	s.PostWriteTaskWithTraits(func(ctx context.Context) {
		jitter()
		record("write")
	}, TaskTraits{Group: group})

	for i := 1; i <= 9; i++ {
		s.PostReadTaskWithTraits(func(ctx context.Context) {
			jitter()
			record("readN")
		}, TaskTraits{Group: group})
	}

	waitIdle(t, group, 3*time.Second)

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 11 {
		t.Fatalf("expected 11 events, got %d: %v", len(events), events)
	}
	writeIdx := -1
	for i, e := range events {
		if e == "write" {
			writeIdx = i
			break
		}
	}
	if writeIdx != 1 {
		t.Fatalf("write finished at position %d, want 1 (reads enqueued before it finish first): %v", writeIdx, events)
	}
	if events[0] != "read0" {
		t.Fatalf("read0 (enqueued before the writer) must finish before it: %v", events)
	}
	for i := 2; i < len(events); i++ {
		if events[i] != "readN" {
			t.Fatalf("event[%d] = %q, expected a post-writer read: %v", i, events[i], events)
		}
	}
}
