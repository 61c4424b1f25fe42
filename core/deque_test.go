package core

import (
	"runtime"
	"sync"
	"testing"

	"go.uber.org/atomic"
)

// newTagged is a tiny helper since taskItem.task is a Task, not an
// arbitrary closure type; tests only need the id field round-tripped.
func newTagged(id TaskID) taskItem {
	return taskItem{id: id}
}

// TestDeque_PushPopFrontFastPath exercises push_front/try_pop_front
// within the fast ring's capacity: LIFO order (push front, pop front)
// must return the most recently pushed element first.
func TestDeque_PushPopFrontFastPath(t *testing.T) {
	d := newDeque(16)
	for i := TaskID(0); i < 5; i++ {
		d.PushFront(newTagged(i))
	}
	for i := TaskID(4); ; i-- {
		item, ok := d.TryPopFront()
		if !ok {
			t.Fatalf("expected an item for id %d, got empty", i)
		}
		if item.id != i {
			t.Fatalf("got id %d, want %d", item.id, i)
		}
		if i == 0 {
			break
		}
	}
	if _, ok := d.TryPopFront(); ok {
		t.Fatal("expected deque to be empty")
	}
}

// TestDeque_PushBackPopBack verifies push_back/try_pop_back symmetry.
func TestDeque_PushBackPopBack(t *testing.T) {
	d := newDeque(16)
	for i := TaskID(0); i < 5; i++ {
		d.PushBack(newTagged(i))
	}
	for i := TaskID(4); ; i-- {
		item, ok := d.TryPopBack()
		if !ok {
			t.Fatalf("expected an item for id %d, got empty", i)
		}
		if item.id != i {
			t.Fatalf("got id %d, want %d", item.id, i)
		}
		if i == 0 {
			break
		}
	}
}

// TestDeque_StealFromBack models the worker-pool usage pattern: a
// "local" owner pushes to the front repeatedly (LIFO-local), and a
// "thief" pops from the back (FIFO-steal). The thief must observe
// elements in the order they were originally pushed (oldest first).
func TestDeque_StealFromBack(t *testing.T) {
	d := newDeque(16)
	for i := TaskID(0); i < 8; i++ {
		d.PushFront(newTagged(i))
	}
	// Oldest push (id 0) sits at the back; stealing pops it first.
	for i := TaskID(0); i < 8; i++ {
		item, ok := d.TryPopBack()
		if !ok {
			t.Fatalf("expected item %d", i)
		}
		if item.id != i {
			t.Fatalf("steal order: got %d, want %d", item.id, i)
		}
	}
}

// TestDeque_SlowPathSpillover pushes past the fast ring's usable
// capacity and verifies every element - fast and slow - is eventually
// observed exactly once. Per spec §4.1 FIFO is not guaranteed across
// the fast/slow boundary, so this only checks the multiset invariant.
func TestDeque_SlowPathSpillover(t *testing.T) {
	d := newDeque(8) // an 8-slot ring; at most size-2 = 6 items stay on the fast path
	const n = 100
	for i := TaskID(0); i < n; i++ {
		d.PushBack(newTagged(i))
	}
	seen := make(map[TaskID]bool)
	count := 0
	for {
		item, ok := d.TryPopFront()
		if !ok {
			break
		}
		if seen[item.id] {
			t.Fatalf("id %d popped twice", item.id)
		}
		seen[item.id] = true
		count++
	}
	if count != n {
		t.Fatalf("popped %d items, want %d", count, n)
	}
}

// TestDeque_SlowPathFrontIsLIFO verifies push_front/try_pop_front stays
// LIFO once items spill past the fast ring, per the slow path being a
// genuine double-ended structure (concurrent_dequeue.hpp's std::deque
// fallback) rather than a single FIFO that would reorder local,
// self-spawned children into submission order.
func TestDeque_SlowPathFrontIsLIFO(t *testing.T) {
	d := newDeque(8)
	for i := TaskID(0); i < 20; i++ {
		d.PushBack(newTagged(i)) // fills the ring; the rest overflow to slow
	}
	d.PushFront(newTagged(201))
	d.PushFront(newTagged(202))
	d.PushFront(newTagged(203))

	var frontOrder []TaskID
	for {
		item, ok := d.TryPopFront()
		if !ok {
			break
		}
		if item.id >= 200 {
			frontOrder = append(frontOrder, item.id)
		}
	}
	want := []TaskID{203, 202, 201}
	if len(frontOrder) != len(want) {
		t.Fatalf("got overflow front items %v, want %v", frontOrder, want)
	}
	for i := range want {
		if frontOrder[i] != want[i] {
			t.Fatalf("TryPopFront order = %v, want %v (push_front/pop_front must stay LIFO once spilled to the slow path)", frontOrder, want)
		}
	}
}

// TestDeque_SlowPathBackIsLIFO is the back-side mirror of
// TestDeque_SlowPathFrontIsLIFO: push_back/try_pop_back must also stay
// LIFO once spilled, matching the fast ring's own push_back/pop_back
// pair.
func TestDeque_SlowPathBackIsLIFO(t *testing.T) {
	d := newDeque(8)
	for i := TaskID(0); i < 20; i++ {
		d.PushBack(newTagged(i)) // fills the ring; the rest overflow to slow
	}
	d.PushBack(newTagged(301))
	d.PushBack(newTagged(302))
	d.PushBack(newTagged(303))

	var backOrder []TaskID
	for {
		item, ok := d.TryPopBack()
		if !ok {
			break
		}
		if item.id >= 300 {
			backOrder = append(backOrder, item.id)
		}
	}
	want := []TaskID{303, 302, 301}
	if len(backOrder) != len(want) {
		t.Fatalf("got overflow back items %v, want %v", backOrder, want)
	}
	for i := range want {
		if backOrder[i] != want[i] {
			t.Fatalf("TryPopBack order = %v, want %v (push_back/pop_back must stay LIFO once spilled to the slow path)", backOrder, want)
		}
	}
}

// TestDeque_ConcurrentStress is property 1 / scenario S6: with several
// producers pushing and several consumers popping concurrently, the
// multiset of popped elements must equal the multiset pushed.
func TestDeque_ConcurrentStress(t *testing.T) {
	d := newDeque(64)
	const producers = 4
	const consumers = 4
	const perProducer = 5000
	const total = producers * perProducer

	var produced sync.WaitGroup
	for p := 0; p < producers; p++ {
		produced.Add(1)
		go func(base TaskID) {
			defer produced.Done()
			for i := TaskID(0); i < perProducer; i++ {
				id := base + i
				if id%2 == 0 {
					d.PushFront(newTagged(id))
				} else {
					d.PushBack(newTagged(id))
				}
			}
		}(TaskID(p * perProducer))
	}

	results := make(chan TaskID, total)
	var drained atomic.Int64
	var consumed sync.WaitGroup
	for c := 0; c < consumers; c++ {
		consumed.Add(1)
		go func() {
			defer consumed.Done()
			for drained.Load() < total {
				item, ok := d.TryPopFront()
				if !ok {
					item, ok = d.TryPopBack()
				}
				if !ok {
					runtime.Gosched()
					continue
				}
				results <- item.id
				drained.Inc()
			}
		}()
	}

	produced.Wait()
	consumed.Wait()
	close(results)

	seen := make(map[TaskID]bool, total)
	for id := range results {
		if seen[id] {
			t.Fatalf("id %d observed twice", id)
		}
		seen[id] = true
	}
	if len(seen) != total {
		t.Fatalf("observed %d distinct items, want %d", len(seen), total)
	}
}

// TestDeque_UnsafeClear verifies UnsafeClear discards both fast and
// slow resident items and leaves the deque poppable as empty.
func TestDeque_UnsafeClear(t *testing.T) {
	d := newDeque(8)
	for i := TaskID(0); i < 50; i++ {
		d.PushBack(newTagged(i))
	}
	d.UnsafeClear()
	if _, ok := d.TryPopFront(); ok {
		t.Fatal("expected empty deque after UnsafeClear")
	}
	if n := d.Len(); n != 0 {
		t.Fatalf("Len() = %d after UnsafeClear, want 0", n)
	}
}
