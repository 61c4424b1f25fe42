package core

import (
	"container/list"
	"sync"

	"go.uber.org/atomic"
)

// defaultRingSize is the fast-ring size for a freshly created worker
// deque: at least twice the expected concurrency, per spec.
const defaultRingSize = 256

// deque is a per-worker double-ended task container: a bounded
// lock-free fast ring plus an unbounded mutex-guarded slow spillover
// deque. Both paths are genuinely double-ended - push_front/pop_back
// retain their documented direction once an item spills to the slow
// path, matching the original concurrent_dequeue's std::deque
// fallback. Order is preserved within each path but not across the
// fast/slow boundary - a documented loss, not a bug.
type deque struct {
	fast *ring

	slowMu      sync.Mutex
	slow        *list.List
	slowLenHint atomic.Int32
}

func newDeque(fastSize int) *deque {
	return &deque{fast: newRing(fastSize), slow: list.New()}
}

func (d *deque) PushBack(item taskItem) {
	if d.fast.pushBack(item) {
		return
	}
	d.slowMu.Lock()
	d.slow.PushBack(item)
	d.slowMu.Unlock()
	d.slowLenHint.Inc()
}

func (d *deque) PushFront(item taskItem) {
	if d.fast.pushFront(item) {
		return
	}
	d.slowMu.Lock()
	d.slow.PushFront(item)
	d.slowMu.Unlock()
	d.slowLenHint.Inc()
}

func (d *deque) TryPopFront() (taskItem, bool) {
	if item, ok := d.fast.popFront(); ok {
		return item, true
	}
	return d.popSlowFront()
}

func (d *deque) TryPopBack() (taskItem, bool) {
	if item, ok := d.fast.popBack(); ok {
		return item, true
	}
	return d.popSlowBack()
}

func (d *deque) popSlowFront() (taskItem, bool) {
	if d.slowLenHint.Load() == 0 {
		return taskItem{}, false
	}
	d.slowMu.Lock()
	defer d.slowMu.Unlock()
	e := d.slow.Front()
	if e == nil {
		return taskItem{}, false
	}
	d.slow.Remove(e)
	d.slowLenHint.Dec()
	return e.Value.(taskItem), true
}

func (d *deque) popSlowBack() (taskItem, bool) {
	if d.slowLenHint.Load() == 0 {
		return taskItem{}, false
	}
	d.slowMu.Lock()
	defer d.slowMu.Unlock()
	e := d.slow.Back()
	if e == nil {
		return taskItem{}, false
	}
	d.slow.Remove(e)
	d.slowLenHint.Dec()
	return e.Value.(taskItem), true
}

// UnsafeClear discards every task currently resident, fast and slow.
// Used only at pool shutdown, where discarding queued tasks is the
// documented behavior.
func (d *deque) UnsafeClear() {
	for {
		if _, ok := d.fast.popFront(); !ok {
			break
		}
	}
	d.slowMu.Lock()
	d.slow.Init()
	d.slowMu.Unlock()
	d.slowLenHint.Store(0)
}

// Len is a best-effort size estimate for observability only.
func (d *deque) Len() int {
	start, end := unpackIdx(d.fast.idx.Load())
	return int(end-start) + int(d.slowLenHint.Load())
}
