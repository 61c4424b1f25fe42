package core

import "sync"

// worker is a stable record owned by the pool: an owned deque, a
// parking primitive, and an index. Fixed workers exist for the
// process lifetime of the pool; transient workers (enrolled by
// SpawnAndWait when called from a non-worker goroutine) live only for
// the duration of one wait.
type worker struct {
	id    int
	deque *deque

	mu     sync.Mutex
	cond   *sync.Cond
	parked bool
}

func newWorker(id int) *worker {
	w := &worker{id: id, deque: newDeque(defaultRingSize)}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// wakeIfParked signals the worker only if it is currently parked,
// matching spec §4.3: "If no worker is sleeping, the signal is a
// no-op." Returns whether it woke anyone.
func (w *worker) wakeIfParked() bool {
	w.mu.Lock()
	wasParked := w.parked
	if wasParked {
		w.parked = false
		w.cond.Signal()
	}
	w.mu.Unlock()
	return wasParked
}

// forceWake signals the worker unconditionally, used at shutdown so a
// parked worker is guaranteed to re-check the stopping flag.
func (w *worker) forceWake() {
	w.mu.Lock()
	w.parked = false
	w.cond.Signal()
	w.mu.Unlock()
}

// parkUntil blocks the worker's goroutine until woken or stopped
// returns true. recheck is called once, under w.mu, right after parked
// is published - this closes the gap between the caller's own
// lock-free checks (own deque, steal, external channel) and the point
// where a waker can actually observe parked==true: anything enqueued
// or pushed in that gap is visible to recheck under the same lock that
// wakeIfParked/forceWake use to test and clear parked, so no wakeup
// can be dropped on the floor. If recheck finds work, parkUntil
// returns it instead of sleeping.
func (w *worker) parkUntil(stopped func() bool, recheck func() (taskItem, bool)) (taskItem, bool) {
	w.mu.Lock()
	if stopped() {
		w.mu.Unlock()
		return taskItem{}, false
	}
	w.parked = true
	if item, ok := recheck(); ok {
		w.parked = false
		w.mu.Unlock()
		return item, true
	}
	for w.parked && !stopped() {
		w.cond.Wait()
	}
	w.parked = false
	w.mu.Unlock()
	return taskItem{}, false
}
