package core

import (
	"context"
	"sync"
	"time"

	"go.uber.org/atomic"
	"golang.org/x/sync/semaphore"
)

// NSerializer is the bounded-parallelism executor (spec §4.6): up to N
// of its tasks may run concurrently, beyond which further tasks queue
// FIFO until a running slot frees up. Ordering across the queue is
// preserved; ordering among the up-to-N concurrently admitted tasks is
// not.
//
// Grounded on core/parallel_task_runner.go's admission-gate shape, but
// the gate itself is golang.org/x/sync/semaphore.Weighted rather than a
// hand-rolled counter: acquiring a weighted semaphore of weight 1 per
// task is exactly the "at most N concurrent" admission rule, and
// TryAcquire gives the non-blocking probe a worker needs to decide
// "run now" vs "queue" without ever parking a worker goroutine.
type NSerializer struct {
	name string

	base TaskRunner
	pool *WorkerPool

	limit int64
	sem   *semaphore.Weighted

	errorHandler ErrorHandler

	pendingMu sync.Mutex
	pending   []taskItem

	running  atomic.Int64
	rejected atomic.Int64

	delayOnce sync.Once
	delayMgr  *DelayManager
}

// NewNSerializer creates an NSerializer admitting up to n concurrent
// tasks through base. n<=0 is treated as 1.
func NewNSerializer(name string, base TaskRunner, n int) *NSerializer {
	if n <= 0 {
		n = 1
	}
	return &NSerializer{
		name:  name,
		base:  base,
		limit: int64(n),
		sem:   semaphore.NewWeighted(int64(n)),
	}
}

// NewPoolNSerializer is the common case: backed directly by a
// WorkerPool, unlocking the continuation-executor fast path for the
// drain loop that follows each completed task.
func NewPoolNSerializer(name string, pool *WorkerPool, n int) *NSerializer {
	s := NewNSerializer(name, GlobalExecutor(pool), n)
	s.pool = pool
	return s
}

// WithErrorHandler sets the fallback handler for tasks with no
// per-task Handler of their own.
func (s *NSerializer) WithErrorHandler(h ErrorHandler) *NSerializer {
	s.errorHandler = h
	return s
}

// PostTask implements TaskRunner with default traits.
func (s *NSerializer) PostTask(task Task) { s.PostTaskWithTraits(task, DefaultTaskTraits()) }

// PostTaskWithTraits enqueues task, then tries to admit a drain pass:
// TryAcquire is the non-blocking version of the admission check so a
// caller posting into an already-saturated NSerializer never blocks.
func (s *NSerializer) PostTaskWithTraits(task Task, traits TaskTraits) {
	traits.Group.onTaskCreated()
	s.pendingMu.Lock()
	s.pending = append(s.pending, taskItem{id: newTaskID(), task: task, traits: traits})
	s.pendingMu.Unlock()
	s.tryAdmit(context.Background())
}

// PostDelayedTask implements TaskRunner.
func (s *NSerializer) PostDelayedTask(task Task, delay time.Duration) {
	s.PostDelayedTaskWithTraits(task, delay, DefaultTaskTraits())
}

// PostDelayedTaskWithTraits implements TaskRunner.
func (s *NSerializer) PostDelayedTaskWithTraits(task Task, delay time.Duration, traits TaskTraits) {
	s.delayManager().AddDelayedTask(task, delay, traits, s)
}

func (s *NSerializer) delayManager() *DelayManager {
	s.delayOnce.Do(func() { s.delayMgr = NewDelayManager() })
	return s.delayMgr
}

// tryAdmit claims one semaphore slot per pending task, up to whatever
// the gate currently allows, and posts one runner closure per claimed
// slot. Each closure owns exactly one slot for exactly one task: the
// slot and the item it runs are claimed together in tryAdmitPop, so a
// permit is never acquired unless there is an actual item to pair it
// with (spec §4.6's "increment active, pop one, submit" admission
// rule, same critical section).
func (s *NSerializer) tryAdmit(ctx context.Context) {
	for {
		item, ok := s.tryAdmitPop()
		if !ok {
			return
		}
		s.running.Inc()
		s.dispatch(ctx, item)
	}
}

// tryAdmitPop pops the next pending item and acquires its admission
// slot inside one pendingMu critical section, so concurrent callers of
// tryAdmit can never both observe the same single pending item as
// available and each claim a slot for it.
func (s *NSerializer) tryAdmitPop() (taskItem, bool) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	if len(s.pending) == 0 {
		return taskItem{}, false
	}
	if !s.sem.TryAcquire(1) {
		return taskItem{}, false
	}
	item := s.pending[0]
	s.pending[0] = taskItem{}
	s.pending = s.pending[1:]
	return item, true
}

func (s *NSerializer) dispatch(ctx context.Context, item taskItem) {
	run := func(ctx context.Context) { s.run(ctx, item) }
	if s.pool != nil {
		SpawnContinuationExecutor(s.pool, ctx).PostTask(run)
		return
	}
	s.base.PostTask(run)
}

// run holds one admitted slot for item: execute it, release the slot,
// then try to admit whatever else is waiting.
func (s *NSerializer) run(ctx context.Context, item taskItem) {
	s.executeOne(ctx, item)

	s.sem.Release(1)
	s.running.Dec()
	s.tryAdmit(ctx)
}

func (s *NSerializer) executeOne(ctx context.Context, item taskItem) {
	group := item.traits.Group
	if group.IsCancelled() {
		group.onTaskCompleted()
		return
	}
	ctx = withTaskGroup(ctx, group)

	func() {
		defer func() {
			if r := recover(); r != nil {
				err := panicToError(r)
				switch {
				case item.traits.Handler != nil:
					item.traits.Handler(err)
				case s.errorHandler != nil:
					s.errorHandler(err)
				}
			}
		}()
		item.task(ctx)
	}()

	group.onTaskCompleted()
}

// PendingCount returns the number of tasks waiting for an admission slot.
func (s *NSerializer) PendingCount() int {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	return len(s.pending)
}

// Stats reports the serializer's runtime state for observability.
func (s *NSerializer) Stats() RunnerStats {
	return RunnerStats{
		Name:     s.name,
		Type:     "n_serializer",
		Pending:  s.PendingCount(),
		Running:  int(s.running.Load()),
		Rejected: s.rejected.Load(),
	}
}

// Shutdown stops this serializer's delay manager goroutine and clears
// pending tasks. It does not interrupt tasks currently executing.
func (s *NSerializer) Shutdown() {
	if s.delayMgr != nil {
		s.delayMgr.Stop()
	}
	s.pendingMu.Lock()
	s.pending = nil
	s.pendingMu.Unlock()
}
