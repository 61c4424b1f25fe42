package core

import (
	"context"
	"sync"
	"time"

	"go.uber.org/atomic"
)

// Serializer is the exclusive-execution executor (spec §4.5): it
// imposes FIFO-of-enqueue == FIFO-of-execution, with at most one of
// its tasks running at a time, layered on top of any base TaskRunner
// without ever blocking a worker thread.
//
// Grounded on the cold/hot split of core/sequenced_task_runner.go's
// isRunning/scheduleRunLoop/rePostSelf, reduced to the single
// "outstanding" atomic counter spec §4.5 describes: outstanding is the
// pre-increment test that decides whether a fresh runner closure needs
// scheduling, and the post-decrement test that decides whether the
// runner re-posts itself.
type Serializer struct {
	name string

	base TaskRunner
	pool *WorkerPool // optional: enables the continuation-executor fast path

	errorHandler ErrorHandler

	pendingMu sync.Mutex
	pending   []taskItem

	outstanding atomic.Int64
	rejected    atomic.Int64

	delayOnce sync.Once
	delayMgr  *DelayManager
}

// NewSerializer creates a Serializer whose cold path (the first task
// after an idle period) is posted to base.
func NewSerializer(name string, base TaskRunner) *Serializer {
	return &Serializer{name: name, base: base}
}

// NewPoolSerializer is the common case: a Serializer backed directly by
// a WorkerPool, which also unlocks the continuation-executor fast path
// (spawn_continuation_executor) for the hot path between chained tasks.
func NewPoolSerializer(name string, pool *WorkerPool) *Serializer {
	return &Serializer{name: name, base: GlobalExecutor(pool), pool: pool}
}

// WithErrorHandler sets the fallback handler used when a task has no
// per-task Handler of its own.
func (s *Serializer) WithErrorHandler(h ErrorHandler) *Serializer {
	s.errorHandler = h
	return s
}

// PostTask implements TaskRunner with default traits.
func (s *Serializer) PostTask(task Task) { s.PostTaskWithTraits(task, DefaultTaskTraits()) }

// PostTaskWithTraits enqueues task. If the pre-increment value of
// outstanding was 0, a runner closure is scheduled on base; otherwise
// the task waits in pending for the current runner to reach it.
func (s *Serializer) PostTaskWithTraits(task Task, traits TaskTraits) {
	traits.Group.onTaskCreated()
	s.pendingMu.Lock()
	s.pending = append(s.pending, taskItem{id: newTaskID(), task: task, traits: traits})
	s.pendingMu.Unlock()

	if s.outstanding.Inc() == 1 {
		s.base.PostTaskWithTraits(s.run, TaskTraits{Priority: traits.Priority})
	}
}

// PostDelayedTask implements TaskRunner.
func (s *Serializer) PostDelayedTask(task Task, delay time.Duration) {
	s.PostDelayedTaskWithTraits(task, delay, DefaultTaskTraits())
}

// PostDelayedTaskWithTraits implements TaskRunner.
func (s *Serializer) PostDelayedTaskWithTraits(task Task, delay time.Duration, traits TaskTraits) {
	s.delayManager().AddDelayedTask(task, delay, traits, s)
}

func (s *Serializer) delayManager() *DelayManager {
	s.delayOnce.Do(func() { s.delayMgr = NewDelayManager() })
	return s.delayMgr
}

// run is the runner closure: pop exactly one pending task, execute it,
// then either stop (outstanding reached 0) or re-post itself via the
// continuation executor so the chain keeps running on the current
// worker instead of hopping through the global submit path.
func (s *Serializer) run(ctx context.Context) {
	item, ok := s.popPending()
	if !ok {
		// Only reachable if a racing Shutdown cleared pending between
		// the increment that scheduled us and this pop; nothing to do.
		return
	}

	s.executeOne(ctx, item)

	if s.outstanding.Dec() > 0 {
		s.continuationRunner(ctx)
	}
}

func (s *Serializer) continuationRunner(ctx context.Context) {
	if s.pool != nil {
		SpawnContinuationExecutor(s.pool, ctx).PostTask(s.run)
		return
	}
	s.base.PostTask(s.run)
}

func (s *Serializer) popPending() (taskItem, bool) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	if len(s.pending) == 0 {
		return taskItem{}, false
	}
	item := s.pending[0]
	s.pending[0] = taskItem{}
	s.pending = s.pending[1:]
	return item, true
}

func (s *Serializer) executeOne(ctx context.Context, item taskItem) {
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

// PendingCount returns the number of tasks currently queued (not
// counting the one, if any, actively executing).
func (s *Serializer) PendingCount() int {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	return len(s.pending)
}

// Stats reports the serializer's runtime state for observability.
func (s *Serializer) Stats() RunnerStats {
	outstanding := s.outstanding.Load()
	running := 0
	if outstanding > 0 {
		running = 1
	}
	return RunnerStats{
		Name:     s.name,
		Type:     "serializer",
		Pending:  s.PendingCount(),
		Running:  running,
		Rejected: s.rejected.Load(),
	}
}

// Shutdown stops this serializer's delay manager goroutine and clears
// pending tasks. It does not interrupt a task currently executing.
func (s *Serializer) Shutdown() {
	if s.delayMgr != nil {
		s.delayMgr.Stop()
	}
	s.pendingMu.Lock()
	s.pending = nil
	s.pendingMu.Unlock()
}
