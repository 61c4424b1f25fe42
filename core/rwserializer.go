package core

import (
	"context"
	"sync"
	"time"

	"go.uber.org/atomic"
)

// RWSerializer is the reader/writer executor (spec §4.7): any number of
// reader tasks may run concurrently with each other, but a writer task
// runs alone, excluding both readers and other writers. Writer priority
// holds: once a writer is waiting, newly posted readers queue behind it
// rather than extending the current reader batch indefinitely, though
// readers already admitted run to completion first.
//
// Grounded on core/parallel_task_runner.go's barrier-task mechanism
// (a barrier excludes all concurrent work the way a writer here
// excludes readers), generalized from "one barrier kind" to an explicit
// reader/writer split with its state packed under a single mutex
// rather than the teacher's barrier-counter fields.
type RWSerializer struct {
	name string

	base TaskRunner
	pool *WorkerPool

	errorHandler ErrorHandler

	mu             sync.Mutex
	readersPending []taskItem
	writersPending []taskItem
	activeReaders  int
	writerActive   bool

	rejected atomic.Int64

	delayOnce sync.Once
	delayMgr  *DelayManager
}

type rwDispatchEntry struct {
	item    taskItem
	isWrite bool
}

// NewRWSerializer creates an RWSerializer whose admitted tasks are
// posted to base.
func NewRWSerializer(name string, base TaskRunner) *RWSerializer {
	return &RWSerializer{name: name, base: base}
}

// NewPoolRWSerializer is the common case: backed directly by a
// WorkerPool, unlocking the continuation-executor fast path.
func NewPoolRWSerializer(name string, pool *WorkerPool) *RWSerializer {
	return &RWSerializer{name: name, base: GlobalExecutor(pool), pool: pool}
}

// WithErrorHandler sets the fallback handler for tasks with no
// per-task Handler of their own.
func (s *RWSerializer) WithErrorHandler(h ErrorHandler) *RWSerializer {
	s.errorHandler = h
	return s
}

// PostTask implements TaskRunner by treating task as a writer - the
// conservative default for callers that only know about TaskRunner and
// have not opted into read/read concurrency.
func (s *RWSerializer) PostTask(task Task) { s.PostWriteTaskWithTraits(task, DefaultTaskTraits()) }

// PostTaskWithTraits implements TaskRunner; see PostTask.
func (s *RWSerializer) PostTaskWithTraits(task Task, traits TaskTraits) {
	s.PostWriteTaskWithTraits(task, traits)
}

// PostDelayedTask implements TaskRunner; see PostTask.
func (s *RWSerializer) PostDelayedTask(task Task, delay time.Duration) {
	s.PostDelayedWriteTaskWithTraits(task, delay, DefaultTaskTraits())
}

// PostDelayedTaskWithTraits implements TaskRunner; see PostTask.
func (s *RWSerializer) PostDelayedTaskWithTraits(task Task, delay time.Duration, traits TaskTraits) {
	s.PostDelayedWriteTaskWithTraits(task, delay, traits)
}

// PostWriteTask posts an exclusive task: excludes all readers and
// other writers while it runs.
func (s *RWSerializer) PostWriteTask(task Task) {
	s.PostWriteTaskWithTraits(task, DefaultTaskTraits())
}

// PostWriteTaskWithTraits posts an exclusive task with explicit traits.
func (s *RWSerializer) PostWriteTaskWithTraits(task Task, traits TaskTraits) {
	traits.Group.onTaskCreated()
	s.mu.Lock()
	s.writersPending = append(s.writersPending, taskItem{id: newTaskID(), task: task, traits: traits})
	entries := s.admitLocked()
	s.mu.Unlock()
	s.dispatchAll(context.Background(), entries)
}

// PostReadTask posts a task that may run concurrently with other
// readers but never with a writer.
func (s *RWSerializer) PostReadTask(task Task) {
	s.PostReadTaskWithTraits(task, DefaultTaskTraits())
}

// PostReadTaskWithTraits posts a reader task with explicit traits.
func (s *RWSerializer) PostReadTaskWithTraits(task Task, traits TaskTraits) {
	traits.Group.onTaskCreated()
	s.mu.Lock()
	s.readersPending = append(s.readersPending, taskItem{id: newTaskID(), task: task, traits: traits})
	entries := s.admitLocked()
	s.mu.Unlock()
	s.dispatchAll(context.Background(), entries)
}

// PostDelayedWriteTaskWithTraits schedules an exclusive task after delay.
func (s *RWSerializer) PostDelayedWriteTaskWithTraits(task Task, delay time.Duration, traits TaskTraits) {
	s.delayManager().AddDelayedTask(task, delay, traits, s)
}

// PostDelayedReadTask schedules a reader task after delay.
func (s *RWSerializer) PostDelayedReadTask(task Task, delay time.Duration) {
	s.PostDelayedReadTaskWithTraits(task, delay, DefaultTaskTraits())
}

// PostDelayedReadTaskWithTraits schedules a reader task after delay
// with explicit traits.
func (s *RWSerializer) PostDelayedReadTaskWithTraits(task Task, delay time.Duration, traits TaskTraits) {
	s.delayManager().AddDelayedTask(task, delay, traits, rwReadTarget{s: s})
}

func (s *RWSerializer) delayManager() *DelayManager {
	s.delayOnce.Do(func() { s.delayMgr = NewDelayManager() })
	return s.delayMgr
}

// rwReadTarget adapts RWSerializer's read-posting methods to the plain
// TaskRunner interface DelayManager expects, so delayed readers reuse
// the same DelayManager machinery as every other runner instead of a
// bespoke timer.
type rwReadTarget struct{ s *RWSerializer }

func (t rwReadTarget) PostTask(task Task) { t.s.PostReadTask(task) }
func (t rwReadTarget) PostTaskWithTraits(task Task, traits TaskTraits) {
	t.s.PostReadTaskWithTraits(task, traits)
}
func (t rwReadTarget) PostDelayedTask(task Task, delay time.Duration) {
	t.s.PostDelayedReadTask(task, delay)
}
func (t rwReadTarget) PostDelayedTaskWithTraits(task Task, delay time.Duration, traits TaskTraits) {
	t.s.PostDelayedReadTaskWithTraits(task, delay, traits)
}

// admitLocked must be called with s.mu held. It decides what may start
// running right now under writer-priority: a writer starts only when
// no readers are active; if no writer is waiting, every pending reader
// is admitted at once. A writer waiting with readers still active
// blocks further reader admission without preempting those already
// running.
func (s *RWSerializer) admitLocked() []rwDispatchEntry {
	if s.writerActive {
		return nil
	}
	if len(s.writersPending) > 0 && s.activeReaders == 0 {
		item := s.writersPending[0]
		s.writersPending[0] = taskItem{}
		s.writersPending = s.writersPending[1:]
		s.writerActive = true
		return []rwDispatchEntry{{item: item, isWrite: true}}
	}
	if len(s.writersPending) > 0 {
		return nil
	}
	if len(s.readersPending) == 0 {
		return nil
	}
	entries := make([]rwDispatchEntry, 0, len(s.readersPending))
	for _, item := range s.readersPending {
		s.activeReaders++
		entries = append(entries, rwDispatchEntry{item: item, isWrite: false})
	}
	s.readersPending = s.readersPending[:0]
	return entries
}

func (s *RWSerializer) dispatchAll(ctx context.Context, entries []rwDispatchEntry) {
	for _, e := range entries {
		e := e
		runner := func(ctx context.Context) { s.runEntry(ctx, e) }
		if s.pool != nil {
			if e.isWrite {
				SpawnContinuationExecutor(s.pool, ctx).PostTask(runner)
			} else {
				SpawnExecutor(s.pool, ctx).PostTask(runner)
			}
			continue
		}
		s.base.PostTask(runner)
	}
}

func (s *RWSerializer) runEntry(ctx context.Context, e rwDispatchEntry) {
	s.executeOne(ctx, e.item)

	s.mu.Lock()
	if e.isWrite {
		s.writerActive = false
	} else {
		s.activeReaders--
	}
	entries := s.admitLocked()
	s.mu.Unlock()

	s.dispatchAll(ctx, entries)
}

func (s *RWSerializer) executeOne(ctx context.Context, item taskItem) {
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

// Stats reports the serializer's runtime state for observability.
// BarrierPending reflects a waiting writer, mirroring the teacher's
// barrier-task terminology for "exclusive work is queued."
func (s *RWSerializer) Stats() RunnerStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	running := s.activeReaders
	if s.writerActive {
		running++
	}
	return RunnerStats{
		Name:           s.name,
		Type:           "rw_serializer",
		Pending:        len(s.readersPending) + len(s.writersPending),
		Running:        running,
		Rejected:       s.rejected.Load(),
		BarrierPending: len(s.writersPending) > 0,
	}
}

// Shutdown stops this serializer's delay manager goroutine and clears
// pending tasks. It does not interrupt tasks currently executing.
func (s *RWSerializer) Shutdown() {
	if s.delayMgr != nil {
		s.delayMgr.Stop()
	}
	s.mu.Lock()
	s.readersPending = nil
	s.writersPending = nil
	s.mu.Unlock()
}
