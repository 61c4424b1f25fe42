package core

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/atomic"
)

// externalDrainEvery is the cadence (in local pops) at which a worker
// checks the external-submit channel even though its own deque still
// has work, so a growing external backlog is never starved while every
// worker stays locally busy. Deliberately not a power of two so it
// never aliases with ring sizes.
const externalDrainEvery = 61

// WorkerPool is a fixed pool of workers, each owning a concurrent
// deque, implementing LIFO-local / FIFO-steal scheduling with
// graceful park/wake and group-based cancellation (spec §4.3-4.4).
type WorkerPool struct {
	id      string
	workers []*worker

	external *externalChannel

	panicHandler        PanicHandler
	metrics             Metrics
	rejectedTaskHandler RejectedTaskHandler
	logger              Logger

	delayMgr *DelayManager

	pinWorkers bool

	wg       sync.WaitGroup
	running  atomic.Bool
	stopping atomic.Bool

	active atomic.Int64

	wakeCursor atomic.Uint32

	transientMu  sync.Mutex
	transient    []*worker
	transientSeq atomic.Int64
}

// NewWorkerPool creates a pool of the given size (defaulting to
// runtime.NumCPU() when size<=0), wired with config's handlers (or
// DefaultTaskSchedulerConfig() when config is nil).
func NewWorkerPool(size int, config *TaskSchedulerConfig) *WorkerPool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	if config == nil {
		config = DefaultTaskSchedulerConfig()
	}
	logger := config.Logger
	if logger == nil {
		logger = &NoOpLogger{}
	}
	panicHandler := config.PanicHandler
	if panicHandler == nil {
		panicHandler = &DefaultPanicHandler{}
	}
	metrics := config.Metrics
	if metrics == nil {
		metrics = &NilMetrics{}
	}
	rejectedTaskHandler := config.RejectedTaskHandler
	if rejectedTaskHandler == nil {
		rejectedTaskHandler = &DefaultRejectedTaskHandler{}
	}
	p := &WorkerPool{
		id:                  "worker-pool",
		external:            newExternalChannel(),
		panicHandler:        panicHandler,
		metrics:             metrics,
		rejectedTaskHandler: rejectedTaskHandler,
		pinWorkers:          config.PinWorkers,
		logger:              logger,
	}
	p.workers = make([]*worker, size)
	for i := range p.workers {
		p.workers[i] = newWorker(i)
	}
	p.delayMgr = NewDelayManager()
	return p
}

// WorkerCount returns the number of fixed workers in the pool.
func (p *WorkerPool) WorkerCount() int { return len(p.workers) }

// Start launches one goroutine per worker. Calling Start twice is a
// no-op until Stop is called.
func (p *WorkerPool) Start() {
	if !p.running.CompareAndSwap(false, true) {
		return
	}
	p.stopping.Store(false)
	p.logger.Info("worker pool starting", F("pool", p.id), F("workers", len(p.workers)))
	for _, w := range p.workers {
		p.wg.Add(1)
		go p.workerLoop(w)
	}
}

// Stop sets the stopping flag, wakes every worker, waits for them to
// exit, and discards any tasks still resident in deques or the
// external channel - shutdown semantics are not specified at the
// source level, so this spec declares them discarded (spec §4.3, §7).
func (p *WorkerPool) Stop() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	p.stopping.Store(true)
	for _, w := range p.workers {
		w.forceWake()
	}
	p.wg.Wait()
	for _, w := range p.workers {
		w.deque.UnsafeClear()
	}
	p.external.clear()
	p.delayMgr.Stop()
	p.logger.Info("worker pool stopped", F("pool", p.id))
}

// workerLoop implements spec §4.3's per-worker loop: own-pop, steal,
// external-drain, park.
func (p *WorkerPool) workerLoop(w *worker) {
	defer p.wg.Done()
	if p.pinWorkers {
		pinCurrentThread(w.id)
	}
	localPops := 0
	for {
		if p.stopping.Load() {
			return
		}
		if item, ok := w.deque.TryPopFront(); ok {
			localPops++
			p.metrics.RecordDequeDepth(p.id, w.id, w.deque.Len())
			p.runTask(w, item)
			if localPops%externalDrainEvery == 0 {
				p.drainExternalOnce(w)
			}
			continue
		}
		if item, ok := p.stealFrom(w); ok {
			p.runTask(w, item)
			continue
		}
		if item, ok := p.external.tryDequeue(); ok {
			p.runTask(w, item)
			continue
		}
		if p.stopping.Load() {
			return
		}
		if item, ok := w.parkUntil(p.stopping.Load, func() (taskItem, bool) {
			if item, ok := p.stealFrom(w); ok {
				return item, true
			}
			return p.external.tryDequeue()
		}); ok {
			p.runTask(w, item)
		}
	}
}

// stealFrom visits every other live worker (fixed plus any transient
// waiters) in round-robin order starting just past self, taking from
// the victim's back - the oldest entries, most likely independent
// roots. Either round-robin or random victim order satisfies the
// spec; round-robin is chosen for deterministic tests.
func (p *WorkerPool) stealFrom(self *worker) (taskItem, bool) {
	item, ok := p.stealFromAttempt(self)
	p.metrics.RecordSteal(p.id, ok)
	return item, ok
}

func (p *WorkerPool) stealFromAttempt(self *worker) (taskItem, bool) {
	all := p.snapshotWorkers()
	n := len(all)
	if n <= 1 {
		return taskItem{}, false
	}
	start := 0
	for i, w := range all {
		if w == self {
			start = i
			break
		}
	}
	for i := 1; i < n; i++ {
		victim := all[(start+i)%n]
		if victim == self {
			continue
		}
		if item, ok := victim.deque.TryPopBack(); ok {
			return item, true
		}
	}
	return taskItem{}, false
}

func (p *WorkerPool) drainExternalOnce(w *worker) {
	if item, ok := p.external.tryDequeue(); ok {
		p.runTask(w, item)
	}
}

// runTask executes item's thunk on w, sampling cancellation on entry,
// isolating panics with recover, and decrementing the task's group on
// exit regardless of outcome (spec §4.2).
func (p *WorkerPool) runTask(w *worker, item taskItem) {
	group := item.traits.Group
	if group.IsCancelled() {
		group.onTaskCompleted()
		return
	}

	ctx := withWorker(context.Background(), w)
	ctx = withTaskGroup(ctx, group)
	ctx = withTaskRunner(ctx, p)

	p.active.Inc()
	start := time.Now()
	func() {
		defer func() {
			p.active.Dec()
			if r := recover(); r != nil {
				p.handlePanic(ctx, w, item, r)
			}
		}()
		item.task(ctx)
	}()
	p.metrics.RecordTaskDuration(p.id, item.traits.Priority, time.Since(start))
	group.onTaskCompleted()
}

func (p *WorkerPool) handlePanic(ctx context.Context, w *worker, item taskItem, r any) {
	p.metrics.RecordTaskPanic(p.id, r)
	p.logger.Error("task panicked", F("pool", p.id), F("worker", w.id), F("panic", r))
	if item.traits.Handler != nil {
		item.traits.Handler(panicToError(r))
		return
	}
	if p.panicHandler != nil {
		p.panicHandler.HandlePanic(ctx, p.id, w.id, r, debug.Stack())
	}
}

// =============================================================================
// Submit (external), Spawn (worker-local), SpawnAndWait, Wait.
// =============================================================================

// PostTask implements TaskRunner, submitting task with default traits.
func (p *WorkerPool) PostTask(task Task) {
	p.PostTaskWithTraits(task, DefaultTaskTraits())
}

// PostTaskWithTraits implements TaskRunner.
func (p *WorkerPool) PostTaskWithTraits(task Task, traits TaskTraits) {
	p.Submit(task, traits)
}

// PostDelayedTask implements TaskRunner.
func (p *WorkerPool) PostDelayedTask(task Task, delay time.Duration) {
	p.PostDelayedTaskWithTraits(task, delay, DefaultTaskTraits())
}

// PostDelayedTaskWithTraits implements TaskRunner.
func (p *WorkerPool) PostDelayedTaskWithTraits(task Task, delay time.Duration, traits TaskTraits) {
	p.delayMgr.AddDelayedTask(task, delay, traits, p)
}

// Submit is the external-submission entry point (component D):
// enqueues into the external channel and signals one sleeping worker,
// round-robin, so submissions are distributed rather than always
// waking worker 0.
func (p *WorkerPool) Submit(task Task, traits TaskTraits) {
	if p.stopping.Load() {
		p.rejectedTaskHandler.HandleRejectedTask(p.id, "shutting down")
		p.metrics.RecordTaskRejected(p.id, "shutting down")
		p.logger.Warn("task rejected", F("pool", p.id), F("reason", "shutting down"))
		return
	}
	traits.Group.onTaskCreated()
	p.external.enqueue(taskItem{id: newTaskID(), task: task, traits: traits})
	p.wakeOneRoundRobin()
}

func (p *WorkerPool) wakeOneRoundRobin() {
	n := uint32(len(p.workers))
	if n == 0 {
		return
	}
	start := p.wakeCursor.Add(1)
	for i := uint32(0); i < n; i++ {
		idx := (start + i) % n
		if p.workers[idx].wakeIfParked() {
			return
		}
	}
}

// Spawn pushes task to the front of the calling worker's own deque so
// it runs LIFO-local (cache-friendly continuation of work the caller
// just produced). Called from a non-worker goroutine it degrades to
// Submit. wake controls whether a sleeping peer is signalled: set
// wake=false for continuations so the current worker picks the task up
// next instead of paying a wakeup for work it is about to reach
// anyway.
func (p *WorkerPool) Spawn(ctx context.Context, task Task, traits TaskTraits, wake bool) {
	if traits.Group == nil {
		traits.Group = CurrentTaskGroup(ctx)
	}
	w := workerFromContext(ctx)
	if w == nil {
		p.Submit(task, traits)
		return
	}
	traits.Group.onTaskCreated()
	w.deque.PushFront(taskItem{id: newTaskID(), task: task, traits: traits})
	if wake {
		p.wakeOneRoundRobin()
	}
}

// SpawnBatch spawns tasks in order, applying the rule spec §9 judges
// "intended" for the source's ambiguous wake_workers computation: wake
// a peer after every task except the last, since the caller's own
// worker will reach the last one next regardless.
func (p *WorkerPool) SpawnBatch(ctx context.Context, traits TaskTraits, tasks ...Task) {
	for i, t := range tasks {
		p.Spawn(ctx, t, traits, i < len(tasks)-1)
	}
}

// SpawnAndWait spawns fns under a fresh task group and blocks the
// caller until all of them (and any task they themselves spawn into
// that group) complete - without blocking a worker thread for good:
// the caller drives the same inner loop workers run, contributing
// compute instead of idling (spec §4.4).
func (p *WorkerPool) SpawnAndWait(ctx context.Context, fns ...Task) {
	group := NewTaskGroup()
	p.SpawnBatch(ctx, TaskTraits{Priority: TaskPriorityUserVisible, Group: group}, fns...)
	p.Wait(ctx, group)
}

// Wait blocks the caller until group's active count reaches zero,
// driving the pool's inner loop in the meantime. If ctx does not carry
// a worker (caller is not running inside a task), the caller is
// enrolled as a transient worker for the duration of the wait so it
// can both steal work and be stolen from.
func (p *WorkerPool) Wait(ctx context.Context, group *TaskGroup) {
	if group == nil || group.IsIdle() {
		return
	}
	if w := workerFromContext(ctx); w != nil {
		p.cooperativeLoop(w, group)
		return
	}
	w := p.enrollTransient()
	defer p.unenrollTransient(w)
	p.cooperativeLoop(w, group)
}

// cooperativeLoop is the reentrant twin of workerLoop: same
// own-pop/steal/external-drain progression, but it returns once group
// is idle instead of parking, since the caller is waiting, not idle.
func (p *WorkerPool) cooperativeLoop(w *worker, group *TaskGroup) {
	localPops := 0
	for !group.IsIdle() {
		if item, ok := w.deque.TryPopFront(); ok {
			localPops++
			p.runTask(w, item)
			if localPops%externalDrainEvery == 0 {
				p.drainExternalOnce(w)
			}
			continue
		}
		if item, ok := p.stealFrom(w); ok {
			p.runTask(w, item)
			continue
		}
		if item, ok := p.external.tryDequeue(); ok {
			p.runTask(w, item)
			continue
		}
		if group.IsIdle() {
			return
		}
		runtime.Gosched()
	}
}

// =============================================================================
// Transient worker enrollment (non-worker callers of Wait/SpawnAndWait)
// =============================================================================

func (p *WorkerPool) enrollTransient() *worker {
	id := len(p.workers) + 1<<20 + int(p.transientSeq.Inc())
	w := newWorker(id)
	p.transientMu.Lock()
	p.transient = append(p.transient, w)
	p.transientMu.Unlock()
	return w
}

func (p *WorkerPool) unenrollTransient(w *worker) {
	p.transientMu.Lock()
	for i, tw := range p.transient {
		if tw == w {
			p.transient = append(p.transient[:i], p.transient[i+1:]...)
			break
		}
	}
	p.transientMu.Unlock()
	p.drainToExternal(w)
}

// drainToExternal empties a departing transient worker's deque into
// the external channel instead of discarding it. A transient worker
// enrolled for a Wait/SpawnAndWait call participates fully in
// stealing, so it can pull in tasks from unrelated, uncancelled groups
// while helping drain the group it is actually waiting on; if the
// waited-on group goes idle first, those unrelated tasks (and anything
// they themselves pushed to this worker's front) must still run
// exactly once (testable property 5) rather than vanish with
// UnsafeClear. UnsafeClear remains reserved for pool shutdown, where
// discarding is the documented behavior.
func (p *WorkerPool) drainToExternal(w *worker) {
	drained := false
	for {
		item, ok := w.deque.TryPopFront()
		if !ok {
			break
		}
		p.external.enqueue(item)
		drained = true
	}
	if drained {
		p.wakeOneRoundRobin()
	}
}

func (p *WorkerPool) snapshotWorkers() []*worker {
	p.transientMu.Lock()
	defer p.transientMu.Unlock()
	if len(p.transient) == 0 {
		return p.workers
	}
	all := make([]*worker, 0, len(p.workers)+len(p.transient))
	all = append(all, p.workers...)
	all = append(all, p.transient...)
	return all
}

// =============================================================================
// context plumbing for "am I a worker" / "which worker"
// =============================================================================

type workerKeyType struct{}

var workerKey workerKeyType

func withWorker(ctx context.Context, w *worker) context.Context {
	return context.WithValue(ctx, workerKey, w)
}

func workerFromContext(ctx context.Context) *worker {
	w, _ := ctx.Value(workerKey).(*worker)
	return w
}

// Stats reports the pool's runtime state for observability.
func (p *WorkerPool) Stats() PoolStats {
	queued := p.external.len()
	for _, w := range p.workers {
		queued += w.deque.Len()
	}
	return PoolStats{
		ID:      p.id,
		Workers: len(p.workers),
		Queued:  queued,
		Active:  int(p.active.Load()),
		Delayed: p.delayMgr.TaskCount(),
		Running: p.running.Load(),
	}
}

func panicToError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("task panicked: %v", r)
}
