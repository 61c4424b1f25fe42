package core

import (
	"context"
	"time"
)

// Executor objects are plain TaskRunner values bound to a fixed
// posting strategy against a WorkerPool: global submission, worker-local
// spawn-with-wake, and worker-local spawn-without-wake (for
// continuations). Each is a callable taking a task, per spec §6.

// poolExecutor posts every task through WorkerPool.Submit - the
// external-submit path, used as the default base_executor for a
// serializer created without an explicit base.
type poolExecutor struct{ pool *WorkerPool }

// GlobalExecutor returns the TaskRunner that submits through the
// pool's external channel, exactly like any non-worker caller would.
func GlobalExecutor(pool *WorkerPool) TaskRunner { return poolExecutor{pool: pool} }

func (e poolExecutor) PostTask(task Task) { e.pool.Submit(task, DefaultTaskTraits()) }
func (e poolExecutor) PostTaskWithTraits(task Task, traits TaskTraits) {
	e.pool.Submit(task, traits)
}
func (e poolExecutor) PostDelayedTask(task Task, delay time.Duration) {
	e.pool.PostDelayedTaskWithTraits(task, delay, DefaultTaskTraits())
}
func (e poolExecutor) PostDelayedTaskWithTraits(task Task, delay time.Duration, traits TaskTraits) {
	e.pool.PostDelayedTaskWithTraits(task, delay, traits)
}

// spawnExecutor carries the ctx of whatever task is posting through it,
// so Spawn can tell whether the caller is a worker and, if so, which
// one - this is what lets serializer runners re-post themselves onto
// the caller's own deque instead of hopping through the external
// channel.
type spawnExecutor struct {
	pool *WorkerPool
	ctx  context.Context
	wake bool
}

// SpawnExecutor returns the TaskRunner used for ordinary
// worker-to-worker spawns: it pushes to the calling worker's deque and
// wakes a sleeping peer so stealing can start immediately.
func SpawnExecutor(pool *WorkerPool, ctx context.Context) TaskRunner {
	return spawnExecutor{pool: pool, ctx: ctx, wake: true}
}

// SpawnContinuationExecutor is identical to SpawnExecutor but never
// wakes a peer: used when re-scheduling a serializer's runner closure,
// since the current worker will reach it next regardless and a wakeup
// would only waste a peer's cycles.
func SpawnContinuationExecutor(pool *WorkerPool, ctx context.Context) TaskRunner {
	return spawnExecutor{pool: pool, ctx: ctx, wake: false}
}

func (e spawnExecutor) PostTask(task Task) { e.pool.Spawn(e.ctx, task, DefaultTaskTraits(), e.wake) }
func (e spawnExecutor) PostTaskWithTraits(task Task, traits TaskTraits) {
	e.pool.Spawn(e.ctx, task, traits, e.wake)
}
func (e spawnExecutor) PostDelayedTask(task Task, delay time.Duration) {
	e.pool.PostDelayedTaskWithTraits(task, delay, DefaultTaskTraits())
}
func (e spawnExecutor) PostDelayedTaskWithTraits(task Task, delay time.Duration, traits TaskTraits) {
	e.pool.PostDelayedTaskWithTraits(task, delay, traits)
}
