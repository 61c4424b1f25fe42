// Package stealpool is a work-stealing task scheduler for Go, in the
// Chromium Threading-and-Tasks tradition: post tasks to a WorkerPool or
// to one of the serializer executors layered on top of it, instead of
// managing goroutines and channels directly.
//
// # Quick Start
//
//	pool := stealpool.NewWorkerPool(4, nil) // 4 workers
//	pool.Start()
//	defer pool.Stop()
//
//	pool.PostTask(func(ctx context.Context) {
//		// runs on whichever worker is free
//	})
//
// # Key Concepts
//
// WorkerPool: a fixed set of workers, each owning its own deque. A task
// posted from inside a running task (Spawn) lands on the calling
// worker's own deque and runs LIFO; a task posted from outside the pool
// (Submit, or PostTask/PostTaskWithTraits) goes through the external
// channel and is picked up by whichever worker drains it first. Idle
// workers steal from the back of a peer's deque before parking.
//
// Serializer, NSerializer, RWSerializer: executors built on top of any
// TaskRunner (typically a WorkerPool) that add an ordering or
// concurrency constraint without ever blocking a worker thread:
//   - Serializer: at most one task runs at a time, FIFO.
//   - NSerializer: at most N tasks run at a time, FIFO admission.
//   - RWSerializer: any number of reader tasks run concurrently;
//     a writer task excludes all readers and other writers.
//
// TaskGroup: lets SpawnAndWait block a caller until a whole subtree of
// spawned tasks (and whatever they themselves spawn) completes, and
// lets Cancel mark that subtree so later tasks in it are skipped.
//
// TaskTraits: task attributes - priority, a TaskGroup, a per-task error
// handler. Priority is informational here (workers don't yet reorder on
// it); it still flows through to Metrics.RecordTaskDuration.
//
// # Thread Safety
//
// A caller of SpawnAndWait or Wait never blocks on the group it waits
// for: both make the calling goroutine run the pool's own scheduling
// loop until the target group is idle, so a pool stays fully utilized even while the original
// caller of SpawnAndWait is "waiting".
//
// # Example
//
//	import (
//		"context"
//		"time"
//
//		stealpool "github.com/swind/stealpool"
//	)
//
//	func main() {
//		pool := stealpool.NewWorkerPool(4, nil)
//		pool.Start()
//		defer pool.Stop()
//
//		runner := stealpool.NewPoolSerializer("jobs", pool)
//
//		runner.PostTask(func(ctx context.Context) {
//			println("Task 1")
//		})
//		runner.PostTask(func(ctx context.Context) {
//			println("Task 2") // never runs concurrently with Task 1
//		})
//
//		runner.PostDelayedTask(func(ctx context.Context) {
//			println("Task 3 - delayed")
//		}, 1*time.Second)
//	}
//
// For more details, see https://github.com/swind/stealpool
package stealpool
