package stealpool

import (
	"time"

	"github.com/swind/stealpool/core"
)

// Re-export commonly used types from core so most callers only need to
// import this package.

// Task is the unit of work posted to a TaskRunner.
type Task = core.Task

// TaskTraits describes task attributes: priority, group membership, and
// an optional per-task panic handler.
type TaskTraits = core.TaskTraits

// TaskPriority is the priority level attached to a task.
type TaskPriority = core.TaskPriority

// TaskRunner is the interface every executor in this package implements.
type TaskRunner = core.TaskRunner

// TaskGroup tracks the active-task count of a spawned subtree and
// carries its cancellation state.
type TaskGroup = core.TaskGroup

// ErrorHandler receives a task's recovered panic, converted to an error.
type ErrorHandler = core.ErrorHandler

// WorkerPool is a fixed-size pool of work-stealing workers.
type WorkerPool = core.WorkerPool

// Serializer is the exclusive-execution executor (at most one task
// running at a time, FIFO).
type Serializer = core.Serializer

// NSerializer is the bounded-parallelism executor (at most N tasks
// running at a time, FIFO admission).
type NSerializer = core.NSerializer

// RWSerializer is the reader/writer executor (concurrent readers,
// exclusive writers, writer priority).
type RWSerializer = core.RWSerializer

// TaskWithResult and ReplyWithResult are the generic PostTaskAndReply
// pattern's task/reply function shapes.
type TaskWithResult[T any] = core.TaskWithResult[T]
type ReplyWithResult[T any] = core.ReplyWithResult[T]

// TaskID uniquely identifies a posted task for logging/tracing.
type TaskID = core.TaskID

// Priority constants.
const (
	TaskPriorityBestEffort   TaskPriority = core.TaskPriorityBestEffort
	TaskPriorityUserVisible  TaskPriority = core.TaskPriorityUserVisible
	TaskPriorityUserBlocking TaskPriority = core.TaskPriorityUserBlocking
)

// Convenience constructors for TaskTraits.
var (
	DefaultTaskTraits  = core.DefaultTaskTraits
	TraitsUserBlocking = core.TraitsUserBlocking
	TraitsBestEffort   = core.TraitsBestEffort
	TraitsUserVisible  = core.TraitsUserVisible
)

// NewWorkerPool creates a pool of size workers (runtime.NumCPU() when
// size<=0), wired with config (DefaultTaskSchedulerConfig() when nil).
func NewWorkerPool(size int, config *core.TaskSchedulerConfig) *WorkerPool {
	return core.NewWorkerPool(size, config)
}

// NewPoolSerializer creates a Serializer backed directly by pool.
func NewPoolSerializer(name string, pool *WorkerPool) *Serializer {
	return core.NewPoolSerializer(name, pool)
}

// NewPoolNSerializer creates an NSerializer admitting up to n concurrent
// tasks, backed directly by pool.
func NewPoolNSerializer(name string, pool *WorkerPool, n int) *NSerializer {
	return core.NewPoolNSerializer(name, pool, n)
}

// NewPoolRWSerializer creates an RWSerializer backed directly by pool.
func NewPoolRWSerializer(name string, pool *WorkerPool) *RWSerializer {
	return core.NewPoolRWSerializer(name, pool)
}

// GetCurrentTaskRunner retrieves the TaskRunner a currently-executing
// task was posted through, from its context.
var GetCurrentTaskRunner = core.GetCurrentTaskRunner

// CurrentTaskGroup retrieves the TaskGroup a currently-executing task
// belongs to, from its context.
var CurrentTaskGroup = core.CurrentTaskGroup

// NewTaskGroup creates a root task group.
var NewTaskGroup = core.NewTaskGroup

// PostTaskAndReply and PostTaskAndReplyWithTraits are re-exported
// directly from core since they are free functions, not methods.
var (
	PostTaskAndReply          = core.PostTaskAndReply
	PostTaskAndReplyWithTraits = core.PostTaskAndReplyWithTraits
)

// PostTaskAndReplyWithResult posts task to targetRunner, then - only if
// task did not panic - posts its result to reply on replyRunner.
func PostTaskAndReplyWithResult[T any](
	targetRunner TaskRunner,
	task TaskWithResult[T],
	reply ReplyWithResult[T],
	replyRunner TaskRunner,
) {
	core.PostTaskAndReplyWithResult(targetRunner, task, reply, replyRunner)
}

// PostTaskAndReplyWithResultAndTraits is PostTaskAndReplyWithResult with
// explicit, independent traits for task and reply.
func PostTaskAndReplyWithResultAndTraits[T any](
	targetRunner TaskRunner,
	task TaskWithResult[T],
	taskTraits TaskTraits,
	reply ReplyWithResult[T],
	replyTraits TaskTraits,
	replyRunner TaskRunner,
) {
	core.PostTaskAndReplyWithResultAndTraits(targetRunner, task, taskTraits, reply, replyTraits, replyRunner)
}

// PostDelayedTaskAndReplyWithResult is PostTaskAndReplyWithResult whose
// task execution is delayed by delay; the reply is not delayed.
func PostDelayedTaskAndReplyWithResult[T any](
	targetRunner TaskRunner,
	task TaskWithResult[T],
	delay time.Duration,
	reply ReplyWithResult[T],
	replyRunner TaskRunner,
) {
	core.PostDelayedTaskAndReplyWithResult(targetRunner, task, delay, reply, replyRunner)
}

// PostDelayedTaskAndReplyWithResultAndTraits is the full-featured
// delayed version with separate traits for task and reply.
func PostDelayedTaskAndReplyWithResultAndTraits[T any](
	targetRunner TaskRunner,
	task TaskWithResult[T],
	delay time.Duration,
	taskTraits TaskTraits,
	reply ReplyWithResult[T],
	replyTraits TaskTraits,
	replyRunner TaskRunner,
) {
	core.PostDelayedTaskAndReplyWithResultAndTraits(targetRunner, task, delay, taskTraits, reply, replyTraits, replyRunner)
}
