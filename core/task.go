package core

import (
	"context"
	"time"

	"go.uber.org/atomic"
)

// Task is the unit of work (Closure). It is run-once: the pool never
// re-executes a task, and a failure (panic) is routed to a handler
// instead of unwinding through the worker.
type Task func(ctx context.Context)

// ErrorHandler receives the error produced by a failed task. A task
// "fails" by panicking; the panic value is converted to an error before
// delivery so handlers never have to deal with recover() themselves.
type ErrorHandler func(err error)

// TaskWithResult is a task that produces a typed result, used by the
// PostTaskAndReply family in task_and_reply.go.
type TaskWithResult[T any] func(ctx context.Context) (T, error)

// ReplyWithResult receives the result produced by a TaskWithResult.
type ReplyWithResult[T any] func(ctx context.Context, result T, err error)

// =============================================================================
// TaskTraits: Task attributes threaded through every Post/Submit/Spawn call.
// =============================================================================

// TaskPriority is informational: it is reported to Metrics with each
// task's duration. No queue orders by it - the external-submit channel
// is plain FIFO, and the worker pool's own LIFO-local/FIFO-steal
// discipline ignores it.
type TaskPriority int

const (
	// TaskPriorityBestEffort is the lowest priority.
	TaskPriorityBestEffort TaskPriority = iota
	// TaskPriorityUserVisible is the default priority.
	TaskPriorityUserVisible
	// TaskPriorityUserBlocking is the highest priority.
	TaskPriorityUserBlocking
)

// TaskTraits carries everything needed to run a Task besides the
// closure itself: its priority, the group it belongs to (for
// cancellation/join), and an optional per-task error handler.
type TaskTraits struct {
	Priority TaskPriority
	MayBlock bool
	Category string
	Group    *TaskGroup
	Handler  ErrorHandler
}

// DefaultTaskTraits returns TaskTraits with TaskPriorityUserVisible and
// no group or handler.
func DefaultTaskTraits() TaskTraits {
	return TaskTraits{Priority: TaskPriorityUserVisible}
}

// TraitsUserBlocking returns traits marking the task as user-blocking.
func TraitsUserBlocking() TaskTraits {
	return TaskTraits{Priority: TaskPriorityUserBlocking}
}

// TraitsBestEffort returns traits marking the task as best-effort.
func TraitsBestEffort() TaskTraits {
	return TaskTraits{Priority: TaskPriorityBestEffort}
}

// TraitsUserVisible returns traits marking the task as user-visible.
func TraitsUserVisible() TaskTraits {
	return TaskTraits{Priority: TaskPriorityUserVisible}
}

// WithGroup returns a copy of traits associated with group.
func (t TaskTraits) WithGroup(group *TaskGroup) TaskTraits {
	t.Group = group
	return t
}

// WithHandler returns a copy of traits with the given error handler.
func (t TaskTraits) WithHandler(handler ErrorHandler) TaskTraits {
	t.Handler = handler
	return t
}

// =============================================================================
// TaskRunner: the type-erased "submit a task" interface every executor
// (worker pool, serializer, n-serializer, rw-serializer face) implements.
// =============================================================================

// TaskRunner is anything callable with a task that schedules its
// execution: the worker pool itself, or any of the serializer family
// layered on top of it.
type TaskRunner interface {
	PostTask(task Task)
	PostTaskWithTraits(task Task, traits TaskTraits)
	PostDelayedTask(task Task, delay time.Duration)
	PostDelayedTaskWithTraits(task Task, delay time.Duration, traits TaskTraits)
}

// =============================================================================
// Context helpers: "current task runner" (for PostTaskAndReply-style
// code that wants to know where it is running) and task IDs.
// =============================================================================

type taskRunnerKeyType struct{}

var taskRunnerKey taskRunnerKeyType

// GetCurrentTaskRunner retrieves the TaskRunner the currently executing
// task was posted to, if any.
func GetCurrentTaskRunner(ctx context.Context) TaskRunner {
	if v := ctx.Value(taskRunnerKey); v != nil {
		return v.(TaskRunner)
	}
	return nil
}

func withTaskRunner(ctx context.Context, r TaskRunner) context.Context {
	return context.WithValue(ctx, taskRunnerKey, r)
}

// TaskID is an opaque, process-local identity stamped on each queued
// task; it plays no role in scheduling and is never exposed across the
// pool boundary.
type TaskID uint64

var nextTaskID atomic.Uint64

func newTaskID() TaskID {
	return TaskID(nextTaskID.Inc())
}

// taskItem is the envelope actually stored in deques and serializer
// FIFOs: a task plus the traits needed to run it.
type taskItem struct {
	id     TaskID
	task   Task
	traits TaskTraits
}
