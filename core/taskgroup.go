package core

import (
	"context"

	"go.uber.org/atomic"
)

// TaskGroup is a reference-counted coordination object: active_count
// tracks in-flight tasks, cancelled is a monotonic flag, and parent
// forms a tree so cancellation propagates from ancestor to descendant
// at check time. Tasks sample the nearest ancestor's flag on entry.
type TaskGroup struct {
	activeCount atomic.Int64
	cancelled   atomic.Bool
	parent      *TaskGroup
}

// NewTaskGroup creates a root task group.
func NewTaskGroup() *TaskGroup {
	return &TaskGroup{}
}

// NewChildTaskGroup creates a task group whose cancellation is also
// triggered by parent's cancellation (checked at task entry, not
// propagated eagerly).
func NewChildTaskGroup(parent *TaskGroup) *TaskGroup {
	return &TaskGroup{parent: parent}
}

type taskGroupKeyType struct{}

var taskGroupKey taskGroupKeyType

// CurrentTaskGroup returns the group of the task currently executing on
// this goroutine, as carried by ctx. Spawn uses this so children
// inherit their parent task's group by default.
func CurrentTaskGroup(ctx context.Context) *TaskGroup {
	g, _ := ctx.Value(taskGroupKey).(*TaskGroup)
	return g
}

func withTaskGroup(ctx context.Context, g *TaskGroup) context.Context {
	if g == nil {
		return ctx
	}
	return context.WithValue(ctx, taskGroupKey, g)
}

// Cancel is idempotent; it does not abort tasks already running, only
// causes future task-entry checks to skip their thunks.
func (g *TaskGroup) Cancel() {
	if g == nil {
		return
	}
	g.cancelled.Store(true)
}

// IsCancelled walks the parent chain; a descendant is cancelled the
// instant any ancestor is.
func (g *TaskGroup) IsCancelled() bool {
	for cur := g; cur != nil; cur = cur.parent {
		if cur.cancelled.Load() {
			return true
		}
	}
	return false
}

// ActiveCount returns the number of tasks created on this group that
// have not yet completed (including their handler).
func (g *TaskGroup) ActiveCount() int64 {
	if g == nil {
		return 0
	}
	return g.activeCount.Load()
}

// IsIdle reports whether ActiveCount has returned to zero.
func (g *TaskGroup) IsIdle() bool {
	return g.ActiveCount() == 0
}

func (g *TaskGroup) onTaskCreated() {
	if g != nil {
		g.activeCount.Inc()
	}
}

func (g *TaskGroup) onTaskCompleted() {
	if g != nil {
		g.activeCount.Dec()
	}
}
