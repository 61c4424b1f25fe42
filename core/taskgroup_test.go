package core

import (
	"context"
	"testing"
)

// TestTaskGroup_ActiveCountRoundTrips is property 6: active_count
// returns to zero iff every created task (and its handler) completed.
func TestTaskGroup_ActiveCountRoundTrips(t *testing.T) {
	g := NewTaskGroup()
	for i := 0; i < 5; i++ {
		g.onTaskCreated()
	}
	if g.IsIdle() {
		t.Fatal("group reported idle with tasks still in flight")
	}
	for i := 0; i < 5; i++ {
		g.onTaskCompleted()
	}
	if !g.IsIdle() {
		t.Fatalf("group not idle after all tasks completed, active=%d", g.ActiveCount())
	}
}

// TestTaskGroup_CancelIsIdempotent verifies Cancel can be called any
// number of times without changing the observed state beyond the
// first call.
func TestTaskGroup_CancelIsIdempotent(t *testing.T) {
	g := NewTaskGroup()
	g.Cancel()
	g.Cancel()
	g.Cancel()
	if !g.IsCancelled() {
		t.Fatal("expected group to be cancelled")
	}
}

// TestTaskGroup_CancellationPropagatesFromParent verifies a child
// group observes its parent's cancellation at check time, per spec
// §4.2's "tasks sample the nearest ancestor flag on entry."
func TestTaskGroup_CancellationPropagatesFromParent(t *testing.T) {
	parent := NewTaskGroup()
	child := NewChildTaskGroup(parent)

	if child.IsCancelled() {
		t.Fatal("child should not start cancelled")
	}
	parent.Cancel()
	if !child.IsCancelled() {
		t.Fatal("child should observe parent cancellation")
	}
}

// TestTaskGroup_ChildCancelDoesNotAffectParent verifies cancellation
// does not propagate upward.
func TestTaskGroup_ChildCancelDoesNotAffectParent(t *testing.T) {
	parent := NewTaskGroup()
	child := NewChildTaskGroup(parent)

	child.Cancel()
	if parent.IsCancelled() {
		t.Fatal("parent should not be affected by child cancellation")
	}
}

// TestTaskGroup_NilGroupIsSafe verifies every TaskGroup method
// tolerates a nil receiver, since TaskTraits.Group is optional and
// onTaskCreated/onTaskCompleted are called unconditionally by
// executors regardless of whether a group was supplied.
func TestTaskGroup_NilGroupIsSafe(t *testing.T) {
	var g *TaskGroup
	g.onTaskCreated()
	g.onTaskCompleted()
	g.Cancel()
	if g.IsCancelled() {
		t.Fatal("nil group should never report cancelled")
	}
	if g.ActiveCount() != 0 {
		t.Fatal("nil group should report zero active count")
	}
	if !g.IsIdle() {
		t.Fatal("nil group should always be idle")
	}
}

// TestCurrentTaskGroup_ContextRoundTrip verifies withTaskGroup/
// CurrentTaskGroup round-trip through a context, and that a context
// with no group stored returns nil rather than panicking.
func TestCurrentTaskGroup_ContextRoundTrip(t *testing.T) {
	if g := CurrentTaskGroup(context.Background()); g != nil {
		t.Fatal("expected nil group from a bare context")
	}
	group := NewTaskGroup()
	ctx := withTaskGroup(context.Background(), group)
	if got := CurrentTaskGroup(ctx); got != group {
		t.Fatal("CurrentTaskGroup did not round-trip the stored group")
	}
}
