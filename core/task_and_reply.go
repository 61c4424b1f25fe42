package core

import (
	"context"
	"time"
)

// =============================================================================
// PostTaskAndReply Internal Helpers
// =============================================================================

// postTaskAndReplyInternalWithTraits posts task to targetRunner wrapped
// so that, only if task returns without panicking, reply is posted to
// replyRunner. Unlike the teacher's version, this does not recover the
// panic itself: wrappedTask tracks success with a deferred flag and lets
// any panic propagate unrecovered into targetRunner's own task-execution
// path (WorkerPool.runTask, Serializer.executeOne, ...), so a panicking
// task-and-reply task gets exactly the same group-accounting, metrics,
// and taskTraits.Handler routing as any other task instead of a
// second, divergent recovery path.
func postTaskAndReplyInternalWithTraits(
	targetRunner TaskRunner,
	task Task,
	taskTraits TaskTraits,
	reply Task,
	replyTraits TaskTraits,
	replyRunner TaskRunner,
) {
	if replyRunner == nil {
		// No reply runner specified, just execute the task.
		targetRunner.PostTaskWithTraits(task, taskTraits)
		return
	}

	wrappedTask := func(ctx context.Context) {
		succeeded := false
		defer func() {
			if succeeded {
				replyRunner.PostTaskWithTraits(reply, replyTraits)
			}
		}()
		task(ctx)
		succeeded = true
	}

	targetRunner.PostTaskWithTraits(wrappedTask, taskTraits)
}

// postTaskAndReplyInternal is a simplified version that uses the same traits for both task and reply.
func postTaskAndReplyInternal(
	targetRunner TaskRunner,
	task Task,
	reply Task,
	replyRunner TaskRunner,
	traits TaskTraits,
) {
	postTaskAndReplyInternalWithTraits(
		targetRunner,
		task,
		traits,
		reply,
		DefaultTaskTraits(), // Reply uses default traits
		replyRunner,
	)
}

// =============================================================================
// Non-generic PostTaskAndReply
// =============================================================================

// PostTaskAndReply posts task to targetRunner, then - only if task did not
// panic - posts reply to replyRunner. Both run with default traits.
func PostTaskAndReply(targetRunner TaskRunner, task Task, reply Task, replyRunner TaskRunner) {
	postTaskAndReplyInternal(targetRunner, task, reply, replyRunner, DefaultTaskTraits())
}

// PostTaskAndReplyWithTraits is PostTaskAndReply with explicit, independent
// traits for task and reply.
func PostTaskAndReplyWithTraits(
	targetRunner TaskRunner,
	task Task,
	taskTraits TaskTraits,
	reply Task,
	replyTraits TaskTraits,
	replyRunner TaskRunner,
) {
	postTaskAndReplyInternalWithTraits(targetRunner, task, taskTraits, reply, replyTraits, replyRunner)
}

// =============================================================================
// Generic PostTaskAndReply with Result
// =============================================================================

// PostTaskAndReplyWithResult executes a task that returns a result of type T and an error,
// then passes that result to a reply callback on the replyRunner.
//
// The task and reply are sequenced by wrappedTask/wrappedReply's shared
// closure capture, not by any explicit synchronization: the reply never
// runs until the task has returned, and by the time it does the result
// and err locals are already settled.
func PostTaskAndReplyWithResult[T any](
	targetRunner TaskRunner,
	task TaskWithResult[T],
	reply ReplyWithResult[T],
	replyRunner TaskRunner,
) {
	PostTaskAndReplyWithResultAndTraits(
		targetRunner,
		task,
		DefaultTaskTraits(),
		reply,
		DefaultTaskTraits(),
		replyRunner,
	)
}

// PostTaskAndReplyWithResultAndTraits is the full-featured version that allows specifying
// different traits for the task and reply separately.
//
// This is useful when:
// - Task is background work (BestEffort) but reply is UI update (UserVisible/UserBlocking)
// - Task has different priority requirements than the reply
func PostTaskAndReplyWithResultAndTraits[T any](
	targetRunner TaskRunner,
	task TaskWithResult[T],
	taskTraits TaskTraits,
	reply ReplyWithResult[T],
	replyTraits TaskTraits,
	replyRunner TaskRunner,
) {
	var result T
	var err error

	wrappedTask := func(ctx context.Context) {
		result, err = task(ctx)
	}

	wrappedReply := func(ctx context.Context) {
		reply(ctx, result, err)
	}

	postTaskAndReplyInternalWithTraits(
		targetRunner,
		wrappedTask,
		taskTraits,
		wrappedReply,
		replyTraits,
		replyRunner,
	)
}

// =============================================================================
// Delayed Task and Reply
// =============================================================================

// PostDelayedTaskAndReplyWithResult is similar to PostTaskAndReplyWithResult,
// but delays the execution of the task.
//
// The reply is NOT delayed - it executes immediately after the task completes.
// Only the initial task execution is delayed by the specified duration.
func PostDelayedTaskAndReplyWithResult[T any](
	targetRunner TaskRunner,
	task TaskWithResult[T],
	delay time.Duration,
	reply ReplyWithResult[T],
	replyRunner TaskRunner,
) {
	PostDelayedTaskAndReplyWithResultAndTraits(
		targetRunner,
		task,
		delay,
		DefaultTaskTraits(),
		reply,
		DefaultTaskTraits(),
		replyRunner,
	)
}

// PostDelayedTaskAndReplyWithResultAndTraits is the full-featured delayed version
// with separate traits for task and reply. Like
// postTaskAndReplyInternalWithTraits, a panic out of task propagates
// unrecovered into targetRunner's own execution path instead of being
// swallowed here, so taskTraits.Handler still fires.
func PostDelayedTaskAndReplyWithResultAndTraits[T any](
	targetRunner TaskRunner,
	task TaskWithResult[T],
	delay time.Duration,
	taskTraits TaskTraits,
	reply ReplyWithResult[T],
	replyTraits TaskTraits,
	replyRunner TaskRunner,
) {
	var result T
	var err error

	wrappedTask := func(ctx context.Context) {
		result, err = task(ctx)
	}

	wrappedReply := func(ctx context.Context) {
		reply(ctx, result, err)
	}

	delayedWrapper := func(ctx context.Context) {
		succeeded := false
		defer func() {
			if succeeded && replyRunner != nil {
				replyRunner.PostTaskWithTraits(wrappedReply, replyTraits)
			}
		}()
		wrappedTask(ctx)
		succeeded = true
	}

	targetRunner.PostDelayedTaskWithTraits(delayedWrapper, delay, taskTraits)
}
