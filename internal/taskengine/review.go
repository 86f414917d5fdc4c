package taskengine

import (
	"context"
	"fmt"

	"github.com/basket/taskorc/internal/auditlog"
	"github.com/basket/taskorc/internal/store"
)

// ReviewTask handles review_task: the review-tasks consumer fired
// for a task the scheduler found stuck in ACTIVATING past its stale-after
// window (reviewStaleAfter). The round it was running is presumed dead; it
// is reclaimed to FAILED rather than resumed, since nothing durable records
// how far the stuck round got.
func (e *Engine) ReviewTask(ctx context.Context, taskID int64) error {
	task, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("review_task: load task %d: %w", taskID, err)
	}

	ok, err := e.store.TransitionState(ctx, taskID, []store.TaskState{store.TaskStateActivating}, store.TaskStateFailed, nil)
	if err != nil {
		return fmt.Errorf("review_task: set failed %d: %w", taskID, err)
	}
	if !ok {
		// Recovered on its own (or was already terminal) before review ran.
		return nil
	}
	if e.metrics != nil {
		e.metrics.ReviewRecoveriesTotal.Add(ctx, 1)
	}

	lasted := "never executed"
	if task.LastedExecuteTime != nil {
		lasted = task.LastedExecuteTime.UTC().Format("2006-01-02T15:04:05Z07:00")
	}
	if auditErr := e.audit.RecordState(ctx, task.SessionID, auditlog.StateEntry{
		Thinking: "review loop reclaimed a stuck task; last execution: " + lasted,
		Message:  "task failed by review",
	}); auditErr != nil {
		e.logger.Error("review_task: audit write failed", "task_id", taskID, "error", auditErr)
	}
	e.notifier.TaskResultNotify(ctx, taskID, task.Name, string(store.TaskStateFailed), task.SessionID)
	return nil
}
