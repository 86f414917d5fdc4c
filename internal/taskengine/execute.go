package taskengine

import (
	"context"
	"errors"
	"fmt"

	"github.com/basket/taskorc/internal/store"
)

// ExecuteTask is the ready-tasks worker body.
func (e *Engine) ExecuteTask(ctx context.Context, taskID int64) error {
	task, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("execute_task: load task %d: %w", taskID, err)
	}

	if task.State != store.TaskStateQueuing {
		if task.State.IsTerminal() {
			// Duplicate delivery of a task that has since terminated, or a
			// user cancellation — drop silently.
			return nil
		}
		// Not yet due, or reclaimed by review — re-arm rather than race.
		return e.CallSoon(ctx, taskID)
	}

	ok, err := e.store.TransitionState(ctx, taskID, []store.TaskState{store.TaskStateQueuing}, store.TaskStateActivating, nil)
	if err != nil {
		return fmt.Errorf("execute_task: set activating %d: %w", taskID, err)
	}
	if !ok {
		return e.stateGuardMiss(ctx)
	}
	e.notifier.TaskRefresh(ctx, task.SessionID)

	task, err = e.store.GetTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("execute_task: reload task %d: %w", taskID, err)
	}

	if err := e.planIfNeeded(ctx, task); err != nil {
		e.failTask(ctx, task, "execute_task.plan", err)
		return nil
	}
	if err := e.dispatchRoundAndExecute(ctx, taskID); err != nil {
		e.failTask(ctx, task, "execute_task.dispatch_round", err)
		return nil
	}
	return nil
}

// failTask is the shared catch-all path for execute_task/running_task:
// set state=FAILED, write an audit row with the error, and notify.
func (e *Engine) failTask(ctx context.Context, task *store.Task, stage string, cause error) {
	if errors.Is(cause, ErrStateGuardMiss) {
		return
	}
	e.writeFailureAudit(ctx, task.SessionID, stage, cause)
	if _, err := e.store.TransitionState(ctx, task.ID, nil, store.TaskStateFailed, nil); err != nil {
		e.logger.Error("failTask: could not force FAILED", "task_id", task.ID, "error", err)
	}
	e.notifier.TaskResultNotify(ctx, task.ID, task.Name, string(store.TaskStateFailed), task.SessionID)
}
