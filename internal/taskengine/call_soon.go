package taskengine

import (
	"context"
	"fmt"

	"github.com/basket/taskorc/internal/scheduler"
	"github.com/basket/taskorc/internal/store"
)

// CallSoon handles a manual nudge: if the task is already due, claim
// it into QUEUING and publish immediately; otherwise leave it for the
// admission producer's next sweep. Idempotent when the task is already
// QUEUING: TransitionState's guard simply finds no matching row and does
// nothing.
func (e *Engine) CallSoon(ctx context.Context, taskID int64) error {
	task, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("call_soon: load task %d: %w", taskID, err)
	}

	now := e.clock.Now()
	if task.ExpectExecuteTime.After(now) {
		return nil
	}

	ok, err := e.store.TransitionState(ctx, taskID,
		[]store.TaskState{store.TaskStateInitial, store.TaskStateScheduling},
		store.TaskStateQueuing, &now)
	if err != nil {
		return fmt.Errorf("call_soon: transition task %d: %w", taskID, err)
	}
	if !ok {
		// Already QUEUING (or otherwise ineligible) — idempotent no-op.
		return nil
	}

	e.notifier.TaskRefresh(ctx, task.SessionID)

	if _, err := e.queue.Send(ctx, scheduler.TopicReadyTasks, TaskIDPayload{TaskID: taskID}); err != nil {
		return fmt.Errorf("call_soon: publish task %d: %w", taskID, err)
	}
	return nil
}
