package taskengine

import (
	"context"
	"fmt"
	"time"

	"github.com/basket/taskorc/internal/auditlog"
	"github.com/basket/taskorc/internal/llm"
	"github.com/basket/taskorc/internal/store"
)

// RunningTask handles running_task: the running-tasks consumer.
// It asks the next-state phase what the round produced, records it to
// History, and routes the task to whichever state the phase decided.
func (e *Engine) RunningTask(ctx context.Context, taskID int64) error {
	task, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("running_task: load task %d: %w", taskID, err)
	}
	if task.State == store.TaskStateUpdating {
		// A refactor landed mid-round; the round's outcome is moot.
		return nil
	}

	ws, err := e.store.GetWorkspace(ctx, taskID)
	if err != nil {
		return fmt.Errorf("running_task: load workspace: %w", err)
	}
	process := derefOr(ws.Process, "")

	var currUnits []store.Unit
	if task.CurrRoundID != nil {
		currUnits, err = e.store.GetRoundUnits(ctx, *task.CurrRoundID)
		if err != nil {
			return fmt.Errorf("running_task: load current round units: %w", err)
		}
	}
	chats, err := e.store.ListChat(ctx, taskID)
	if err != nil {
		return fmt.Errorf("running_task: load chats: %w", err)
	}

	var out nextStateOutput
	usage, err := e.call(ctx, llm.PhaseNextState, nextStateSchema, nextStateContent(process, currUnits, chats), task.MCPServerInfos, &out)
	if err != nil {
		e.failTask(ctx, task, "running_task.next_state", err)
		return nil
	}

	if err := e.store.UpdateWorkspace(ctx, taskID, nil, &out.Process, nil); err != nil {
		e.failTask(ctx, task, "running_task.persist_process", err)
		return nil
	}
	if _, err := e.store.AddHistory(ctx, taskID, out.State, &out.Process, &out.Thinking); err != nil {
		e.failTask(ctx, task, "running_task.add_history", err)
		return nil
	}
	if auditErr := e.audit.RecordState(ctx, task.SessionID, auditlog.StateEntry{
		Thinking: out.Thinking,
		Message:  "round concluded: " + out.State,
		Tokens:   usage.Input + usage.Output,
	}); auditErr != nil {
		e.logger.Error("running_task: audit write failed", "task_id", taskID, "error", auditErr)
	}

	switch store.TaskState(out.State) {
	case store.TaskStateActivating:
		return e.routeToActivating(ctx, task, out)
	case store.TaskStateScheduling:
		return e.routeToScheduling(ctx, task, out)
	case store.TaskStateWaiting:
		return e.routeToWaiting(ctx, task, out)
	case store.TaskStateFinished:
		return e.routeToFinished(ctx, task, ws.PRD, currUnits, out)
	case store.TaskStateFailed:
		e.failTask(ctx, task, "running_task.next_state_decision", fmt.Errorf("next-state phase decided FAILED"))
		return nil
	default:
		e.failTask(ctx, task, "running_task.unrecognised_state", fmt.Errorf("unrecognised next state %q", out.State))
		return nil
	}
}

func (e *Engine) routeToActivating(ctx context.Context, task *store.Task, out nextStateOutput) error {
	ok, err := e.store.TransitionState(ctx, task.ID, []store.TaskState{store.TaskStateActivating}, store.TaskStateActivating, nil)
	if err != nil {
		return fmt.Errorf("running_task: re-affirm activating %d: %w", task.ID, err)
	}
	if !ok {
		return nil
	}
	if err := e.dispatchRoundAndExecute(ctx, task.ID); err != nil {
		e.failTask(ctx, task, "running_task.dispatch_round", err)
	}
	return nil
}

func (e *Engine) routeToScheduling(ctx context.Context, task *store.Task, out nextStateOutput) error {
	next, err := time.Parse(time.RFC3339, out.NextExecuteTime)
	if err != nil {
		e.failTask(ctx, task, "running_task.parse_next_execute_time", err)
		return nil
	}
	if _, err := e.store.Reschedule(ctx, task.ID, []store.TaskState{store.TaskStateActivating}, next); err != nil {
		return fmt.Errorf("running_task: reschedule %d: %w", task.ID, err)
	}
	e.notifier.TaskRefresh(ctx, task.SessionID)
	return nil
}

func (e *Engine) routeToWaiting(ctx context.Context, task *store.Task, out nextStateOutput) error {
	ok, err := e.store.TransitionState(ctx, task.ID, []store.TaskState{store.TaskStateActivating}, store.TaskStateWaiting, nil)
	if err != nil {
		return fmt.Errorf("running_task: set waiting %d: %w", task.ID, err)
	}
	if !ok {
		return nil
	}
	if _, err := e.store.AddChat(ctx, task.ID, store.ChatRoleAssistant, out.NotifyUser); err != nil {
		return fmt.Errorf("running_task: add waiting chat %d: %w", task.ID, err)
	}
	e.notifier.TaskProvision(ctx, task.SessionID, task.ID, out.NotifyUser, task.Name, task.CreatedAt, string(store.TaskStateWaiting), out.Replenish)
	return nil
}

func (e *Engine) routeToFinished(ctx context.Context, task *store.Task, prd string, units []store.Unit, out nextStateOutput) error {
	var result resultSynthesiserOutput
	usage, err := e.call(ctx, llm.PhaseResultSynthesiser, resultSynthesiserSchema, resultSynthesiserContent(prd, out.Process, units), task.MCPServerInfos, &result)
	if err != nil {
		e.failTask(ctx, task, "running_task.result_synthesiser", err)
		return nil
	}
	if err := e.store.UpdateWorkspace(ctx, task.ID, nil, nil, &result.Result); err != nil {
		e.failTask(ctx, task, "running_task.persist_result", err)
		return nil
	}
	ok, err := e.store.TransitionState(ctx, task.ID, []store.TaskState{store.TaskStateActivating}, store.TaskStateFinished, nil)
	if err != nil {
		return fmt.Errorf("running_task: set finished %d: %w", task.ID, err)
	}
	if !ok {
		return nil
	}
	if auditErr := e.audit.RecordState(ctx, task.SessionID, auditlog.StateEntry{
		Thinking: result.Thinking,
		Message:  "result synthesised",
		Tokens:   usage.Input + usage.Output,
	}); auditErr != nil {
		e.logger.Error("running_task: result audit write failed", "task_id", task.ID, "error", auditErr)
	}
	e.notifier.TaskResultNotify(ctx, task.ID, task.Name, string(store.TaskStateFinished), task.SessionID)
	return nil
}
