package taskengine

import (
	"context"
	"fmt"
	"time"

	"github.com/basket/taskorc/internal/auditlog"
	"github.com/basket/taskorc/internal/llm"
	"github.com/basket/taskorc/internal/store"
)

// RefactorTask handles refactor_task: the user asked to change a
// task's scope. UPDATING is exclusive of every other state transition
// (invariant 3) until the refactor either lands or fails. Unlike
// execute_task/running_task, a failure here does not fall through to
// FAILED — the task stays at whatever state it was in (normally UPDATING)
// so an operator can replay, and only an audit row records what went
// wrong.
func (e *Engine) RefactorTask(ctx context.Context, taskID int64, updateText string) error {
	task, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("refactor_task: load task %d: %w", taskID, err)
	}
	if task.State.IsTerminal() {
		return nil
	}

	refactorableFrom := []store.TaskState{
		store.TaskStateInitial, store.TaskStateQueuing, store.TaskStateActivating,
		store.TaskStateWaiting, store.TaskStateScheduling,
	}
	ok, err := e.store.TransitionState(ctx, taskID, refactorableFrom, store.TaskStateUpdating, nil)
	if err != nil {
		return fmt.Errorf("refactor_task: set updating %d: %w", taskID, err)
	}
	if !ok {
		return e.stateGuardMiss(ctx)
	}
	e.notifier.TaskRefresh(ctx, task.SessionID)

	ws, err := e.store.GetWorkspace(ctx, taskID)
	if err != nil {
		e.writeFailureAudit(ctx, task.SessionID, "refactor_task.load_workspace", err)
		return nil
	}

	var out refactorOutput
	usage, err := e.call(ctx, llm.PhaseRefactor, refactorSchema, refactorContent(ws.PRD, updateText), task.MCPServerInfos, &out)
	if err != nil {
		e.writeFailureAudit(ctx, task.SessionID, "refactor_task.refactor", err)
		return nil
	}

	expectExecuteTime, err := time.Parse(time.RFC3339, out.ExpectExecuteTime)
	if err != nil {
		e.writeFailureAudit(ctx, task.SessionID, "refactor_task.parse_expect_execute_time", err)
		return nil
	}

	if err := e.store.Refactor(ctx, taskID); err != nil {
		e.writeFailureAudit(ctx, task.SessionID, "refactor_task.cascade", err)
		return nil
	}
	if err := e.store.RefactorTaskFields(ctx, taskID, out.Name, out.Keywords, expectExecuteTime); err != nil {
		e.writeFailureAudit(ctx, task.SessionID, "refactor_task.fields", err)
		return nil
	}
	if _, err := e.store.TransitionState(ctx, taskID, []store.TaskState{store.TaskStateUpdating}, store.TaskStateScheduling, nil); err != nil {
		e.writeFailureAudit(ctx, task.SessionID, "refactor_task.set_scheduling", err)
		return nil
	}
	if err := e.store.UpdateWorkspace(ctx, taskID, &out.PRD, ptr(""), ptr("")); err != nil {
		e.writeFailureAudit(ctx, task.SessionID, "refactor_task.persist_workspace", err)
		return nil
	}

	if auditErr := e.audit.RecordState(ctx, task.SessionID, auditlog.StateEntry{
		Thinking: out.Thinking,
		Message:  "task refactored",
		Tokens:   usage.Input + usage.Output,
	}); auditErr != nil {
		e.logger.Error("refactor_task: audit write failed", "task_id", taskID, "error", auditErr)
	}
	e.notifier.TaskRefresh(ctx, task.SessionID)

	if err := e.CallSoon(ctx, taskID); err != nil {
		e.writeFailureAudit(ctx, task.SessionID, "refactor_task.call_soon", err)
	}
	return nil
}
