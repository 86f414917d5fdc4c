package taskengine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/basket/taskorc/internal/auditlog"
	"github.com/basket/taskorc/internal/llm"
	"github.com/basket/taskorc/internal/otel"
	"github.com/basket/taskorc/internal/store"
)

// planIfNeeded runs the planner phase exactly once per task: it only
// fires if both curr_round_id and prev_round_id are null — i.e. before
// the task has ever dispatched a
// round.
func (e *Engine) planIfNeeded(ctx context.Context, task *store.Task) error {
	if task.CurrRoundID != nil || task.PrevRoundID != nil {
		return nil
	}

	ws, err := e.store.GetWorkspace(ctx, task.ID)
	if err != nil {
		return fmt.Errorf("plan: load workspace: %w", err)
	}

	var out plannerOutput
	usage, err := e.call(ctx, llm.PhasePlanner, plannerSchema, plannerContent(ws.PRD), task.MCPServerInfos, &out)
	if err != nil {
		return fmt.Errorf("plan: %w", err)
	}

	if err := e.store.UpdateWorkspace(ctx, task.ID, nil, &out.Process, nil); err != nil {
		return fmt.Errorf("plan: persist process: %w", err)
	}

	if auditErr := e.audit.RecordState(ctx, task.SessionID, auditlog.StateEntry{
		Thinking: out.Thinking,
		Message:  "plan generated",
		Tokens:   usage.Input + usage.Output,
	}); auditErr != nil {
		e.logger.Error("plan: audit write failed", "task_id", task.ID, "error", auditErr)
	}
	return nil
}

// dispatchRoundAndExecute generates the next round and executes it; it is
// also the re-entry point for running_task's ACTIVATING branch: generate the next
// round's unit list, atomically rotate round pointers (cancelling the
// stale round's non-terminal units in the same transaction), fan the new
// round's units out in parallel, then publish to running-tasks once every
// unit has settled.
func (e *Engine) dispatchRoundAndExecute(ctx context.Context, taskID int64) error {
	task, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("dispatch round: load task: %w", err)
	}
	ws, err := e.store.GetWorkspace(ctx, taskID)
	if err != nil {
		return fmt.Errorf("dispatch round: load workspace: %w", err)
	}
	process := derefOr(ws.Process, "")

	var genOut unitGeneratorOutput
	usage, err := e.call(ctx, llm.PhaseUnitGenerator, unitGeneratorSchema, unitGeneratorContent(process), task.MCPServerInfos, &genOut)
	if err != nil {
		return fmt.Errorf("dispatch round: generate units: %w", err)
	}

	newRoundID := uuid.NewString()
	oldCurrRoundID, err := e.store.DispatchRound(ctx, taskID, newRoundID)
	if err != nil {
		return fmt.Errorf("dispatch round: rotate round pointers: %w", err)
	}

	for seq, u := range genOut.UnitList {
		if _, err := e.store.CreateUnit(ctx, taskID, newRoundID, seq, u.Name, u.Objective); err != nil {
			return fmt.Errorf("dispatch round: create unit %q: %w", u.Name, err)
		}
	}

	if auditErr := e.audit.RecordState(ctx, task.SessionID, auditlog.StateEntry{
		Thinking: genOut.Thinking,
		Message:  fmt.Sprintf("round %s dispatched with %d units", newRoundID, len(genOut.UnitList)),
		Tokens:   usage.Input + usage.Output,
	}); auditErr != nil {
		e.logger.Error("dispatch round: audit write failed", "task_id", taskID, "error", auditErr)
	}

	var prevUnits []store.Unit
	if oldCurrRoundID != nil {
		prevUnits, err = e.store.GetRoundUnits(ctx, *oldCurrRoundID)
		if err != nil {
			return fmt.Errorf("dispatch round: load previous round units: %w", err)
		}
	}
	chats, err := e.store.ListChat(ctx, taskID)
	if err != nil {
		return fmt.Errorf("dispatch round: load chats: %w", err)
	}

	unitIDs, err := e.store.GetRoundUnitIDs(ctx, newRoundID)
	if err != nil {
		return fmt.Errorf("dispatch round: load new round unit ids: %w", err)
	}

	if e.metrics != nil {
		e.metrics.UnitsDispatchedTotal.Add(ctx, int64(len(unitIDs)))
	}
	e.executeRound(ctx, task, ws.PRD, ws.CreatedAt, prevUnits, chats, unitIDs)

	if _, err := e.queue.Send(ctx, TopicRunningTasks, TaskIDPayload{TaskID: taskID}); err != nil {
		return fmt.Errorf("dispatch round: publish running task: %w", err)
	}
	return nil
}

// executeRound fans unit execution out one goroutine per unit and waits for
// all to settle, grounded on coordinator.Waiter.WaitForAll: a unit's
// failure is logged and audited but never aborts its siblings, mirroring
// "errors's collected, no early abort" contract exactly.
func (e *Engine) executeRound(ctx context.Context, task *store.Task, prd string, prdCreatedAt time.Time, prevUnits []store.Unit, chats []store.Chat, unitIDs []int64) {
	ctx, span := otel.StartSpan(ctx, e.tracer, "taskengine.execute_round", otel.AttrTaskID.String(fmt.Sprint(task.ID)))
	defer span.End()
	if e.metrics != nil {
		e.metrics.ActiveRounds.Add(ctx, 1)
		defer e.metrics.ActiveRounds.Add(ctx, -1)
	}

	var wg sync.WaitGroup
	for _, unitID := range unitIDs {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			if err := e.executeUnit(ctx, task, prd, prdCreatedAt, prevUnits, chats, id); err != nil {
				e.logger.Error("unit execution failed", "task_id", task.ID, "unit_id", id, "error", err)
				if auditErr := e.audit.RecordState(ctx, task.SessionID, auditlog.StateEntry{
					Thinking: err.Error(),
					Message:  fmt.Sprintf("unit %d failed", id),
				}); auditErr != nil {
					e.logger.Error("unit failure audit write failed", "unit_id", id, "error", auditErr)
				}
			}
		}(unitID)
	}
	wg.Wait()
}

func (e *Engine) executeUnit(ctx context.Context, task *store.Task, prd string, prdCreatedAt time.Time, prevUnits []store.Unit, chats []store.Chat, unitID int64) error {
	ok, err := e.store.SetUnitRunning(ctx, unitID)
	if err != nil {
		return fmt.Errorf("set unit %d running: %w", unitID, err)
	}
	if !ok {
		// Already claimed by a duplicate delivery, or no longer CREATED —
		// a duplicate invocation of the same round is a no-op here.
		return nil
	}

	unit, err := e.store.GetUnit(ctx, unitID)
	if err != nil {
		return fmt.Errorf("load unit %d: %w", unitID, err)
	}

	var out unitExecutorOutput
	usage, err := e.call(ctx, llm.PhaseUnitExecutor, unitExecutorSchema,
		unitExecutorContent(unit.Objective, prevUnits, prd, prdCreatedAt, chats),
		task.MCPServerInfos, &out)
	if err != nil {
		return fmt.Errorf("execute unit %d: %w", unitID, err)
	}

	if err := e.store.CompleteUnit(ctx, unitID, out.Output); err != nil {
		return fmt.Errorf("complete unit %d: %w", unitID, err)
	}

	if auditErr := e.audit.RecordState(ctx, task.SessionID, auditlog.StateEntry{
		Thinking: out.Thinking,
		Message:  fmt.Sprintf("unit %q completed", unit.Name),
		Tokens:   usage.Input + usage.Output,
	}); auditErr != nil {
		e.logger.Error("unit completion audit write failed", "unit_id", unitID, "error", auditErr)
	}
	return nil
}
