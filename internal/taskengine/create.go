package taskengine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/basket/taskorc/internal/auditlog"
	"github.com/basket/taskorc/internal/llm"
	"github.com/basket/taskorc/internal/store"
)

// CreateTask handles task admission. When the analyst judges the
// utterance too small to become a task, it returns (nil, reply, nil) — the
// conversational short-circuit. Otherwise it returns the freshly created,
// already-admitted Task.
func (e *Engine) CreateTask(ctx context.Context, owner, sessionID, text, ownerTimezone string, mcpServerInfos json.RawMessage) (*store.Task, string, error) {
	userContent := fmt.Sprintf("Owner timezone: %s\n\nUser input:\n%s", ownerTimezone, text)

	var out analystOutput
	usage, err := e.call(ctx, llm.PhaseAnalyst, analystSchema, userContent, mcpServerInfos, &out)
	if err != nil {
		return nil, "", fmt.Errorf("create_task: %w", err)
	}

	if !out.IsSplittable {
		if auditErr := e.audit.RecordAnalyst(ctx, sessionID, auditlog.AnalystEntry{
			Thinking: out.Thinking,
		}); auditErr != nil {
			e.logger.Error("create_task: analyst audit write failed", "error", auditErr)
		}
		return nil, out.Thinking, nil
	}

	expectExecuteTime, err := time.Parse(time.RFC3339, out.ExpectExecuteTime)
	if err != nil {
		return nil, "", fmt.Errorf("create_task: parse expect_execute_time %q: %w", out.ExpectExecuteTime, err)
	}

	task := &store.Task{
		SessionID:         sessionID,
		Owner:             owner,
		OwnerTimezone:     ownerTimezone,
		Name:              out.Name,
		OriginalUserInput: text,
		Keywords:          out.Keywords,
		MCPServerInfos:    mcpServerInfos,
		ExpectExecuteTime: expectExecuteTime,
		State:             store.TaskStateInitial,
	}

	taskID, err := e.store.CreateTaskWithWorkspace(ctx, task, out.PRD)
	if err != nil {
		return nil, "", fmt.Errorf("create_task: persist task: %w", err)
	}

	if auditErr := e.audit.RecordState(ctx, sessionID, auditlog.StateEntry{
		Thinking: out.Thinking,
		Message:  "task created",
		Tokens:   usage.Input + usage.Output,
	}); auditErr != nil {
		e.logger.Error("create_task: state audit write failed", "error", auditErr)
	}

	if err := e.CallSoon(ctx, taskID); err != nil {
		return nil, "", fmt.Errorf("create_task: call_soon: %w", err)
	}

	created, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, "", fmt.Errorf("create_task: reload task: %w", err)
	}
	return created, "", nil
}
