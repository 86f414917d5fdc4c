package taskengine

import (
	"context"
	"fmt"

	"github.com/basket/taskorc/internal/auditlog"
	"github.com/basket/taskorc/internal/llm"
	"github.com/basket/taskorc/internal/store"
)

// WaitingTask handles waiting_task: the user's reply to a WAITING
// task's question. Unlike execute_task/running_task, a failure here does
// not fall through to FAILED — the task stays WAITING so the user can try
// again, and only an audit row records what went wrong.
func (e *Engine) WaitingTask(ctx context.Context, taskID int64, userMessage string) error {
	task, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("waiting_task: load task %d: %w", taskID, err)
	}

	ok, err := e.store.TransitionState(ctx, taskID, []store.TaskState{store.TaskStateWaiting}, store.TaskStateScheduling, nil)
	if err != nil {
		return fmt.Errorf("waiting_task: set scheduling %d: %w", taskID, err)
	}
	if !ok {
		// Not actually waiting on anyone — ignore the reply.
		return nil
	}

	if _, err := e.store.AddChat(ctx, taskID, store.ChatRoleUser, userMessage); err != nil {
		e.writeFailureAudit(ctx, task.SessionID, "waiting_task.add_chat", err)
		return nil
	}

	ws, err := e.store.GetWorkspace(ctx, taskID)
	if err != nil {
		e.writeFailureAudit(ctx, task.SessionID, "waiting_task.load_workspace", err)
		return nil
	}
	chats, err := e.store.ListChat(ctx, taskID)
	if err != nil {
		e.writeFailureAudit(ctx, task.SessionID, "waiting_task.load_chats", err)
		return nil
	}
	lastQuestion := lastAssistantMessage(chats)

	var out waitingHandlerOutput
	usage, err := e.call(ctx, llm.PhaseWaitingHandler, waitingHandlerSchema,
		waitingHandlerContent(derefOr(ws.Process, ""), lastQuestion, userMessage), task.MCPServerInfos, &out)
	if err != nil {
		e.writeFailureAudit(ctx, task.SessionID, "waiting_task.waiting_handler", err)
		return nil
	}

	if err := e.store.UpdateWorkspace(ctx, taskID, nil, &out.Process, nil); err != nil {
		e.writeFailureAudit(ctx, task.SessionID, "waiting_task.persist_process", err)
		return nil
	}
	if auditErr := e.audit.RecordState(ctx, task.SessionID, auditlog.StateEntry{
		Thinking: out.Thinking,
		Message:  "user reply processed",
		Tokens:   usage.Input + usage.Output,
	}); auditErr != nil {
		e.logger.Error("waiting_task: audit write failed", "task_id", taskID, "error", auditErr)
	}

	if err := e.CallSoon(ctx, taskID); err != nil {
		e.writeFailureAudit(ctx, task.SessionID, "waiting_task.call_soon", err)
	}
	return nil
}

func lastAssistantMessage(chats []store.Chat) string {
	for i := len(chats) - 1; i >= 0; i-- {
		if chats[i].Role == store.ChatRoleAssistant {
			return chats[i].Message
		}
	}
	return ""
}
