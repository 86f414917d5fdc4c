package taskengine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/basket/taskorc/internal/llm"
	"github.com/basket/taskorc/internal/store"
)

func TestCreateTaskAnalystShortCircuitCreatesNoTask(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.llm.Enqueue(llm.PhaseAnalyst, []byte(`{"is_splittable":false,"thinking":"just a greeting"}`))

	task, reply, err := env.eng.CreateTask(ctx, "owner-1", "sess-1", "hi there", "UTC", nil)
	require.NoError(t, err)
	require.Nil(t, task)
	require.Equal(t, "just a greeting", reply)

	audits, err := env.store.ListAudits(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, audits, 1)
	require.Equal(t, store.AuditKindAnalyst, audits[0].Kind)
}

func TestFullRoundTripToFinished(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.llm.Enqueue(llm.PhaseAnalyst, []byte(`{
		"is_splittable": true,
		"name": "ship the report",
		"expect_execute_time": "2026-07-31T12:00:00Z",
		"keywords": ["report"],
		"prd": "produce the weekly report",
		"thinking": "clearly a task"
	}`))

	task, reply, err := env.eng.CreateTask(ctx, "owner-1", "sess-1", "send the weekly report", "UTC", nil)
	require.NoError(t, err)
	require.Empty(t, reply)
	require.NotNil(t, task)
	require.Equal(t, store.TaskStateQueuing, task.State)

	// CreateTask's call_soon already queued it onto ready-tasks; drive the
	// worker body directly so the test controls ordering.
	env.llm.Enqueue(llm.PhasePlanner, []byte(`{"process":"draft then send","thinking":"two steps"}`))
	env.llm.Enqueue(llm.PhaseUnitGenerator, []byte(`{
		"unit_list": [{"name": "draft", "objective": "write the draft"}],
		"thinking": "one unit is enough"
	}`))
	env.llm.Enqueue(llm.PhaseUnitExecutor, []byte(`{"output":"draft written","thinking":"done"}`))

	require.NoError(t, env.eng.ExecuteTask(ctx, task.ID))

	reloaded, err := env.store.GetTask(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, store.TaskStateActivating, reloaded.State)

	env.llm.Enqueue(llm.PhaseNextState, []byte(`{
		"process": "draft then send",
		"state": "FINISHED",
		"thinking": "both steps done"
	}`))
	env.llm.Enqueue(llm.PhaseResultSynthesiser, []byte(`{"result":"report sent","thinking":"wrap up"}`))

	require.NoError(t, env.eng.RunningTask(ctx, task.ID))

	final, err := env.store.GetTask(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, store.TaskStateFinished, final.State)

	ws, err := env.store.GetWorkspace(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, "report sent", *ws.Result)

	require.True(t, env.hasCall("TaskResultNotify", string(store.TaskStateFinished)))
}

func TestCallSoonIsIdempotentUnderDoubleInvocation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	task := &store.Task{
		SessionID: "sess-2", Owner: "owner-1", OwnerTimezone: "UTC",
		Name: "t", OriginalUserInput: "t", ExpectExecuteTime: env.clock.Now().Add(-time.Minute),
		State: store.TaskStateInitial,
	}
	taskID, err := env.store.CreateTaskWithWorkspace(ctx, task, "prd")
	require.NoError(t, err)

	require.NoError(t, env.eng.CallSoon(ctx, taskID))
	require.NoError(t, env.eng.CallSoon(ctx, taskID))

	reloaded, err := env.store.GetTask(ctx, taskID)
	require.NoError(t, err)
	require.Equal(t, store.TaskStateQueuing, reloaded.State)
	require.Equal(t, 1, env.countCalls("TaskRefresh"))
}

func TestReviewTaskFailsStuckActivatingTask(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	task := &store.Task{
		SessionID: "sess-3", Owner: "owner-1", OwnerTimezone: "UTC",
		Name: "stuck", OriginalUserInput: "t", ExpectExecuteTime: env.clock.Now(),
		State: store.TaskStateActivating,
	}
	taskID, err := env.store.CreateTaskWithWorkspace(ctx, task, "prd")
	require.NoError(t, err)
	_, err = env.store.TransitionState(ctx, taskID, []store.TaskState{store.TaskStateInitial}, store.TaskStateActivating, nil)
	require.NoError(t, err)

	require.NoError(t, env.eng.ReviewTask(ctx, taskID))

	reloaded, err := env.store.GetTask(ctx, taskID)
	require.NoError(t, err)
	require.Equal(t, store.TaskStateFailed, reloaded.State)
	require.True(t, env.hasCall("TaskResultNotify", string(store.TaskStateFailed)))
}

func TestWaitingTaskReplyMovesToSchedulingThenQueuing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	task := &store.Task{
		SessionID: "sess-4", Owner: "owner-1", OwnerTimezone: "UTC",
		Name: "needs input", OriginalUserInput: "t", ExpectExecuteTime: env.clock.Now().Add(-time.Minute),
		State: store.TaskStateInitial,
	}
	taskID, err := env.store.CreateTaskWithWorkspace(ctx, task, "prd")
	require.NoError(t, err)
	_, err = env.store.TransitionState(ctx, taskID, []store.TaskState{store.TaskStateInitial}, store.TaskStateWaiting, nil)
	require.NoError(t, err)
	_, err = env.store.AddChat(ctx, taskID, store.ChatRoleAssistant, "which region should I deploy to?")
	require.NoError(t, err)

	env.llm.Enqueue(llm.PhaseWaitingHandler, []byte(`{"process":"deploy to us-east","thinking":"resolved"}`))

	require.NoError(t, env.eng.WaitingTask(ctx, taskID, "us-east please"))

	reloaded, err := env.store.GetTask(ctx, taskID)
	require.NoError(t, err)
	require.Equal(t, store.TaskStateQueuing, reloaded.State)
}

func TestRefactorTaskDuringWaitingMovesThroughUpdatingToScheduling(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	task := &store.Task{
		SessionID: "sess-5", Owner: "owner-1", OwnerTimezone: "UTC",
		Name: "old scope", OriginalUserInput: "t", ExpectExecuteTime: env.clock.Now().Add(time.Hour),
		State: store.TaskStateInitial,
	}
	taskID, err := env.store.CreateTaskWithWorkspace(ctx, task, "old prd")
	require.NoError(t, err)
	_, err = env.store.TransitionState(ctx, taskID, []store.TaskState{store.TaskStateInitial}, store.TaskStateWaiting, nil)
	require.NoError(t, err)
	_, err = env.store.AddChat(ctx, taskID, store.ChatRoleAssistant, "question")
	require.NoError(t, err)

	env.llm.Enqueue(llm.PhaseRefactor, []byte(`{
		"name": "new scope",
		"expect_execute_time": "2026-07-31T13:00:00Z",
		"keywords": ["new"],
		"prd": "new prd",
		"thinking": "scope changed"
	}`))

	require.NoError(t, env.eng.RefactorTask(ctx, taskID, "actually do something different"))

	reloaded, err := env.store.GetTask(ctx, taskID)
	require.NoError(t, err)
	require.Equal(t, store.TaskStateQueuing, reloaded.State)
	require.Equal(t, "new scope", reloaded.Name)
	require.Nil(t, reloaded.CurrRoundID)
	require.Nil(t, reloaded.PrevRoundID)

	chats, err := env.store.ListChat(ctx, taskID)
	require.NoError(t, err)
	require.Empty(t, chats)
}

func TestRefactorTaskFailureLeavesStateUpdatingNotFailed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	task := &store.Task{
		SessionID: "sess-6", Owner: "owner-1", OwnerTimezone: "UTC",
		Name: "old scope", OriginalUserInput: "t", ExpectExecuteTime: env.clock.Now().Add(time.Hour),
		State: store.TaskStateInitial,
	}
	taskID, err := env.store.CreateTaskWithWorkspace(ctx, task, "old prd")
	require.NoError(t, err)
	_, err = env.store.TransitionState(ctx, taskID, []store.TaskState{store.TaskStateInitial}, store.TaskStateWaiting, nil)
	require.NoError(t, err)

	env.llm.Err[llm.PhaseRefactor] = fmt.Errorf("provider exploded")

	require.NoError(t, env.eng.RefactorTask(ctx, taskID, "actually do something different"))

	reloaded, err := env.store.GetTask(ctx, taskID)
	require.NoError(t, err)
	require.Equal(t, store.TaskStateUpdating, reloaded.State)

	audits, err := env.store.ListAudits(ctx, "sess-6")
	require.NoError(t, err)
	require.NotEmpty(t, audits)

	require.False(t, env.hasCall("TaskResultNotify", string(store.TaskStateFailed)))
}
