package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newDueTask(sessionID string, due time.Time) *Task {
	return &Task{
		SessionID:         sessionID,
		Owner:             "owner-1",
		OwnerTimezone:     "UTC",
		Name:              "initial task",
		OriginalUserInput: "do the thing",
		Keywords:          []string{"thing", "urgent"},
		ExpectExecuteTime: due,
		Priority:          5,
	}
}

func TestCreateTaskWithWorkspaceAndGet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.CreateTaskWithWorkspace(ctx, newDueTask("sess-1", time.Now().Add(-time.Minute)), "do the thing, carefully")
	require.NoError(t, err)
	require.NotZero(t, id)

	detail, err := s.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, TaskStateInitial, detail.Task.State)
	require.Equal(t, []string{"thing", "urgent"}, detail.Task.Keywords)
	require.NotNil(t, detail.Workspace)
	require.Equal(t, "do the thing, carefully", detail.Workspace.PRD)
	require.Empty(t, detail.Chats)
	require.Empty(t, detail.Histories)
}

func TestGetDispatchTaskIDsClaimsDueTasksOnce(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now()

	due, err := s.CreateTaskWithWorkspace(ctx, newDueTask("sess-1", now.Add(-time.Minute)), "prd")
	require.NoError(t, err)
	notYetDue, err := s.CreateTaskWithWorkspace(ctx, newDueTask("sess-1", now.Add(time.Hour)), "prd")
	require.NoError(t, err)

	ids, err := s.GetDispatchTaskIDs(ctx, now, 10)
	require.NoError(t, err)
	require.Equal(t, []int64{due}, ids)

	task, err := s.GetTask(ctx, due)
	require.NoError(t, err)
	require.Equal(t, TaskStateQueuing, task.State)

	stillPending, err := s.GetTask(ctx, notYetDue)
	require.NoError(t, err)
	require.Equal(t, TaskStateInitial, stillPending.State)

	again, err := s.GetDispatchTaskIDs(ctx, now, 10)
	require.NoError(t, err)
	require.Empty(t, again, "a claimed task must not be claimed twice")
}

func TestGetReviewTaskIDsFindsStaleInProgressTasks(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now()

	id, err := s.CreateTaskWithWorkspace(ctx, newDueTask("sess-1", now.Add(-time.Hour)), "prd")
	require.NoError(t, err)
	stale := now.Add(-30 * time.Minute)
	ok, err := s.TransitionState(ctx, id, []TaskState{TaskStateInitial}, TaskStateActivating, &stale)
	require.NoError(t, err)
	require.True(t, ok)

	ids, err := s.GetReviewTaskIDs(ctx, now, 20*time.Minute, 10)
	require.NoError(t, err)
	require.Equal(t, []int64{id}, ids)
}

func TestTransitionStateGuardsPriorState(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.CreateTaskWithWorkspace(ctx, newDueTask("sess-1", time.Now()), "prd")
	require.NoError(t, err)

	ok, err := s.TransitionState(ctx, id, []TaskState{TaskStateWaiting}, TaskStateFinished, nil)
	require.NoError(t, err)
	require.False(t, ok, "state must not flip when current state is not in allowedFrom")

	ok, err = s.TransitionState(ctx, id, []TaskState{TaskStateInitial}, TaskStateQueuing, nil)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestDispatchRoundCancelsStaleUnitsAndRotatesPointers(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.CreateTaskWithWorkspace(ctx, newDueTask("sess-1", time.Now()), "prd")
	require.NoError(t, err)

	oldPrev, err := s.DispatchRound(ctx, id, "round-1")
	require.NoError(t, err)
	require.Nil(t, oldPrev)

	unitID, err := s.CreateUnit(ctx, id, "round-1", 0, "step-1", "do a thing")
	require.NoError(t, err)
	_, err = s.SetUnitRunning(ctx, unitID)
	require.NoError(t, err)

	prev, err := s.DispatchRound(ctx, id, "round-2")
	require.NoError(t, err)
	require.NotNil(t, prev)
	require.Equal(t, "round-1", *prev)

	unit, err := s.GetUnit(ctx, unitID)
	require.NoError(t, err)
	require.Equal(t, UnitStateCancelled, unit.State, "stale round units must be cancelled on round rotation")

	task, err := s.GetTask(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "round-2", *task.CurrRoundID)
	require.Equal(t, "round-1", *task.PrevRoundID)
}

func TestRefactorKeepsTaskAndWorkspaceButClearsChatUnitHistory(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.CreateTaskWithWorkspace(ctx, newDueTask("sess-1", time.Now()), "prd")
	require.NoError(t, err)
	_, err = s.AddChat(ctx, id, ChatRoleUser, "hello")
	require.NoError(t, err)
	_, err = s.CreateUnit(ctx, id, "round-1", 0, "step", "objective")
	require.NoError(t, err)
	_, err = s.AddHistory(ctx, id, string(TaskStateInitial), nil, nil)
	require.NoError(t, err)

	require.NoError(t, s.Refactor(ctx, id))

	chats, err := s.ListChat(ctx, id)
	require.NoError(t, err)
	require.Empty(t, chats)

	histories, err := s.ListHistory(ctx, id)
	require.NoError(t, err)
	require.Empty(t, histories)

	_, err = s.GetTask(ctx, id)
	require.NoError(t, err, "refactor must not delete the task itself")

	_, err = s.GetWorkspace(ctx, id)
	require.NoError(t, err, "refactor must not delete the workspace")
}

func TestDeleteCascadesEverythingIncludingTask(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.CreateTaskWithWorkspace(ctx, newDueTask("sess-1", time.Now()), "prd")
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, id))

	_, err = s.GetTask(ctx, id)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = s.GetWorkspace(ctx, id)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSearchByKeywordsMatchesFTS(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.CreateTaskWithWorkspace(ctx, newDueTask("sess-1", time.Now()), "prd")
	require.NoError(t, err)

	results, err := s.SearchByKeywords(ctx, []string{"sess-1"}, "urgent")
	require.NoError(t, err)
	require.Len(t, results, 1)

	none, err := s.SearchByKeywords(ctx, []string{"sess-1"}, "nonexistentterm")
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestCountStateBuckets(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id1, err := s.CreateTaskWithWorkspace(ctx, newDueTask("sess-1", time.Now()), "prd")
	require.NoError(t, err)
	id2, err := s.CreateTaskWithWorkspace(ctx, newDueTask("sess-1", time.Now()), "prd")
	require.NoError(t, err)

	ok, err := s.TransitionState(ctx, id2, []TaskState{TaskStateInitial}, TaskStateFinished, nil)
	require.NoError(t, err)
	require.True(t, ok)

	counts, err := s.CountStateBuckets(ctx, "sess-1")
	require.NoError(t, err)
	require.Equal(t, 1, counts.InProgress, "id1 still INITIAL counts as in_progress")
	require.Equal(t, 1, counts.Finished)
	_ = id1
}

func TestAuditLogRecordAndList(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Record(ctx, "sess-1", AuditKindState, []byte(`{"thinking":"x","message":"y","tokens":12}`))
	require.NoError(t, err)

	entries, err := s.ListAudits(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, AuditKindState, entries[0].Kind)
}
