package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// CreateTaskWithWorkspace atomically inserts a Task row (state=INITIAL) and
// its 1:1 Workspace(prd) row. Grounded on createTask's
// (internal/persistence/tasks.go), generalized from a single tasks insert
// to the task+workspace pair task admission requires in one
// transaction.
func (s *Store) CreateTaskWithWorkspace(ctx context.Context, t *Task, prd string) (int64, error) {
	if t.SessionID == "" || t.Owner == "" {
		return 0, fmt.Errorf("%w: session_id and owner are required", ErrValidation)
	}
	var taskID int64
	err := retryOnBusy(ctx, 5, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin create task tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		mcp := t.MCPServerInfos
		if mcp == nil {
			mcp = json.RawMessage("{}")
		}
		meta := t.Metadata
		if meta == nil {
			meta = json.RawMessage("{}")
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO tasks (
				session_id, owner, owner_timezone, name, original_user_input,
				keywords, mcp_server_infos, metadata, expect_execute_time,
				priority, state, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP);
		`, t.SessionID, t.Owner, t.OwnerTimezone, t.Name, t.OriginalUserInput,
			joinKeywords(t.Keywords), string(mcp), string(meta), t.ExpectExecuteTime,
			t.Priority, string(TaskStateInitial))
		if err != nil {
			return fmt.Errorf("insert task: %w", err)
		}
		taskID, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("task last insert id: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO tasks_workspace (task_id, prd, created_at, updated_at)
			VALUES (?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP);
		`, taskID, prd); err != nil {
			return fmt.Errorf("insert workspace: %w", err)
		}
		return tx.Commit()
	})
	if err != nil {
		return 0, err
	}
	return taskID, nil
}

func scanTask(scanFn func(dest ...any) error) (*Task, error) {
	var t Task
	var keywords string
	var mcp, meta string
	var lasted sql.NullTime
	var currRound, prevRound sql.NullString
	var deletedAt sql.NullTime
	if err := scanFn(
		&t.ID, &t.SessionID, &t.Owner, &t.OwnerTimezone, &t.Name, &t.OriginalUserInput,
		&keywords, &mcp, &meta, &t.ExpectExecuteTime, &lasted, &t.Priority, &t.State,
		&currRound, &prevRound, &t.CreatedAt, &t.UpdatedAt, &t.IsDeleted, &deletedAt,
	); err != nil {
		return nil, err
	}
	t.Keywords = splitKeywords(keywords)
	t.MCPServerInfos = json.RawMessage(mcp)
	t.Metadata = json.RawMessage(meta)
	t.LastedExecuteTime = timePtrFromNull(lasted)
	t.CurrRoundID = strPtrFromNull(currRound)
	t.PrevRoundID = strPtrFromNull(prevRound)
	t.DeletedAt = timePtrFromNull(deletedAt)
	return &t, nil
}

const taskColumns = `
	id, session_id, owner, owner_timezone, name, original_user_input,
	keywords, mcp_server_infos, metadata, expect_execute_time, lasted_execute_time,
	priority, state, curr_round_id, prev_round_id, created_at, updated_at, is_deleted, deleted_at
`

// GetTask loads a single Task by id, ErrNotFound if missing or soft-deleted.
func (s *Store) GetTask(ctx context.Context, id int64) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ? AND is_deleted = 0;`, id)
	t, err := scanTask(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// GetWorkspace loads the 1:1 Workspace for a task.
func (s *Store) GetWorkspace(ctx context.Context, taskID int64) (*Workspace, error) {
	var w Workspace
	var process, result sql.NullString
	var deletedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT task_id, prd, process, result, created_at, updated_at, is_deleted, deleted_at
		FROM tasks_workspace WHERE task_id = ? AND is_deleted = 0;
	`, taskID).Scan(&w.TaskID, &w.PRD, &process, &result, &w.CreatedAt, &w.UpdatedAt, &w.IsDeleted, &deletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get workspace: %w", err)
	}
	w.Process = strPtrFromNull(process)
	w.Result = strPtrFromNull(result)
	w.DeletedAt = timePtrFromNull(deletedAt)
	return &w, nil
}

// TaskDetail bundles a Task with its most-recent windowed relations, the
// shape a single-task read returns.
type TaskDetail struct {
	Task      *Task
	Workspace *Workspace
	Chats     []Chat     // most recent 10, ascending by created_at
	Histories []History  // most recent 10, ascending by created_at
}

// Get loads a Task with its Workspace and the most-recent-10 Chat and
// History rows via a windowed ROW_NUMBER() subquery, the SQLite idiom for
// a partition-by-task_id / order-by-created_at-DESC / rank<=10
// query. Grounded on internal/persistence/tasks.go's windowed patterns,
// generalized from event pagination to a fixed most-recent-10 preload.
func (s *Store) Get(ctx context.Context, taskID int64) (*TaskDetail, error) {
	task, err := s.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	ws, err := s.GetWorkspace(ctx, taskID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	chats, err := s.recentChats(ctx, taskID, 10)
	if err != nil {
		return nil, err
	}
	histories, err := s.recentHistories(ctx, taskID, 10)
	if err != nil {
		return nil, err
	}
	return &TaskDetail{Task: task, Workspace: ws, Chats: chats, Histories: histories}, nil
}

func (s *Store) recentChats(ctx context.Context, taskID int64, n int) ([]Chat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_id, role, message, created_at, updated_at, is_deleted, deleted_at
		FROM (
			SELECT *, ROW_NUMBER() OVER (PARTITION BY task_id ORDER BY created_at DESC) AS rn
			FROM tasks_chat
			WHERE task_id = ? AND is_deleted = 0
		)
		WHERE rn <= ?
		ORDER BY created_at ASC;
	`, taskID, n)
	if err != nil {
		return nil, fmt.Errorf("recent chats: %w", err)
	}
	defer rows.Close()

	var out []Chat
	for rows.Next() {
		var c Chat
		var deletedAt sql.NullTime
		if err := rows.Scan(&c.ID, &c.TaskID, &c.Role, &c.Message, &c.CreatedAt, &c.UpdatedAt, &c.IsDeleted, &deletedAt); err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		c.DeletedAt = timePtrFromNull(deletedAt)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) recentHistories(ctx context.Context, taskID int64, n int) ([]History, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_id, state, process, thinking, created_at, updated_at, is_deleted, deleted_at
		FROM (
			SELECT *, ROW_NUMBER() OVER (PARTITION BY task_id ORDER BY created_at DESC) AS rn
			FROM tasks_history
			WHERE task_id = ? AND is_deleted = 0
		)
		WHERE rn <= ?
		ORDER BY created_at ASC;
	`, taskID, n)
	if err != nil {
		return nil, fmt.Errorf("recent histories: %w", err)
	}
	defer rows.Close()

	var out []History
	for rows.Next() {
		var h History
		var process, thinking sql.NullString
		var deletedAt sql.NullTime
		if err := rows.Scan(&h.ID, &h.TaskID, &h.State, &process, &thinking, &h.CreatedAt, &h.UpdatedAt, &h.IsDeleted, &deletedAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		h.Process = strPtrFromNull(process)
		h.Thinking = strPtrFromNull(thinking)
		h.DeletedAt = timePtrFromNull(deletedAt)
		out = append(out, h)
	}
	return out, rows.Err()
}

// GetDispatchTaskIDs is the admission primitive: atomically
// selects non-deleted tasks in {INITIAL, SCHEDULING} whose
// expect_execute_time is due, ordered (expect_execute_time ASC, priority
// DESC, created_at ASC), and flips them to QUEUING with
// lasted_execute_time=now() in the same BEGIN IMMEDIATE transaction so a
// second concurrent admission producer's claim blocks/retries rather than
// double-claiming (invariant: testable property 1, admission atomicity).
func (s *Store) GetDispatchTaskIDs(ctx context.Context, now time.Time, limit int) ([]int64, error) {
	if limit <= 0 {
		limit = 100
	}
	var ids []int64
	err := retryOnBusy(ctx, 5, func() error {
		ids = nil
		itx, err := s.beginImmediate(ctx)
		if err != nil {
			return err
		}
		committed := false
		defer func() {
			if !committed {
				_ = itx.Rollback(ctx)
			}
		}()

		rows, err := itx.QueryContext(ctx, `
			SELECT id FROM tasks
			WHERE is_deleted = 0 AND state IN (?, ?) AND expect_execute_time < ?
			ORDER BY expect_execute_time ASC, priority DESC, created_at ASC
			LIMIT ?;
		`, string(TaskStateInitial), string(TaskStateScheduling), now, limit)
		if err != nil {
			return fmt.Errorf("select dispatch candidates: %w", err)
		}
		var candidates []int64
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return fmt.Errorf("scan dispatch candidate: %w", err)
			}
			candidates = append(candidates, id)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()

		for _, id := range candidates {
			res, err := itx.ExecContext(ctx, `
				UPDATE tasks
				SET state = ?, lasted_execute_time = ?, updated_at = CURRENT_TIMESTAMP
				WHERE id = ? AND state IN (?, ?) AND is_deleted = 0;
			`, string(TaskStateQueuing), now, id, string(TaskStateInitial), string(TaskStateScheduling))
			if err != nil {
				return fmt.Errorf("claim dispatch task %d: %w", id, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if n == 1 {
				ids = append(ids, id)
			}
		}
		if err := itx.Commit(ctx); err != nil {
			return fmt.Errorf("commit dispatch claim: %w", err)
		}
		committed = true
		return nil
	})
	return ids, err
}

// GetReviewTaskIDs returns ids of tasks in {ACTIVATING, QUEUING} whose
// lasted_execute_time is older than staleAfter. Read-only: the review worker itself decides to mark
// FAILED, not this query.
func (s *Store) GetReviewTaskIDs(ctx context.Context, now time.Time, staleAfter time.Duration, limit int) ([]int64, error) {
	if limit <= 0 {
		limit = 100
	}
	cutoff := now.Add(-staleAfter)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM tasks
		WHERE is_deleted = 0 AND state IN (?, ?) AND lasted_execute_time IS NOT NULL AND lasted_execute_time < ?
		ORDER BY lasted_execute_time ASC
		LIMIT ?;
	`, string(TaskStateActivating), string(TaskStateQueuing), cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("select review candidates: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan review candidate: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// TransitionState flips a task from one of allowedFrom to to, guarded: if
// the row's current state is not in allowedFrom, ok=false and no write
// happens (taskengine's StateGuardMiss signal, not an error). An empty
// allowedFrom is unconditional — used by the catch-all FAILED path, which
// must force the flip regardless of current state. lastedExecuteTime, when
// non-nil, is written in the same statement (used by CallSoon).
func (s *Store) TransitionState(ctx context.Context, taskID int64, allowedFrom []TaskState, to TaskState, lastedExecuteTime *time.Time) (bool, error) {
	var ok bool
	err := retryOnBusy(ctx, 5, func() error {
		placeholders := make([]any, 0, len(allowedFrom)+2)
		placeholders = append(placeholders, string(to))
		placeholders = append(placeholders, sql.NullTime{})
		if lastedExecuteTime != nil {
			placeholders[1] = sql.NullTime{Time: *lastedExecuteTime, Valid: true}
		}
		stateGuard := "1 = 1"
		if len(allowedFrom) > 0 {
			stateGuard = "state IN (" + placeholdersForStates(len(allowedFrom)) + ")"
		}
		query := `
			UPDATE tasks
			SET state = ?,
				lasted_execute_time = CASE WHEN ? THEN ? ELSE lasted_execute_time END,
				updated_at = CURRENT_TIMESTAMP
			WHERE id = ? AND is_deleted = 0 AND ` + stateGuard + `;`
		args := []any{string(to), lastedExecuteTime != nil, placeholders[1], taskID}
		for _, st := range allowedFrom {
			args = append(args, string(st))
		}
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("transition state: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		ok = n == 1
		return nil
	})
	return ok, err
}

// Reschedule sets a new expect_execute_time and transitions the task to
// SCHEDULING in one statement, guarded the same way TransitionState is: the
// caller's allowedFrom must match the row's current state or no write
// happens (used by running_task's SCHEDULING branch).
func (s *Store) Reschedule(ctx context.Context, taskID int64, allowedFrom []TaskState, expectExecuteTime time.Time) (bool, error) {
	var ok bool
	err := retryOnBusy(ctx, 5, func() error {
		query := `
			UPDATE tasks
			SET state = ?, expect_execute_time = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ? AND is_deleted = 0 AND state IN (` + placeholdersForStates(len(allowedFrom)) + `);`
		args := []any{string(TaskStateScheduling), expectExecuteTime, taskID}
		for _, st := range allowedFrom {
			args = append(args, string(st))
		}
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("reschedule: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		ok = n == 1
		return nil
	})
	return ok, err
}

func placeholdersForStates(n int) string {
	out := ""
	for i := 0; i < n; i++ {
		if i > 0 {
			out += ", "
		}
		out += "?"
	}
	return out
}

// DispatchRound atomically replaces the current round: prev_round_id <-
// curr_round_id, curr_round_id <- newRoundID, and cancels all non-terminal
// Units of the old curr_round_id in the same transaction (invariant 1 and
// testable property 2, round monotonicity).
func (s *Store) DispatchRound(ctx context.Context, taskID int64, newRoundID string) (oldCurrRoundID *string, err error) {
	err = retryOnBusy(ctx, 5, func() error {
		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("begin dispatch round tx: %w", txErr)
		}
		defer func() { _ = tx.Rollback() }()

		var currRound sql.NullString
		if err := tx.QueryRowContext(ctx, `SELECT curr_round_id FROM tasks WHERE id = ? AND is_deleted = 0;`, taskID).Scan(&currRound); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("read curr round: %w", err)
		}
		oldCurrRoundID = strPtrFromNull(currRound)

		if oldCurrRoundID != nil {
			if _, err := tx.ExecContext(ctx, `
				UPDATE tasks_unit SET state = ?, updated_at = CURRENT_TIMESTAMP
				WHERE round_id = ? AND state NOT IN (?, ?) AND is_deleted = 0;
			`, string(UnitStateCancelled), *oldCurrRoundID, string(UnitStateComplete), string(UnitStateCancelled)); err != nil {
				return fmt.Errorf("cancel stale round units: %w", err)
			}
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE tasks SET prev_round_id = curr_round_id, curr_round_id = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ? AND is_deleted = 0;
		`, newRoundID, taskID); err != nil {
			return fmt.Errorf("update round pointers: %w", err)
		}
		return tx.Commit()
	})
	return oldCurrRoundID, err
}

// Refactor atomically soft-deletes all Chat/Unit/History rows for the task,
// keeping Task and Workspace.
func (s *Store) Refactor(ctx context.Context, taskID int64) error {
	return retryOnBusy(ctx, 5, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin refactor tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		for _, table := range []string{"tasks_chat", "tasks_unit", "tasks_history"} {
			if _, err := tx.ExecContext(ctx, `
				UPDATE `+table+` SET is_deleted = 1, deleted_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
				WHERE task_id = ? AND is_deleted = 0;
			`, taskID); err != nil {
				return fmt.Errorf("soft-delete %s: %w", table, err)
			}
		}
		return tx.Commit()
	})
}

// Delete atomically soft-deletes Chat/Unit/History/Workspace and the Task
// itself.
func (s *Store) Delete(ctx context.Context, taskID int64) error {
	return retryOnBusy(ctx, 5, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin delete tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		for _, table := range []string{"tasks_chat", "tasks_unit", "tasks_history"} {
			if _, err := tx.ExecContext(ctx, `
				UPDATE `+table+` SET is_deleted = 1, deleted_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
				WHERE task_id = ? AND is_deleted = 0;
			`, taskID); err != nil {
				return fmt.Errorf("soft-delete %s: %w", table, err)
			}
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE tasks_workspace SET is_deleted = 1, deleted_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
			WHERE task_id = ? AND is_deleted = 0;
		`, taskID); err != nil {
			return fmt.Errorf("soft-delete workspace: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE tasks SET is_deleted = 1, deleted_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
			WHERE id = ?;
		`, taskID); err != nil {
			return fmt.Errorf("soft-delete task: %w", err)
		}
		return tx.Commit()
	})
}

// UpdateWorkspace writes the given non-nil fields to a task's Workspace row.
func (s *Store) UpdateWorkspace(ctx context.Context, taskID int64, prd, process, result *string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE tasks_workspace
		SET prd = COALESCE(?, prd),
			process = CASE WHEN ? THEN ? ELSE process END,
			result = CASE WHEN ? THEN ? ELSE result END,
			updated_at = CURRENT_TIMESTAMP
		WHERE task_id = ? AND is_deleted = 0;
	`, prd, process != nil, process, result != nil, result, taskID)
	if err != nil {
		return fmt.Errorf("update workspace: %w", err)
	}
	return nil
}

// RefactorTaskFields applies the refactor prompt's output to the Task row
// (new name/keywords/expect_execute_time, state=SCHEDULING) in the same
// transaction as the Refactor cascade's caller composes around this call.
func (s *Store) RefactorTaskFields(ctx context.Context, taskID int64, name string, keywords []string, expectExecuteTime time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET name = ?, keywords = ?, expect_execute_time = ?,
			curr_round_id = NULL, prev_round_id = NULL, lasted_execute_time = NULL,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND is_deleted = 0;
	`, name, joinKeywords(keywords), expectExecuteTime, taskID)
	if err != nil {
		return fmt.Errorf("refactor task fields: %w", err)
	}
	return nil
}

// SearchByKeywords finds tasks by keyword and session ids via the
// tasks_fts external-content virtual table, ordered by FTS5's built-in
// bm25 relevance rank.
func (s *Store) SearchByKeywords(ctx context.Context, sessionIDs []string, query string) ([]Task, error) {
	if query == "" || len(sessionIDs) == 0 {
		return nil, nil
	}
	placeholders := placeholdersForStates(len(sessionIDs))
	args := []any{query}
	for _, id := range sessionIDs {
		args = append(args, id)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+taskColumnsPrefixed("t")+`
		FROM tasks_fts f
		JOIN tasks t ON t.id = f.rowid
		WHERE tasks_fts MATCH ? AND f.session_id IN (`+placeholders+`) AND t.is_deleted = 0
		ORDER BY bm25(tasks_fts);
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("fts search: %w", err)
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan fts task: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func taskColumnsPrefixed(alias string) string {
	cols := []string{
		"id", "session_id", "owner", "owner_timezone", "name", "original_user_input",
		"keywords", "mcp_server_infos", "metadata", "expect_execute_time", "lasted_execute_time",
		"priority", "state", "curr_round_id", "prev_round_id", "created_at", "updated_at", "is_deleted", "deleted_at",
	}
	out := ""
	for i, c := range cols {
		if i > 0 {
			out += ", "
		}
		out += alias + "." + c
	}
	return out
}

// StateBucketCounts is a count/filter-by-state-buckets view.
type StateBucketCounts struct {
	Waiting         int
	Finished        int
	FailedCancelled int
	InProgress      int // ACTIVATING, QUEUING, INITIAL, SCHEDULING
}

func (s *Store) CountStateBuckets(ctx context.Context, sessionID string) (StateBucketCounts, error) {
	var c StateBucketCounts
	row := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN state = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN state = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN state IN (?, ?) THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN state IN (?, ?, ?, ?) THEN 1 ELSE 0 END), 0)
		FROM tasks
		WHERE session_id = ? AND is_deleted = 0;
	`,
		string(TaskStateWaiting),
		string(TaskStateFinished),
		string(TaskStateFailed), string(TaskStateCancelled),
		string(TaskStateActivating), string(TaskStateQueuing), string(TaskStateInitial), string(TaskStateScheduling),
		sessionID,
	)
	if err := row.Scan(&c.Waiting, &c.Finished, &c.FailedCancelled, &c.InProgress); err != nil {
		return c, fmt.Errorf("count state buckets: %w", err)
	}
	return c, nil
}
