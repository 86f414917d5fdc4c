package store

import (
	"context"
	"database/sql"
	"fmt"
)

// AddHistory records one state-transition snapshot,
// written by the task engine on every planner-decided transition.
func (s *Store) AddHistory(ctx context.Context, taskID int64, state string, process, thinking *string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks_history (task_id, state, process, thinking, created_at, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP);
	`, taskID, state, process, thinking)
	if err != nil {
		return 0, fmt.Errorf("insert history: %w", err)
	}
	return res.LastInsertId()
}

// ListHistory returns every non-deleted History row for a task, ascending
// by created_at.
func (s *Store) ListHistory(ctx context.Context, taskID int64) ([]History, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_id, state, process, thinking, created_at, updated_at, is_deleted, deleted_at
		FROM tasks_history WHERE task_id = ? AND is_deleted = 0 ORDER BY created_at ASC;
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
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
