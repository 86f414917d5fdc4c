package store

import (
	"context"
	"database/sql"
	"fmt"
)

// AddChat appends one Chat message, grounded on AddHistory's
// (internal/persistence/store.go) generalized from session history to
// task-scoped chat.
func (s *Store) AddChat(ctx context.Context, taskID int64, role ChatRole, message string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks_chat (task_id, role, message, created_at, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP);
	`, taskID, string(role), message)
	if err != nil {
		return 0, fmt.Errorf("insert chat: %w", err)
	}
	return res.LastInsertId()
}

// ListChat returns every non-deleted Chat row for a task, ascending by
// created_at — ListHistory,'s generalized the same way.
func (s *Store) ListChat(ctx context.Context, taskID int64) ([]Chat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_id, role, message, created_at, updated_at, is_deleted, deleted_at
		FROM tasks_chat WHERE task_id = ? AND is_deleted = 0 ORDER BY created_at ASC;
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list chat: %w", err)
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
