package store

import (
	"context"
	"database/sql"
	"fmt"
)

// CreateUnit inserts one Unit row for a round, CREATED state, at the given
// display sequence.
func (s *Store) CreateUnit(ctx context.Context, taskID int64, roundID string, sequence int, name, objective string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks_unit (task_id, round_id, sequence, name, objective, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP);
	`, taskID, roundID, sequence, name, objective, string(UnitStateCreated))
	if err != nil {
		return 0, fmt.Errorf("insert unit: %w", err)
	}
	return res.LastInsertId()
}

func scanUnit(scanFn func(dest ...any) error) (*Unit, error) {
	var u Unit
	var output sql.NullString
	var deletedAt sql.NullTime
	if err := scanFn(&u.ID, &u.TaskID, &u.RoundID, &u.Sequence, &u.Name, &u.Objective, &output, &u.State, &u.CreatedAt, &u.UpdatedAt, &u.IsDeleted, &deletedAt); err != nil {
		return nil, err
	}
	u.Output = strPtrFromNull(output)
	u.DeletedAt = timePtrFromNull(deletedAt)
	return &u, nil
}

const unitColumns = `id, task_id, round_id, sequence, name, objective, output, state, created_at, updated_at, is_deleted, deleted_at`

// GetRoundUnitIDs lists every non-deleted unit id belonging to a round, in
// fan-out sequence order — the id set a round's Waiter fans work out over.
func (s *Store) GetRoundUnitIDs(ctx context.Context, roundID string) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM tasks_unit WHERE round_id = ? AND is_deleted = 0 ORDER BY sequence ASC, id ASC;
	`, roundID)
	if err != nil {
		return nil, fmt.Errorf("list round unit ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan round unit id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetRoundUnits returns only the COMPLETE units of a round, in sequence
// order — the inputs the result-synthesiser phase consumes once a round's
// Waiter reports all units finished.
func (s *Store) GetRoundUnits(ctx context.Context, roundID string) ([]Unit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+unitColumns+` FROM tasks_unit
		WHERE round_id = ? AND is_deleted = 0 AND state = ?
		ORDER BY sequence ASC, id ASC;
	`, roundID, string(UnitStateComplete))
	if err != nil {
		return nil, fmt.Errorf("list complete round units: %w", err)
	}
	defer rows.Close()

	var out []Unit
	for rows.Next() {
		u, err := scanUnit(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan round unit: %w", err)
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

// GetUnit loads a single unit by id.
func (s *Store) GetUnit(ctx context.Context, unitID int64) (*Unit, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+unitColumns+` FROM tasks_unit WHERE id = ? AND is_deleted = 0;`, unitID)
	u, err := scanUnit(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get unit: %w", err)
	}
	return u, nil
}

// SetUnitRunning flips a CREATED unit to RUNNING, guarded.
func (s *Store) SetUnitRunning(ctx context.Context, unitID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks_unit SET state = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND is_deleted = 0 AND state = ?;
	`, string(UnitStateRunning), unitID, string(UnitStateCreated))
	if err != nil {
		return false, fmt.Errorf("set unit running: %w", err)
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// CompleteUnit writes the unit's output and flips it to COMPLETE.
func (s *Store) CompleteUnit(ctx context.Context, unitID int64, output string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE tasks_unit SET output = ?, state = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND is_deleted = 0;
	`, output, string(UnitStateComplete), unitID)
	if err != nil {
		return fmt.Errorf("complete unit: %w", err)
	}
	return nil
}

// ClearRoundUnits flips every non-terminal unit of a round to CANCELLED —
// used when a new round preempts a stale one (see DispatchRound, which
// performs the equivalent cancellation inline; this standalone variant
// serves WaitingTask/CancelTask call sites that cancel without dispatching
// a replacement round).
func (s *Store) ClearRoundUnits(ctx context.Context, roundID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE tasks_unit SET state = ?, updated_at = CURRENT_TIMESTAMP
		WHERE round_id = ? AND state NOT IN (?, ?) AND is_deleted = 0;
	`, string(UnitStateCancelled), roundID, string(UnitStateComplete), string(UnitStateCancelled))
	if err != nil {
		return fmt.Errorf("clear round units: %w", err)
	}
	return nil
}
