package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// AuditKind values distinguish the two JSON blob shapes used
// for AuditsLog.message.
const (
	AuditKindState   = "state"   // {thinking, message, tokens}
	AuditKindAnalyst = "analyst" // {thinking, task} — analyst short-circuit branch
)

// Record appends one append-only AuditsLog row. Never soft-deleted: audit
// history outlives the tasks it describes.
func (s *Store) Record(ctx context.Context, sessionID, kind string, message json.RawMessage) (int64, error) {
	if kind == "" {
		kind = AuditKindState
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO audits_log (session_id, kind, message, created_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP);
	`, sessionID, kind, string(message))
	if err != nil {
		return 0, fmt.Errorf("insert audit log: %w", err)
	}
	return res.LastInsertId()
}

// ListAudits returns every audit row for a session, ascending by created_at.
func (s *Store) ListAudits(ctx context.Context, sessionID string) ([]AuditsLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, kind, message, created_at
		FROM audits_log WHERE session_id = ? ORDER BY created_at ASC;
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list audits: %w", err)
	}
	defer rows.Close()

	var out []AuditsLog
	for rows.Next() {
		var a AuditsLog
		var msg string
		if err := rows.Scan(&a.ID, &a.SessionID, &a.Kind, &msg, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		a.Message = json.RawMessage(msg)
		out = append(out, a)
	}
	return out, rows.Err()
}
