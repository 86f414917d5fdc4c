// Package auditlog is the thin write-side wrapper around the store's
// AuditsLog table: one insert per call, secrets redacted first, errors
// returned to the caller rather than swallowed (callers decide how a failed
// audit write affects the state transition it was meant to record).
package auditlog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/basket/taskorc/internal/shared"
	"github.com/basket/taskorc/internal/store"
)

// Recorder is the subset of *store.Store auditlog needs, so callers can
// substitute a fake in tests without pulling in the whole store package.
type Recorder interface {
	Record(ctx context.Context, sessionID, kind string, message json.RawMessage) (int64, error)
}

// Log writes AuditsLog rows for one session.
type Log struct {
	store Recorder
}

func New(store Recorder) *Log {
	return &Log{store: store}
}

// StateEntry is the {thinking, message, tokens} shape used for
// ordinary engine-loop audit rows.
type StateEntry struct {
	Thinking string `json:"thinking"`
	Message  string `json:"message,omitempty"`
	Tokens   int    `json:"tokens,omitempty"`
}

// AnalystEntry is the {thinking, task} shape used by the analyst
// short-circuit branch, where no Task row is ever created.
type AnalystEntry struct {
	Thinking string `json:"thinking"`
	Task     string `json:"task,omitempty"`
}

// RecordState writes a state-kind audit row, redacting thinking/message
// before persistence.
func (l *Log) RecordState(ctx context.Context, sessionID string, entry StateEntry) error {
	entry.Thinking = shared.Redact(entry.Thinking)
	entry.Message = shared.Redact(entry.Message)

	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal state audit entry: %w", err)
	}
	if _, err := l.store.Record(ctx, sessionID, store.AuditKindState, payload); err != nil {
		return fmt.Errorf("record state audit entry: %w", err)
	}
	return nil
}

// RecordAnalyst writes an analyst-kind audit row for the short-circuit
// branch of create_task, where the analyst judged the request too small to
// become a Task.
func (l *Log) RecordAnalyst(ctx context.Context, sessionID string, entry AnalystEntry) error {
	entry.Thinking = shared.Redact(entry.Thinking)
	entry.Task = shared.Redact(entry.Task)

	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal analyst audit entry: %w", err)
	}
	if _, err := l.store.Record(ctx, sessionID, store.AuditKindAnalyst, payload); err != nil {
		return fmt.Errorf("record analyst audit entry: %w", err)
	}
	return nil
}
