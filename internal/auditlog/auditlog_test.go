package auditlog

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/basket/taskorc/internal/store"
	"github.com/stretchr/testify/require"
)

type fakeRecorder struct {
	sessionID string
	kind      string
	message   json.RawMessage
	err       error
}

func (f *fakeRecorder) Record(ctx context.Context, sessionID, kind string, message json.RawMessage) (int64, error) {
	f.sessionID = sessionID
	f.kind = kind
	f.message = message
	return 1, f.err
}

func TestRecordStateRedactsAndUsesStateKind(t *testing.T) {
	rec := &fakeRecorder{}
	log := New(rec)

	err := log.RecordState(context.Background(), "sess-1", StateEntry{
		Thinking: "Bearer abc123def456ghi789jkl0",
		Message:  "all good",
		Tokens:   42,
	})
	require.NoError(t, err)
	require.Equal(t, "sess-1", rec.sessionID)
	require.Equal(t, store.AuditKindState, rec.kind)

	var decoded StateEntry
	require.NoError(t, json.Unmarshal(rec.message, &decoded))
	require.Contains(t, decoded.Thinking, "[REDACTED]")
	require.Equal(t, "all good", decoded.Message)
	require.Equal(t, 42, decoded.Tokens)
}

func TestRecordAnalystUsesAnalystKind(t *testing.T) {
	rec := &fakeRecorder{}
	log := New(rec)

	err := log.RecordAnalyst(context.Background(), "sess-2", AnalystEntry{
		Thinking: "too small to split",
		Task:     "answer directly",
	})
	require.NoError(t, err)
	require.Equal(t, store.AuditKindAnalyst, rec.kind)
}

func TestRecordStatePropagatesStoreError(t *testing.T) {
	rec := &fakeRecorder{err: errors.New("disk full")}
	log := New(rec)

	err := log.RecordState(context.Background(), "sess-3", StateEntry{Thinking: "x"})
	require.Error(t, err)
}
