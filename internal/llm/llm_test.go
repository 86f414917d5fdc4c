package llm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFakeClientReturnsEnqueuedOutputPerPhase(t *testing.T) {
	client := NewFakeClient()
	client.Enqueue(PhaseAnalyst, []byte(`{"is_splittable":true,"name":"demo"}`))

	res, err := client.Run(context.Background(), Request{Phase: PhaseAnalyst})
	require.NoError(t, err)
	require.JSONEq(t, `{"is_splittable":true,"name":"demo"}`, string(res.Output))
	require.Len(t, client.Requests, 1)
}

func TestFakeClientErrorsWhenNothingEnqueued(t *testing.T) {
	client := NewFakeClient()
	_, err := client.Run(context.Background(), Request{Phase: PhasePlanner})
	require.Error(t, err)
}

func TestExtractJSONFromFencedBlock(t *testing.T) {
	text := "Here is the plan:\n```json\n{\"process\":\"do it\"}\n```\nDone."
	require.JSONEq(t, `{"process":"do it"}`, extractJSON(text))
}

func TestExtractJSONFromBareObject(t *testing.T) {
	text := `thinking... {"state":"WAITING","notify_user":"confirm"} trailing text`
	require.JSONEq(t, `{"state":"WAITING","notify_user":"confirm"}`, extractJSON(text))
}

func TestSchemaValidatorRejectsMismatchedOutput(t *testing.T) {
	schema := []byte(`{"type":"object","required":["state"],"properties":{"state":{"type":"string"}}}`)
	v, err := newSchemaValidator(schema)
	require.NoError(t, err)

	_, err = v.extract(`{"not_state": 1}`)
	require.Error(t, err)

	out, err := v.extract(`{"state":"FINISHED"}`)
	require.NoError(t, err)
	require.JSONEq(t, `{"state":"FINISHED"}`, string(out))
}

func TestLoadSystemPromptStampsClock(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	text, err := LoadSystemPrompt(PhaseAnalyst, now)
	require.NoError(t, err)
	require.Contains(t, text, "2026-07-31 12:00:00")
}
