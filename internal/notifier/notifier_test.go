package notifier

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHTTPClientTaskProvisionPostsExpectedPayload(t *testing.T) {
	var gotBody map[string]any
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, "", testLogger())
	client.TaskProvision(context.Background(), "sess-1", 42, "do the thing", "demo task",
		time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC), "QUEUING", []string{"owner_timezone"})

	require.Equal(t, "/sessions/sess-1/tasks", gotPath)
	require.EqualValues(t, 42, gotBody["task_id"])
	require.Equal(t, "QUEUING", gotBody["state"])
	require.Equal(t, []any{"owner_timezone"}, gotBody["replenish"])
}

func TestHTTPClientGetInfoBySessionIDDecodesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/sessions/sess-2", r.URL.Path)
		_ = json.NewEncoder(w).Encode(SessionInfo{UserID: "u1", AgentID: "a1"})
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, "", testLogger())
	info, err := client.GetInfoBySessionID(context.Background(), "sess-2")
	require.NoError(t, err)
	require.Equal(t, SessionInfo{UserID: "u1", AgentID: "a1"}, info)
}

func TestHTTPClientTaskRefreshLogsAndSwallowsErrors(t *testing.T) {
	client := NewHTTPClient("http://127.0.0.1:0", "", testLogger())
	// Fire-and-forget: must not panic even though the endpoint is unreachable.
	client.TaskRefresh(context.Background(), "sess-3")
}

func TestTelegramClientGetInfoBySessionIDParsesConvention(t *testing.T) {
	tc := &TelegramClient{logger: testLogger(), chatIDs: make(map[string]int64)}
	info, err := tc.GetInfoBySessionID(context.Background(), "telegram-12345-agent-default")
	require.NoError(t, err)
	require.Equal(t, SessionInfo{UserID: "12345", AgentID: "default"}, info)

	_, err = tc.GetInfoBySessionID(context.Background(), "not-a-telegram-session")
	require.Error(t, err)
}

func TestFakeClientRecordsCalls(t *testing.T) {
	fc := NewFakeClient()
	fc.TaskRefresh(context.Background(), "sess-1")
	fc.TaskResultNotify(context.Background(), 7, "demo", "FINISHED", "sess-1")
	require.Len(t, fc.Calls, 2)
	require.Equal(t, "TaskRefresh", fc.Calls[0].Method)
	require.Equal(t, "TaskResultNotify", fc.Calls[1].Method)
}
