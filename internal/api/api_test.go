package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/basket/taskorc/internal/auditlog"
	"github.com/basket/taskorc/internal/broker"
	"github.com/basket/taskorc/internal/clock"
	"github.com/basket/taskorc/internal/llm"
	"github.com/basket/taskorc/internal/notifier"
	"github.com/basket/taskorc/internal/store"
	"github.com/basket/taskorc/internal/taskengine"
)

// testEnv mirrors taskengine's own test harness: a real in-memory SQLite
// store and a real Engine behind fake LLM/queue/notifier/clock collaborators.
type testEnv struct {
	store *store.Store
	llm   *llm.FakeClient
	srv   *httptest.Server
}

func newTestEnv(t *testing.T, authToken string) *testEnv {
	return newTestEnvWithOrigins(t, authToken, nil)
}

func newTestEnvWithOrigins(t *testing.T, authToken string, allowOrigins []string) *testEnv {
	t.Helper()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	fakeLLM := llm.NewFakeClient()
	q := broker.NewMemory()
	n := notifier.NewFakeClient()
	c := clock.NewFake(time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC))

	eng := taskengine.New(taskengine.Config{
		Store:    s,
		LLM:      fakeLLM,
		Queue:    q,
		Notifier: n,
		Audit:    auditlog.New(s),
		Clock:    c,
	})

	server := NewServer(Config{
		Store:        s,
		Engine:       eng,
		AuthToken:    authToken,
		AllowOrigins: allowOrigins,
	})
	ts := httptest.NewServer(server.Routes())
	t.Cleanup(ts.Close)

	return &testEnv{store: s, llm: fakeLLM, srv: ts}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, token string) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, "")
	resp := env.do(t, http.MethodGet, "/healthz", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCreateTaskAnalystShortCircuit(t *testing.T) {
	env := newTestEnv(t, "")
	env.llm.Enqueue(llm.PhaseAnalyst, []byte(`{"is_splittable":false,"thinking":"just a greeting"}`))

	resp := env.do(t, http.MethodPost, "/v1/tasks", createTaskRequest{
		Owner: "owner-1", SessionID: "sess-1", Text: "hi there", OwnerTimezone: "UTC",
	}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[createTaskResponse](t, resp)
	require.Nil(t, body.TaskID)
	require.Equal(t, "just a greeting", body.Reply)
}

func TestCreateTaskAdmitted(t *testing.T) {
	env := newTestEnv(t, "")
	env.llm.Enqueue(llm.PhaseAnalyst, []byte(`{
		"is_splittable": true,
		"name": "ship the report",
		"expect_execute_time": "2026-07-31T12:00:00Z",
		"keywords": ["report"],
		"prd": "produce the weekly report",
		"thinking": "clearly a task"
	}`))

	resp := env.do(t, http.MethodPost, "/v1/tasks", createTaskRequest{
		Owner: "owner-1", SessionID: "sess-1", Text: "send the weekly report", OwnerTimezone: "UTC",
	}, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	body := decodeBody[createTaskResponse](t, resp)
	require.NotNil(t, body.TaskID)
	require.Empty(t, body.Reply)

	getResp := env.do(t, http.MethodGet, fmtTaskPath(*body.TaskID), nil, "")
	require.Equal(t, http.StatusOK, getResp.StatusCode)
	detail := decodeBody[store.TaskDetail](t, getResp)
	require.Equal(t, store.TaskStateQueuing, detail.Task.State)
}

func TestCreateTaskRejectsMissingFields(t *testing.T) {
	env := newTestEnv(t, "")
	resp := env.do(t, http.MethodPost, "/v1/tasks", createTaskRequest{Owner: "owner-1"}, "")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetTaskNotFound(t *testing.T) {
	env := newTestEnv(t, "")
	resp := env.do(t, http.MethodGet, "/v1/tasks/99999", nil, "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestChatRefactorRunSoonOnMissingTaskReturn404(t *testing.T) {
	env := newTestEnv(t, "")

	resp := env.do(t, http.MethodPost, "/v1/tasks/99999/chat", chatRequest{Message: "still there?"}, "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/v1/tasks/99999/refactor", refactorRequest{UpdateText: "change scope"}, "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/v1/tasks/99999/run", nil, "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListAuditsAndUnits(t *testing.T) {
	env := newTestEnv(t, "")
	env.llm.Enqueue(llm.PhaseAnalyst, []byte(`{"is_splittable":false,"thinking":"just a greeting"}`))
	resp := env.do(t, http.MethodPost, "/v1/tasks", createTaskRequest{
		Owner: "owner-1", SessionID: "sess-audits", Text: "hi there", OwnerTimezone: "UTC",
	}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// No task was admitted so there is no task-scoped audits/units route to
	// exercise here beyond the not-found path; cover that explicitly.
	resp = env.do(t, http.MethodGet, "/v1/tasks/99999/audits", nil, "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/v1/tasks/99999/units", nil, "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListUnitsOnAdmittedTaskWithNoRoundYetReturnsEmpty(t *testing.T) {
	env := newTestEnv(t, "")
	env.llm.Enqueue(llm.PhaseAnalyst, []byte(`{
		"is_splittable": true,
		"name": "ship the report",
		"expect_execute_time": "2026-07-31T12:00:00Z",
		"keywords": ["report"],
		"prd": "produce the weekly report",
		"thinking": "clearly a task"
	}`))
	resp := env.do(t, http.MethodPost, "/v1/tasks", createTaskRequest{
		Owner: "owner-1", SessionID: "sess-2", Text: "send the weekly report", OwnerTimezone: "UTC",
	}, "")
	body := decodeBody[createTaskResponse](t, resp)
	require.NotNil(t, body.TaskID)

	unitsResp := env.do(t, http.MethodGet, fmtTaskPath(*body.TaskID)+"/units", nil, "")
	require.Equal(t, http.StatusOK, unitsResp.StatusCode)
	var units []store.Unit
	require.NoError(t, json.NewDecoder(unitsResp.Body).Decode(&units))
	require.Empty(t, units)
}

func TestAuthMiddlewareRejectsMissingOrWrongToken(t *testing.T) {
	env := newTestEnv(t, "secret-token")

	resp := env.do(t, http.MethodGet, "/healthz", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode, "healthz must stay reachable without auth")

	resp = env.do(t, http.MethodGet, "/v1/tasks/1", nil, "")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/v1/tasks/1", nil, "wrong-token")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/v1/tasks/1", nil, "secret-token")
	require.Equal(t, http.StatusNotFound, resp.StatusCode, "correct token should pass through to the handler")
}

func TestCORSPreflightIsHandledBeforeAuth(t *testing.T) {
	env := newTestEnvWithOrigins(t, "secret-token", []string{"https://console.example.com"})
	server := env.srv

	req, err := http.NewRequest(http.MethodOptions, server.URL+"/v1/tasks", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://console.example.com")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func fmtTaskPath(id int64) string {
	return "/v1/tasks/" + strconv.FormatInt(id, 10)
}
