package notifier

import (
	"context"
	"sync"
	"time"
)

// Call records one invocation of a fire-and-forget Notifier method, for
// assertions in taskengine tests.
type Call struct {
	Method    string
	SessionID string
	TaskID    int64
	State     string
	Replenish []string
}

// FakeClient is an in-memory Notifier double.
type FakeClient struct {
	mu    sync.Mutex
	Calls []Call

	Infos map[string]SessionInfo
	Err   map[string]error
}

func NewFakeClient() *FakeClient {
	return &FakeClient{
		Infos: make(map[string]SessionInfo),
		Err:   make(map[string]error),
	}
}

func (f *FakeClient) record(c Call) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, c)
}

func (f *FakeClient) TaskRefresh(ctx context.Context, sessionID string) {
	f.record(Call{Method: "TaskRefresh", SessionID: sessionID})
}

func (f *FakeClient) TaskProvision(ctx context.Context, sessionID string, taskID int64, description, taskName string, createdAt time.Time, state string, replenish []string) {
	f.record(Call{Method: "TaskProvision", SessionID: sessionID, TaskID: taskID, State: state, Replenish: replenish})
}

func (f *FakeClient) TaskResultNotify(ctx context.Context, taskID int64, taskName, state, sessionID string) {
	f.record(Call{Method: "TaskResultNotify", SessionID: sessionID, TaskID: taskID, State: state})
}

func (f *FakeClient) GetInfoBySessionID(ctx context.Context, sessionID string) (SessionInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.Err[sessionID]; ok {
		return SessionInfo{}, err
	}
	return f.Infos[sessionID], nil
}

var _ Notifier = (*FakeClient)(nil)
