package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// FakeClient is a deterministic Client test double: callers register the
// json output to return for a given Phase, and every call is recorded for
// assertions. Grounded on test-fixture's style (engine tests
// construct a scripted Brain rather than hitting a real provider).
type FakeClient struct {
	mu       sync.Mutex
	Outputs  map[Phase][]json.RawMessage // consumed FIFO per phase
	Err      map[Phase]error
	Requests []Request
}

// NewFakeClient constructs an empty FakeClient.
func NewFakeClient() *FakeClient {
	return &FakeClient{
		Outputs: make(map[Phase][]json.RawMessage),
		Err:     make(map[Phase]error),
	}
}

// Enqueue schedules out as the next output FakeClient.Run returns for phase.
func (f *FakeClient) Enqueue(phase Phase, out json.RawMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Outputs[phase] = append(f.Outputs[phase], out)
}

// Run returns the next enqueued output for req.Phase, or the registered
// error, recording every request it receives.
func (f *FakeClient) Run(_ context.Context, req Request) (Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Requests = append(f.Requests, req)

	if err, ok := f.Err[req.Phase]; ok && err != nil {
		return Result{}, err
	}
	queue := f.Outputs[req.Phase]
	if len(queue) == 0 {
		return Result{}, fmt.Errorf("fake llm client: no output enqueued for phase %s", req.Phase)
	}
	out := queue[0]
	f.Outputs[req.Phase] = queue[1:]
	return Result{Output: out, Usage: TokenUsage{Input: 10, Output: 10}}, nil
}
