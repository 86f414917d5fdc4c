package taskengine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/basket/taskorc/internal/auditlog"
	"github.com/basket/taskorc/internal/broker"
	"github.com/basket/taskorc/internal/clock"
	"github.com/basket/taskorc/internal/llm"
	"github.com/basket/taskorc/internal/notifier"
	"github.com/basket/taskorc/internal/store"
)

// testEnv bundles one Engine with fully-fake collaborators, so every
// taskengine test drives real store transactions against an in-memory
// SQLite database but never touches a network.
type testEnv struct {
	store *store.Store
	llm   *llm.FakeClient
	queue *broker.MemoryBroker
	notif *notifier.FakeClient
	clock *clock.Fake
	eng   *Engine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	fakeLLM := llm.NewFakeClient()
	q := broker.NewMemory()
	n := notifier.NewFakeClient()
	c := clock.NewFake(time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC))

	eng := New(Config{
		Store:    s,
		LLM:      fakeLLM,
		Queue:    q,
		Notifier: n,
		Audit:    auditlog.New(s),
		Clock:    c,
	})
	return &testEnv{store: s, llm: fakeLLM, queue: q, notif: n, clock: c, eng: eng}
}

func mustParseRFC3339(t *testing.T, s string) time.Time {
	t.Helper()
	tm, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return tm
}

func (e *testEnv) hasCall(method, state string) bool {
	for _, c := range e.notif.Calls {
		if c.Method == method && c.State == state {
			return true
		}
	}
	return false
}

func (e *testEnv) countCalls(method string) int {
	n := 0
	for _, c := range e.notif.Calls {
		if c.Method == method {
			n++
		}
	}
	return n
}
