// Package notifier talks to the external session service that owns user
// identity and delivery for a task's conversational surface. Every outbound
// call is fire-and-forget from the engine's point of view: failures are
// logged and swallowed so a flaky notification channel never stalls or fails
// a task.
package notifier

import (
	"context"
	"time"
)

// SessionInfo is the synchronous lookup result for a session.
type SessionInfo struct {
	UserID  string
	AgentID string
}

// Notifier is the external session-service boundary used by the engine.
// TaskRefresh, TaskProvision, and TaskResultNotify are fire-and-forget:
// implementations log their own failures and must not return an error the
// caller is expected to act on. GetInfoBySessionID is the one synchronous
// call, used at task creation to resolve ownership.
type Notifier interface {
	// TaskRefresh tells the session service to re-pull a session's task list.
	TaskRefresh(ctx context.Context, sessionID string)

	// TaskProvision announces a newly created task to the session service.
	TaskProvision(ctx context.Context, sessionID string, taskID int64, description, taskName string, createdAt time.Time, state string, replenish []string)

	// TaskResultNotify announces a task's terminal state to its session.
	TaskResultNotify(ctx context.Context, taskID int64, taskName, state, sessionID string)

	// GetInfoBySessionID resolves a session to its owning user/agent.
	GetInfoBySessionID(ctx context.Context, sessionID string) (SessionInfo, error)
}
