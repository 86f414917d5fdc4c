package notifier

import (
	"context"
	"log/slog"
	"time"
)

// NoopClient logs every call without reaching a network, the default
// Notifier when no external session service is configured. Fire-and-forget
// methods still log at info level so a deployment without a session
// service integration can see what would have been sent.
type NoopClient struct {
	logger *slog.Logger
}

// NewNoop builds a NoopClient.
func NewNoop(logger *slog.Logger) *NoopClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &NoopClient{logger: logger}
}

func (n *NoopClient) TaskRefresh(ctx context.Context, sessionID string) {
	n.logger.Info("notifier (noop): task_refresh", "session_id", sessionID)
}

func (n *NoopClient) TaskProvision(ctx context.Context, sessionID string, taskID int64, description, taskName string, createdAt time.Time, state string, replenish []string) {
	n.logger.Info("notifier (noop): task_provision", "session_id", sessionID, "task_id", taskID, "state", state)
}

func (n *NoopClient) TaskResultNotify(ctx context.Context, taskID int64, taskName, state, sessionID string) {
	n.logger.Info("notifier (noop): task_result_notify", "session_id", sessionID, "task_id", taskID, "state", state)
}

func (n *NoopClient) GetInfoBySessionID(ctx context.Context, sessionID string) (SessionInfo, error) {
	n.logger.Info("notifier (noop): get_info_by_session_id", "session_id", sessionID)
	return SessionInfo{}, nil
}

var _ Notifier = (*NoopClient)(nil)
