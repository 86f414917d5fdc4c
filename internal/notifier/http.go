package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// HTTPClient fires callbacks at an external session service over plain HTTP.
// Fire-and-forget operations log and swallow their own errors; only
// GetInfoBySessionID returns one to the caller.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger
}

// NewHTTPClient builds an HTTPClient pointed at baseURL, an external session
// service exposing /sessions/{id}/refresh, /sessions/{id}/tasks,
// /sessions/{id}/results, and /sessions/{id}.
func NewHTTPClient(baseURL, apiKey string, logger *slog.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
	}
}

func (h *HTTPClient) post(ctx context.Context, path string, body any) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal notifier payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("build notifier request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("notifier call %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notifier call %s: status %d", path, resp.StatusCode)
	}
	return nil
}

func (h *HTTPClient) TaskRefresh(ctx context.Context, sessionID string) {
	err := h.post(ctx, fmt.Sprintf("/sessions/%s/refresh", sessionID), nil)
	if err != nil {
		h.logger.Error("task_refresh failed", "session_id", sessionID, "error", err)
	}
}

func (h *HTTPClient) TaskProvision(ctx context.Context, sessionID string, taskID int64, description, taskName string, createdAt time.Time, state string, replenish []string) {
	payload := map[string]any{
		"task_id":     taskID,
		"description": description,
		"task_name":   taskName,
		"created_at":  createdAt.UTC().Format(time.RFC3339),
		"state":       state,
		"replenish":   replenish,
	}
	err := h.post(ctx, fmt.Sprintf("/sessions/%s/tasks", sessionID), payload)
	if err != nil {
		h.logger.Error("task_provision failed", "session_id", sessionID, "task_id", taskID, "error", err)
	}
}

func (h *HTTPClient) TaskResultNotify(ctx context.Context, taskID int64, taskName, state, sessionID string) {
	payload := map[string]any{
		"task_id":   taskID,
		"task_name": taskName,
		"state":     state,
	}
	err := h.post(ctx, fmt.Sprintf("/sessions/%s/results", sessionID), payload)
	if err != nil {
		h.logger.Error("task_result_notify failed", "session_id", sessionID, "task_id", taskID, "error", err)
	}
}

func (h *HTTPClient) GetInfoBySessionID(ctx context.Context, sessionID string) (SessionInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+fmt.Sprintf("/sessions/%s", sessionID), nil)
	if err != nil {
		return SessionInfo{}, fmt.Errorf("build session lookup request: %w", err)
	}
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return SessionInfo{}, fmt.Errorf("session lookup %s: %w", sessionID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return SessionInfo{}, fmt.Errorf("session lookup %s: status %d", sessionID, resp.StatusCode)
	}

	var out SessionInfo
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return SessionInfo{}, fmt.Errorf("decode session lookup response: %w", err)
	}
	return out, nil
}

var _ Notifier = (*HTTPClient)(nil)
