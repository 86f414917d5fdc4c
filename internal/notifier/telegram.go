package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramClient is a Notifier backed directly by a Telegram bot, for
// deployments where the session service IS Telegram: sessions are named
// "telegram-{userID}-agent-{agentID}" and every outbound call resolves back
// to a chat via the session ID.
type TelegramClient struct {
	bot    *tgbotapi.BotAPI
	logger *slog.Logger

	mu      sync.Mutex
	chatIDs map[string]int64 // sessionID -> chatID
}

// NewTelegramClient wires a bot token into a TelegramClient.
func NewTelegramClient(token string, logger *slog.Logger) (*TelegramClient, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram notifier init failed: %w", err)
	}
	return &TelegramClient{
		bot:     bot,
		logger:  logger,
		chatIDs: make(map[string]int64),
	}, nil
}

// BindSession records the chat a session ID replies to. Call this when a
// session's first inbound Telegram message is observed.
func (t *TelegramClient) BindSession(sessionID string, chatID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.chatIDs[sessionID] = chatID
}

func (t *TelegramClient) chatFor(sessionID string) (int64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	chatID, ok := t.chatIDs[sessionID]
	return chatID, ok
}

func (t *TelegramClient) send(sessionID, text string) {
	chatID, ok := t.chatFor(sessionID)
	if !ok {
		t.logger.Warn("telegram notifier: no chat bound for session", "session_id", sessionID)
		return
	}
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := t.bot.Send(msg); err != nil {
		t.logger.Error("telegram notifier: send failed", "session_id", sessionID, "error", err)
	}
}

func (t *TelegramClient) TaskRefresh(ctx context.Context, sessionID string) {
	t.send(sessionID, "Refreshing your task list.")
}

func (t *TelegramClient) TaskProvision(ctx context.Context, sessionID string, taskID int64, description, taskName string, createdAt time.Time, state string, replenish []string) {
	var b strings.Builder
	fmt.Fprintf(&b, "Task #%d created: %s\nState: %s", taskID, taskName, state)
	if description != "" {
		fmt.Fprintf(&b, "\n%s", description)
	}
	if len(replenish) > 0 {
		fmt.Fprintf(&b, "\nNeeds: %s", strings.Join(replenish, ", "))
	}
	t.send(sessionID, b.String())
}

func (t *TelegramClient) TaskResultNotify(ctx context.Context, taskID int64, taskName, state, sessionID string) {
	t.send(sessionID, fmt.Sprintf("Task #%d (%s) is now %s.", taskID, taskName, state))
}

// GetInfoBySessionID decodes own's "telegram-{userID}-agent-{agentID}"
// session naming convention back into its parts.
func (t *TelegramClient) GetInfoBySessionID(ctx context.Context, sessionID string) (SessionInfo, error) {
	const prefix = "telegram-"
	if !strings.HasPrefix(sessionID, prefix) {
		return SessionInfo{}, fmt.Errorf("telegram notifier: not a telegram session id: %q", sessionID)
	}
	rest := strings.TrimPrefix(sessionID, prefix)
	parts := strings.SplitN(rest, "-agent-", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return SessionInfo{}, fmt.Errorf("telegram notifier: malformed session id: %q", sessionID)
	}
	return SessionInfo{UserID: parts[0], AgentID: parts[1]}, nil
}

var _ Notifier = (*TelegramClient)(nil)
