// Package taskengine implements the task state machine:
// task creation, admission re-entry, the ready/running/review worker
// bodies, user-reply ingress, and refactor. Grounded on
// internal/engine/loop.go (checkpointed step loop, generalized here to
// round checkpoints persisted as History rows) and
// internal/coordinator/waiter.go's WaitForAll (goroutine-per-item,
// WaitGroup, mutex, errCh, no early abort — generalized from waiting on bus
// events for externally-run tasks to directly executing one unit per
// goroutine).
package taskengine

import (
	"context"
	"encoding/json"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/basket/taskorc/internal/auditlog"
	"github.com/basket/taskorc/internal/broker"
	"github.com/basket/taskorc/internal/clock"
	"github.com/basket/taskorc/internal/llm"
	"github.com/basket/taskorc/internal/notifier"
	taskorcotel "github.com/basket/taskorc/internal/otel"
	"github.com/basket/taskorc/internal/store"
)

// TopicRunningTasks is where execute_task publishes once a round's units
// have all settled, for running_task to pick up.
const TopicRunningTasks = "running-tasks"

// TaskIDPayload is the broker message body for ready-tasks, running-tasks,
// and review-tasks: just an id, so a handler always reloads current state
// from the store rather than trusting a possibly-stale queued snapshot.
type TaskIDPayload struct {
	TaskID int64 `json:"task_id"`
}

// Config wires an Engine's collaborators.
type Config struct {
	Store    *store.Store
	LLM      llm.Client
	Tools    llm.ToolProvider // optional; nil means no MCP tool bindings are acquired
	Queue    broker.Queue
	Notifier notifier.Notifier
	Audit    *auditlog.Log
	Clock    clock.Clock // defaults to clock.Real()
	Logger   *slog.Logger

	// Model is the bare model id (e.g. "claude-sonnet-4-5") used to look up
	// per-call cost estimates; empty disables cost logging.
	Model string

	// Metrics and Tracer are optional; a nil Metrics leaves every instrument
	// call a no-op rather than a panic, so tests can omit telemetry wiring.
	Metrics *taskorcotel.Metrics
	Tracer  trace.Tracer
}

// Engine implements every task-lifecycle operation. It is stateless
// itself — all state lives in Store — so one Engine value is safe to share
// across the ready/running/review worker pools.
type Engine struct {
	store    *store.Store
	llm      llm.Client
	tools    llm.ToolProvider
	queue    broker.Queue
	notifier notifier.Notifier
	audit    *auditlog.Log
	clock    clock.Clock
	logger   *slog.Logger
	metrics  *taskorcotel.Metrics
	tracer   trace.Tracer
	model    string
}

func New(cfg Config) *Engine {
	c := cfg.Clock
	if c == nil {
		c = clock.Real()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = trace.NewNoopTracerProvider().Tracer(taskorcotel.TracerName)
	}
	return &Engine{
		store:    cfg.Store,
		llm:      cfg.LLM,
		tools:    cfg.Tools,
		queue:    cfg.Queue,
		notifier: cfg.Notifier,
		audit:    cfg.Audit,
		clock:    c,
		logger:   logger,
		metrics:  cfg.Metrics,
		tracer:   tracer,
		model:    cfg.Model,
	}
}

// acquireTools resolves a task's mcp_server_infos into scoped tool
// bindings for one LLM call. Returns nil if no
// ToolProvider is configured or the task declares no servers — the façade
// treats a nil/empty Tools slice as "no tools" and releases whatever it is
// given regardless.
func (e *Engine) acquireTools(ctx context.Context, serverInfos json.RawMessage) []llm.ToolBinding {
	if e.tools == nil || len(serverInfos) == 0 || string(serverInfos) == "{}" || string(serverInfos) == "null" {
		return nil
	}
	bindings, err := e.tools.Acquire(ctx, serverInfos)
	if err != nil {
		e.logger.Warn("tool binding acquisition failed", "error", err)
		if e.metrics != nil {
			e.metrics.ToolCallErrors.Add(ctx, 1)
		}
		return nil
	}
	return bindings
}

// writeFailureAudit records a catch-all failure audit row.
func (e *Engine) writeFailureAudit(ctx context.Context, sessionID, stage string, err error) {
	auditErr := e.audit.RecordState(ctx, sessionID, auditlog.StateEntry{
		Thinking: stage + ": " + err.Error(),
	})
	if auditErr != nil {
		e.logger.Error("failed to write failure audit", "stage", stage, "original_error", err, "audit_error", auditErr)
	}
}

func ptr[T any](v T) *T { return &v }
