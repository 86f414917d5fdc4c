// Package llm is the structured-generation façade the task engine calls
// into: one phase-tagged prompt in, one schema-validated JSON object plus
// token usage out. Grounded on internal/engine.Brain's
// interface (internal/engine/brain.go), generalized from free-text
// Respond/Stream to a typed Run call.
package llm

import (
	"context"
	"encoding/json"
)

// Phase names every prompt bundle the task engine can invoke, matching
// the façade's fixed phase list exactly — the façade must not drift from
// these names.
type Phase string

const (
	PhaseAnalyst           Phase = "analyst"
	PhasePlanner           Phase = "planner"
	PhaseRefactor          Phase = "refactor"
	PhaseUnitGenerator     Phase = "unit-generator"
	PhaseUnitExecutor      Phase = "unit-executor"
	PhaseNextState         Phase = "next-state"
	PhaseWaitingHandler    Phase = "waiting-handler"
	PhaseResultSynthesiser Phase = "result-synthesiser"
)

// Role identifies the speaker of one Message, mirroring the façade's
// (role, content) pairs.
type Role string

const (
	RoleSystem    Role = "SYSTEM"
	RoleUser      Role = "USER"
	RoleAssistant Role = "ASSISTANT"
)

// Message is one turn of the prompt conversation.
type Message struct {
	Role    Role
	Content string
}

// ToolBinding is one scoped MCP server connection opened for the duration
// of a single Run call. Grounded on internal/mcp.Manager's session
// handles.
type ToolBinding interface {
	Name() string
	Close() error
}

// ToolProvider resolves MCP server endpoints (opaque per Task.mcp_server_infos)
// into scoped ToolBindings for one Run call.
type ToolProvider interface {
	Acquire(ctx context.Context, serverInfos json.RawMessage) ([]ToolBinding, error)
}

// Request is one structured-generation call.
type Request struct {
	Phase    Phase
	Messages []Message
	Schema   json.RawMessage
	Tools    []ToolBinding
}

// TokenUsage is sidechannelled accounting, fire-and-forget and never
// blocking the call it describes. Grounded on internal/tokenutil.EstimateTokens, generalized to carry
// provider-reported counts when available and fall back to the estimate
// otherwise.
type TokenUsage struct {
	Input  int
	Output int
	Cached int
}

// Result is a schema-validated JSON object plus its usage accounting.
type Result struct {
	Output json.RawMessage
	Usage  TokenUsage
}

// Client is the façade contract: structured
// generation of a typed output from a prompt plus usage counters.
type Client interface {
	Run(ctx context.Context, req Request) (Result, error)
}
