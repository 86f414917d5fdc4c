package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/basket/taskorc/internal/llm"
)

// Provider adapts a Manager into an llm.ToolProvider: one Acquire call opens
// a fresh per-call agent scope, generalizing Manager's
// per-agent connection scoping from "one scope per running agent" to "one
// scope per LLM call".
type Provider struct {
	manager *Manager
	known   map[string]ServerConfig
}

// NewProvider builds a Provider. known lists every MCP server this
// orchestrator is allowed to connect to, keyed by name; mcp_server_infos
// entries referencing a name absent from known are ignored.
func NewProvider(manager *Manager, known []ServerConfig) *Provider {
	byName := make(map[string]ServerConfig, len(known))
	for _, cfg := range known {
		byName[cfg.Name] = cfg
	}
	return &Provider{manager: manager, known: byName}
}

// binding is one scoped agent connection: Close tears the whole call-scoped
// agent down, mirroring DisconnectAgent's lifecycle.
type binding struct {
	manager *Manager
	agentID string
	name    string
}

func (b *binding) Name() string { return b.name }

func (b *binding) Close() error {
	return b.manager.DisconnectAgent(b.agentID)
}

// Acquire decodes serverInfos as a map of server name to opaque per-task
// tool-endpoint data and
// connects whichever of those names this orchestrator knows about.
func (p *Provider) Acquire(ctx context.Context, serverInfos json.RawMessage) ([]llm.ToolBinding, error) {
	var requested map[string]json.RawMessage
	if err := json.Unmarshal(serverInfos, &requested); err != nil {
		return nil, fmt.Errorf("decode mcp_server_infos: %w", err)
	}
	if len(requested) == 0 {
		return nil, nil
	}

	var configs []ServerConfig
	var names []string
	for name := range requested {
		cfg, ok := p.known[name]
		if !ok {
			continue
		}
		configs = append(configs, cfg)
		names = append(names, name)
	}
	if len(configs) == 0 {
		return nil, nil
	}

	agentID := "call-" + uuid.NewString()
	if err := p.manager.ConnectAgentServers(ctx, agentID, configs); err != nil {
		return nil, fmt.Errorf("connect mcp servers: %w", err)
	}

	bindings := make([]llm.ToolBinding, 0, len(names))
	for _, name := range names {
		bindings = append(bindings, &binding{manager: p.manager, agentID: agentID, name: name})
	}
	return bindings, nil
}

var _ llm.ToolProvider = (*Provider)(nil)
