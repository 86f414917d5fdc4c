package taskengine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/basket/taskorc/internal/llm"
	"github.com/basket/taskorc/internal/otel"
	"github.com/basket/taskorc/internal/pricing"
	"github.com/basket/taskorc/internal/safety"
)

var callLeakDetector = safety.NewLeakDetector()

// call renders a phase's system prompt, runs it against userContent through
// the façade, and decodes the validated output into out. serverInfos scopes
// which MCP tool bindings (if any) are acquired for this one call.
func (e *Engine) call(ctx context.Context, phase llm.Phase, schema json.RawMessage, userContent string, serverInfos json.RawMessage, out any) (llm.TokenUsage, error) {
	ctx, span := otel.StartClientSpan(ctx, e.tracer, "taskengine.llm_call", otel.AttrPhase.String(string(phase)))
	defer span.End()

	system, err := llm.LoadSystemPrompt(phase, e.clock.Now())
	if err != nil {
		return llm.TokenUsage{}, fmt.Errorf("load %s prompt: %w", phase, err)
	}

	req := llm.Request{
		Phase: phase,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: system},
			{Role: llm.RoleUser, Content: userContent},
		},
		Schema: schema,
		Tools:  e.acquireTools(ctx, serverInfos),
	}

	start := e.clock.Now()
	res, err := e.llm.Run(ctx, req)
	elapsed := e.clock.Now().Sub(start).Seconds()
	if e.metrics != nil {
		e.metrics.LLMCallDuration.Record(ctx, elapsed)
	}
	if err != nil {
		return llm.TokenUsage{}, fmt.Errorf("%s call: %w", phase, err)
	}
	if e.metrics != nil {
		e.metrics.TokensUsed.Add(ctx, int64(res.Usage.Input+res.Usage.Output))
	}
	if e.model != "" {
		cost := pricing.EstimateCost(e.model, res.Usage.Input, res.Usage.Output)
		e.logger.Debug("llm call cost", "phase", phase, "model", e.model, "usd", cost)
	}
	for _, warn := range callLeakDetector.Scan(string(res.Output)) {
		e.logger.Warn("possible secret in llm output", "phase", phase, "pattern", warn.Pattern, "sample", warn.Sample)
	}
	if err := json.Unmarshal(res.Output, out); err != nil {
		return llm.TokenUsage{}, fmt.Errorf("decode %s output: %w", phase, err)
	}
	return res.Usage, nil
}
