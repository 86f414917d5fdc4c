package otel

import "go.opentelemetry.io/otel/metric"

// Metrics holds all orchestrator metric instruments.
type Metrics struct {
	RequestDuration       metric.Float64Histogram
	TaskDuration          metric.Float64Histogram
	LLMCallDuration       metric.Float64Histogram
	TokensUsed            metric.Int64Counter
	ToolCallDuration      metric.Float64Histogram
	ToolCallErrors        metric.Int64Counter
	ActiveRounds          metric.Int64UpDownCounter
	UnitsDispatchedTotal  metric.Int64Counter
	ReviewRecoveriesTotal metric.Int64Counter
	StateGuardMissesTotal metric.Int64Counter
}

// NewMetrics creates all metric instruments from the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.RequestDuration, err = meter.Float64Histogram("taskorc.request.duration",
		metric.WithDescription("API request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.TaskDuration, err = meter.Float64Histogram("taskorc.task.duration",
		metric.WithDescription("Task duration from admission to a terminal state, in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.LLMCallDuration, err = meter.Float64Histogram("taskorc.llm.duration",
		metric.WithDescription("LLM API call duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.TokensUsed, err = meter.Int64Counter("taskorc.llm.tokens",
		metric.WithDescription("Total tokens consumed across all phases"),
	)
	if err != nil {
		return nil, err
	}

	m.ToolCallDuration, err = meter.Float64Histogram("taskorc.tool.duration",
		metric.WithDescription("MCP tool call duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.ToolCallErrors, err = meter.Int64Counter("taskorc.tool.errors",
		metric.WithDescription("MCP tool call error count"),
	)
	if err != nil {
		return nil, err
	}

	m.ActiveRounds, err = meter.Int64UpDownCounter("taskorc.round.active",
		metric.WithDescription("Number of rounds currently dispatched and in flight"),
	)
	if err != nil {
		return nil, err
	}

	m.UnitsDispatchedTotal, err = meter.Int64Counter("taskorc.unit.dispatched",
		metric.WithDescription("Total units dispatched across all rounds"),
	)
	if err != nil {
		return nil, err
	}

	m.ReviewRecoveriesTotal, err = meter.Int64Counter("taskorc.review.recoveries",
		metric.WithDescription("Tasks the review sweep forced out of a stuck ACTIVATING state"),
	)
	if err != nil {
		return nil, err
	}

	m.StateGuardMissesTotal, err = meter.Int64Counter("taskorc.state_guard.misses",
		metric.WithDescription("Guarded state transitions that found the task already moved"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}
