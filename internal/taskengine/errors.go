package taskengine

import (
	"context"
	"errors"
)

// ErrStateGuardMiss signals that an operation's precondition on the task's
// current state did not hold. It is a routing signal, not a failure:
// callers branch on errors.Is and either drop the
// message or re-arm via CallSoon, they never surface it as an error to a
// user or an audit "failure" entry.
var ErrStateGuardMiss = errors.New("taskengine: state guard miss")

// stateGuardMiss counts a guard miss as a metric before returning the
// sentinel, so a noisy run of races under load shows up on a dashboard
// instead of only in logs.
func (e *Engine) stateGuardMiss(ctx context.Context) error {
	if e.metrics != nil {
		e.metrics.StateGuardMissesTotal.Add(ctx, 1)
	}
	return ErrStateGuardMiss
}
