package store

import "errors"

// ErrNotFound is returned when a requested entity does not exist or is
// soft-deleted. Callers at the HTTP boundary surface it as a 404-equivalent
//.
var ErrNotFound = errors.New("store: not found")

// ErrValidation is returned for malformed input rejected before any write
//.
var ErrValidation = errors.New("store: validation failed")

// ErrNotClaimed is returned when a caller attempts to flip a task's state
// but the row no longer matches the expected prior state — i.e. another
// admission producer, or the engine itself, already moved it. Not an error
// condition for callers that branch on it (mirrors taskengine.ErrStateGuardMiss).
var ErrNotClaimed = errors.New("store: task not in expected prior state")
