package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/basket/taskorc/internal/shared"
	"github.com/basket/taskorc/internal/store"
	"github.com/basket/taskorc/internal/taskengine"
)

// errorBody is the response shape for every non-2xx response.
type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeEngineError maps a taskengine/store error to an HTTP status: a
// StateGuardMiss isn't a failure, so it
// surfaces as 409 Conflict ("try again, the task already moved") rather
// than 500; a not-found row is 404; everything else is 500 and logged
// against the request's trace_id for correlation.
func (s *Server) writeEngineError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, taskengine.ErrStateGuardMiss):
		writeJSON(w, http.StatusConflict, errorBody{Error: "task state changed concurrently; retry"})
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
	case errors.Is(err, store.ErrValidation):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	default:
		s.logger.Error("engine error", "trace_id", shared.TraceID(ctx), "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}
