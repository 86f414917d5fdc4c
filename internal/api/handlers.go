package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/basket/taskorc/internal/safety"
)

var createTaskSanitizer = safety.NewSanitizer()

type createTaskRequest struct {
	Owner          string          `json:"owner"`
	SessionID      string          `json:"session_id"`
	Text           string          `json:"text"`
	OwnerTimezone  string          `json:"owner_timezone"`
	MCPServerInfos json.RawMessage `json:"mcp_server_infos,omitempty"`
}

type createTaskResponse struct {
	TaskID *int64 `json:"task_id,omitempty"`
	Reply  string `json:"reply,omitempty"`
}

// handleCreateTask is the task-admission HTTP entry point: decode,
// delegate to Engine.CreateTask, and surface either the admitted task id or
// the analyst's conversational short-circuit reply.
func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}
	if req.Owner == "" || req.SessionID == "" || req.Text == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "owner, session_id, and text are required"})
		return
	}
	if check := createTaskSanitizer.Check(req.Text); check.Action == safety.ActionBlock {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "rejected: " + check.Reason})
		return
	}

	task, reply, err := s.cfg.Engine.CreateTask(r.Context(), req.Owner, req.SessionID, req.Text, req.OwnerTimezone, req.MCPServerInfos)
	if err != nil {
		s.writeEngineError(r.Context(), w, err)
		return
	}
	if task == nil {
		writeJSON(w, http.StatusOK, createTaskResponse{Reply: reply})
		return
	}
	writeJSON(w, http.StatusCreated, createTaskResponse{TaskID: &task.ID})
}

// handleGetTask returns a task's current state plus its workspace and its
// most-recent-10 chat/history rows.
func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	taskID, ok := pathTaskID(w, r)
	if !ok {
		return
	}
	detail, err := s.cfg.Store.Get(r.Context(), taskID)
	if err != nil {
		s.writeEngineError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

type chatRequest struct {
	Message string `json:"message"`
}

// handleChat is the WAITING-task HTTP entry point: a user's reply to a
// WAITING task's prompt.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	taskID, ok := pathTaskID(w, r)
	if !ok {
		return
	}
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Message == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "message is required"})
		return
	}
	if err := s.cfg.Engine.WaitingTask(r.Context(), taskID, req.Message); err != nil {
		s.writeEngineError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

type refactorRequest struct {
	UpdateText string `json:"update_text"`
}

// handleRefactor is the refactor-task HTTP entry point.
func (s *Server) handleRefactor(w http.ResponseWriter, r *http.Request) {
	taskID, ok := pathTaskID(w, r)
	if !ok {
		return
	}
	var req refactorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UpdateText == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "update_text is required"})
		return
	}
	if err := s.cfg.Engine.RefactorTask(r.Context(), taskID, req.UpdateText); err != nil {
		s.writeEngineError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleRunSoon is a manual nudge onto the call-soon path, for an
// operator who doesn't want to wait for the admission producer's next
// sweep.
func (s *Server) handleRunSoon(w http.ResponseWriter, r *http.Request) {
	taskID, ok := pathTaskID(w, r)
	if !ok {
		return
	}
	if err := s.cfg.Engine.CallSoon(r.Context(), taskID); err != nil {
		s.writeEngineError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleListAudits returns every audit row for a task's session, keyed by
// session_id rather than task_id.
func (s *Server) handleListAudits(w http.ResponseWriter, r *http.Request) {
	taskID, ok := pathTaskID(w, r)
	if !ok {
		return
	}
	task, err := s.cfg.Store.GetTask(r.Context(), taskID)
	if err != nil {
		s.writeEngineError(r.Context(), w, err)
		return
	}
	audits, err := s.cfg.Store.ListAudits(r.Context(), task.SessionID)
	if err != nil {
		s.writeEngineError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, audits)
}

// handleListUnits returns the units of a task's current round (or, via
// ?round_id=, an explicit past round).
func (s *Server) handleListUnits(w http.ResponseWriter, r *http.Request) {
	taskID, ok := pathTaskID(w, r)
	if !ok {
		return
	}
	roundID := r.URL.Query().Get("round_id")
	if roundID == "" {
		task, err := s.cfg.Store.GetTask(r.Context(), taskID)
		if err != nil {
			s.writeEngineError(r.Context(), w, err)
			return
		}
		if task.CurrRoundID == nil {
			writeJSON(w, http.StatusOK, []any{})
			return
		}
		roundID = *task.CurrRoundID
	}
	units, err := s.cfg.Store.GetRoundUnits(r.Context(), roundID)
	if err != nil {
		s.writeEngineError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, units)
}

func pathTaskID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid task id"})
		return 0, false
	}
	return id, true
}
