package store

import (
	"database/sql"
	"encoding/json"
	"strings"
	"time"
)

// TaskState is the task state machine's state set.
type TaskState string

const (
	TaskStateInitial    TaskState = "INITIAL"
	TaskStateQueuing    TaskState = "QUEUING"
	TaskStateActivating TaskState = "ACTIVATING"
	TaskStateWaiting    TaskState = "WAITING"
	TaskStateScheduling TaskState = "SCHEDULING"
	TaskStateFinished   TaskState = "FINISHED"
	TaskStateFailed     TaskState = "FAILED"
	TaskStateCancelled  TaskState = "CANCELLED"
	TaskStateUpdating   TaskState = "UPDATING"
)

// IsTerminal reports whether state admits no further transitions
// (invariant 2: FINISHED | FAILED | CANCELLED are terminal).
func (t TaskState) IsTerminal() bool {
	switch t {
	case TaskStateFinished, TaskStateFailed, TaskStateCancelled:
		return true
	default:
		return false
	}
}

// UnitState is the per-round sub-step state set.
type UnitState string

const (
	UnitStateCreated   UnitState = "CREATED"
	UnitStateRunning   UnitState = "RUNNING"
	UnitStateComplete  UnitState = "COMPLETE"
	UnitStateCancelled UnitState = "CANCELLED"
)

// ChatRole identifies the speaker of a Chat row.
type ChatRole string

const (
	ChatRoleUser      ChatRole = "USER"
	ChatRoleSystem    ChatRole = "SYSTEM"
	ChatRoleAssistant ChatRole = "ASSISTANT"
)

// Task is the durable unit of work.
type Task struct {
	ID                int64
	SessionID         string
	Owner             string
	OwnerTimezone     string
	Name              string
	OriginalUserInput string
	Keywords          []string
	MCPServerInfos    json.RawMessage
	// Metadata is a supplemented field (grounded on original_source's
	// TaskCreateModel extra fields) carrying caller-supplied correlation
	// data, distinct from MCPServerInfos.
	Metadata          json.RawMessage
	ExpectExecuteTime time.Time
	LastedExecuteTime *time.Time
	Priority          int
	State             TaskState
	CurrRoundID       *string
	PrevRoundID       *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	IsDeleted         bool
	DeletedAt         *time.Time
}

// Workspace is the mutable scratch artefact owned by one task.
type Workspace struct {
	TaskID    int64
	PRD       string
	Process   *string
	Result    *string
	CreatedAt time.Time
	UpdatedAt time.Time
	IsDeleted bool
	DeletedAt *time.Time
}

// Unit is one sub-step of one round.
type Unit struct {
	ID        int64
	TaskID    int64
	RoundID   string
	Sequence  int
	Name      string
	Objective string
	Output    *string
	State     UnitState
	CreatedAt time.Time
	UpdatedAt time.Time
	IsDeleted bool
	DeletedAt *time.Time
}

// Chat is a message between task and user.
type Chat struct {
	ID        int64
	TaskID    int64
	Role      ChatRole
	Message   string
	CreatedAt time.Time
	UpdatedAt time.Time
	IsDeleted bool
	DeletedAt *time.Time
}

// History is a snapshot recorded on every planner-decided state transition.
type History struct {
	ID        int64
	TaskID    int64
	State     string
	Process   *string
	Thinking  *string
	CreatedAt time.Time
	UpdatedAt time.Time
	IsDeleted bool
	DeletedAt *time.Time
}

// AuditsLog is an append-only observability record. Kind distinguishes the
// two JSON blob shapes in play ({thinking,message,tokens} vs.
// {thinking,task}) without requiring the caller to parse Message to tell
// them apart — a field present in the original's analyst short-circuit
// branch and carried forward here.
type AuditsLog struct {
	ID        int64
	SessionID string
	Kind      string
	Message   json.RawMessage
	CreatedAt time.Time
}

func joinKeywords(keywords []string) string {
	return strings.Join(keywords, ",")
}

func splitKeywords(raw string) []string {
	if raw == "" {
		return nil
	}
	return strings.Split(raw, ",")
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func strPtrFromNull(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	v := n.String
	return &v
}

func timePtrFromNull(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	v := n.Time
	return &v
}
