// Package task provides the task model and its status state machine.
//
// A task is the atomic unit of trackable work. Its status only moves along
// the legal transition table, and its history log is append-only.
package task

import (
	"time"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/orchestrd/internal/orcerr"
	"github.com/fyrsmithlabs/orchestrd/internal/validate"
)

// HistoryEntry records a single mutation of a task.
type HistoryEntry struct {
	Timestamp      time.Time     `json:"timestamp"`
	Action         string        `json:"action"`
	PreviousStatus Status        `json:"previous_status,omitempty"`
	NewStatus      Status        `json:"new_status,omitempty"`
	Notes          string        `json:"notes,omitempty"`
	AgentID        string        `json:"agent_id,omitempty"`
	Duration       time.Duration `json:"duration,omitempty"`
}

// Task is a unit of trackable work.
type Task struct {
	ID            string         `json:"id"`
	Content       string         `json:"content"`
	Status        Status         `json:"status"`
	Priority      Priority       `json:"priority"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	History       []HistoryEntry `json:"history"`
	Dependencies  []string       `json:"dependencies,omitempty"`
	Tags          []string       `json:"tags,omitempty"`
	WorkflowID    string         `json:"workflow_id,omitempty"`
	BlockedReason string         `json:"blocked_reason,omitempty"`
}

// NewID allocates a fresh task identifier.
func NewID() string {
	return "task_" + uuid.New().String()
}

// New creates a pending task with a generated id and an initial history entry.
func New(content string, priority Priority) (*Task, error) {
	if r := validate.Content(content); !r.OK {
		return nil, orcerr.Wrap(orcerr.CodeInvalidInput, "invalid task content", r.Err).
			With("field", "content")
	}
	if priority == "" {
		priority = PriorityMedium
	}
	if !priority.Valid() {
		return nil, orcerr.Newf(orcerr.CodeInvalidInput, "invalid priority %q", priority).
			With("field", "priority").
			With("value", string(priority))
	}

	now := time.Now()
	return &Task{
		ID:        NewID(),
		Content:   content,
		Status:    StatusPending,
		Priority:  priority,
		CreatedAt: now,
		UpdatedAt: now,
		History: []HistoryEntry{{
			Timestamp: now,
			Action:    "created",
			NewStatus: StatusPending,
		}},
	}, nil
}

// ChangeStatus applies a status transition, appending a history entry on
// success. The transition check and the history append succeed or fail
// together; an illegal transition leaves the task untouched.
func (t *Task) ChangeStatus(to Status, agentID, notes string) error {
	if !to.Valid() {
		return orcerr.Newf(orcerr.CodeInvalidInput, "unknown status %q", to).
			With("task_id", t.ID).
			With("value", string(to))
	}
	if !CanTransition(t.Status, to) {
		return orcerr.Newf(orcerr.CodeInvalidStatusTransition,
			"cannot transition from %s to %s", t.Status, to).
			With("task_id", t.ID).
			With("from", string(t.Status)).
			With("to", string(to))
	}

	now := time.Now()
	entry := HistoryEntry{
		Timestamp:      now,
		Action:         "status_changed",
		PreviousStatus: t.Status,
		NewStatus:      to,
		Notes:          notes,
		AgentID:        agentID,
	}

	t.Status = to
	t.UpdatedAt = now
	t.History = append(t.History, entry)

	if to != StatusBlocked {
		t.BlockedReason = ""
	}
	return nil
}

// Block transitions the task to blocked and records the reason.
func (t *Task) Block(reason, agentID string) error {
	if err := t.ChangeStatus(StatusBlocked, agentID, reason); err != nil {
		return err
	}
	t.BlockedReason = reason
	return nil
}

// Clone returns a deep copy so callers cannot mutate store-owned state.
func (t *Task) Clone() Task {
	out := *t
	out.History = make([]HistoryEntry, len(t.History))
	copy(out.History, t.History)
	out.Dependencies = append([]string(nil), t.Dependencies...)
	out.Tags = append([]string(nil), t.Tags...)
	return out
}
