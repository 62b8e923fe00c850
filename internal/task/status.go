package task

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending          Status = "pending"
	StatusInProgress       Status = "in_progress"
	StatusCompleted        Status = "completed"
	StatusArchived         Status = "archived"
	StatusStuck            Status = "stuck"
	StatusWaiting          Status = "waiting"
	StatusCancelled        Status = "cancelled"
	StatusBlocked          Status = "blocked"
	StatusPaused           Status = "paused"
	StatusAwaitingApproval Status = "awaiting_approval"
)

// transitions is the legal transition table. A status not present as a key
// has no outgoing transitions; archived is terminal.
var transitions = map[Status][]Status{
	StatusPending:          {StatusInProgress, StatusCancelled, StatusBlocked},
	StatusInProgress:       {StatusCompleted, StatusPending, StatusStuck, StatusPaused, StatusBlocked},
	StatusCompleted:        {StatusArchived},
	StatusArchived:         {},
	StatusStuck:            {StatusInProgress, StatusPending, StatusCancelled},
	StatusWaiting:          {StatusInProgress, StatusCancelled},
	StatusCancelled:        {StatusPending},
	StatusBlocked:          {StatusPending, StatusInProgress},
	StatusPaused:           {StatusInProgress, StatusCancelled},
	StatusAwaitingApproval: {StatusInProgress, StatusCancelled},
}

// Valid reports whether s is a member of the closed status set.
func (s Status) Valid() bool {
	_, member := transitions[s]
	return member
}

// CanTransition reports whether the table permits from -> to.
func CanTransition(from, to Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// AllowedTransitions returns a copy of the targets reachable from s.
func AllowedTransitions(s Status) []Status {
	allowed := transitions[s]
	out := make([]Status, len(allowed))
	copy(out, allowed)
	return out
}

// Priority orders tasks by urgency.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Valid reports whether p is a member of the closed priority set.
func (p Priority) Valid() bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}
