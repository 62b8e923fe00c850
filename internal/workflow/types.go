// Package workflow provides workflow definitions and the progress engine that
// advances them: dependency-aware next-task selection, cursor advancement,
// execution history, and progress/metrics computation.
package workflow

import (
	"encoding/json"
	"time"
)

// Approaches assigned at creation time.
const (
	ApproachSingleTask         = "single_task"
	ApproachSequentialWorkflow = "sequential_workflow"
)

// Guidance carries per-step instructions for the executing agent.
type Guidance struct {
	ParentObjective      string   `json:"parent_objective,omitempty"`
	Instructions         string   `json:"instructions,omitempty"`
	ExpectedOutput       string   `json:"expected_output,omitempty"`
	NextStepGuidance     string   `json:"next_step_guidance,omitempty"`
	ValidationCriteria   []string `json:"validation_criteria,omitempty"`
	ApprovalRequired     bool     `json:"approval_required,omitempty"`
	RecoveryInstructions string   `json:"recovery_instructions,omitempty"`
}

// Task is a single step of a workflow definition.
type Task struct {
	ID                string    `json:"id,omitempty"`
	Content           string    `json:"content"`
	Dependencies      []string  `json:"dependencies,omitempty"`
	EstimatedDuration string    `json:"estimated_duration,omitempty"`
	Guidance          *Guidance `json:"guidance,omitempty"`
}

func (t Task) clone() Task {
	out := t
	out.Dependencies = append([]string(nil), t.Dependencies...)
	if t.Guidance != nil {
		g := *t.Guidance
		g.ValidationCriteria = append([]string(nil), t.Guidance.ValidationCriteria...)
		out.Guidance = &g
	}
	return out
}

// Metadata describes how a workflow was created and how it should run.
type Metadata struct {
	Complexity      string    `json:"complexity"`
	Approach        string    `json:"approach"`
	Request         string    `json:"request,omitempty"`
	AutoExecute     bool      `json:"auto_execute"`
	RequireApproval bool      `json:"require_approval"`
	CreatedAt       time.Time `json:"created_at"`
	ParentTaskID    string    `json:"parent_task_id,omitempty"`
}

// HistoryEntry records one advancement attempt, including failed ones.
// Failed attempts never move the cursor.
type HistoryEntry struct {
	TaskIndex    int       `json:"task_index"`
	Result       string    `json:"result"`
	Timestamp    time.Time `json:"timestamp"`
	CompletedAt  time.Time `json:"completed_at"`
	Success      bool      `json:"success"`
	AutoExecuted bool      `json:"auto_executed"`
}

// ExecContext ties a workflow to its execution history, optional session
// binding, and preserved snapshot.
type ExecContext struct {
	History   []HistoryEntry             `json:"history,omitempty"`
	SessionID string                     `json:"session_id,omitempty"`
	Preserved map[string]json.RawMessage `json:"preserved,omitempty"`
}

// Definition is an ordered task sequence advanced by a cursor.
// CurrentTaskIndex is monotonically non-decreasing and never exceeds
// len(Tasks); once IsCompleted is set no further advancement is permitted.
type Definition struct {
	ID                string      `json:"id"`
	Title             string      `json:"title"`
	Tasks             []Task      `json:"tasks"`
	Metadata          Metadata    `json:"metadata"`
	CurrentTaskIndex  int         `json:"current_task_index"`
	IsCompleted       bool        `json:"is_completed"`
	Context           ExecContext `json:"context"`
	EstimatedDuration string      `json:"estimated_duration,omitempty"`
}

func (d *Definition) clone() Definition {
	out := *d
	out.Tasks = make([]Task, len(d.Tasks))
	for i, t := range d.Tasks {
		out.Tasks[i] = t.clone()
	}
	out.Context.History = append([]HistoryEntry(nil), d.Context.History...)
	if d.Context.Preserved != nil {
		out.Context.Preserved = make(map[string]json.RawMessage, len(d.Context.Preserved))
		for k, v := range d.Context.Preserved {
			out.Context.Preserved[k] = append(json.RawMessage(nil), v...)
		}
	}
	return out
}

// Progress reports how far a workflow has advanced.
type Progress struct {
	CompletedTasks         int    `json:"completed_tasks"`
	TotalTasks             int    `json:"total_tasks"`
	ProgressPercentage     int    `json:"progress_percentage"`
	CurrentTaskContent     string `json:"current_task_content,omitempty"`
	EstimatedTimeRemaining string `json:"estimated_time_remaining"`
}

// ValidationResult collects every violation found in a definition.
type ValidationResult struct {
	OK     bool     `json:"ok"`
	Errors []string `json:"errors,omitempty"`
}

// Metrics aggregates across all tracked workflows.
type Metrics struct {
	Total                  int            `json:"total"`
	Completed              int            `json:"completed"`
	Pending                int            `json:"pending"`
	AvgTasksPerWorkflow    float64        `json:"avg_tasks_per_workflow"`
	AvgCompletionMinutes   float64        `json:"avg_completion_minutes"`
	ComplexityDistribution map[string]int `json:"complexity_distribution"`
}
