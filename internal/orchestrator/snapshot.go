package orchestrator

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/orchestrd/internal/preserve"
	"github.com/fyrsmithlabs/orchestrd/internal/session"
	"github.com/fyrsmithlabs/orchestrd/internal/task"
	"github.com/fyrsmithlabs/orchestrd/internal/validate"
	"github.com/fyrsmithlabs/orchestrd/internal/workflow"
)

// SnapshotVersion tags the persisted document schema. Restore rejects any
// other version outright.
const SnapshotVersion = 1

// Snapshot is the full persisted state of the engine.
type Snapshot struct {
	Version         int                   `json:"version"`
	SavedAt         time.Time             `json:"saved_at"`
	Tasks           []task.Task           `json:"tasks,omitempty"`
	Sessions        []session.Context     `json:"sessions,omitempty"`
	ActiveSessionID string                `json:"active_session_id,omitempty"`
	Workflows       []workflow.Definition `json:"workflows,omitempty"`
	Preserved       preserve.Export       `json:"preserved"`
}

// QuarantinedEntity records one entity rejected during restore, with the
// invariant it violated.
type QuarantinedEntity struct {
	Kind   string `json:"kind"`
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// QuarantineReport lists every entity a restore refused to load. The rest of
// the snapshot loads normally.
type QuarantineReport struct {
	Entries []QuarantinedEntity `json:"entries,omitempty"`
}

func (r *QuarantineReport) add(kind, id, reason string) {
	r.Entries = append(r.Entries, QuarantinedEntity{Kind: kind, ID: id, Reason: reason})
}

// Snapshot captures the current state of every store.
func (o *Orchestrator) Snapshot() Snapshot {
	sessions, activeID := o.Sessions.Export()
	return Snapshot{
		Version:         SnapshotVersion,
		SavedAt:         time.Now().UTC(),
		Tasks:           o.Tasks.Export(),
		Sessions:        sessions,
		ActiveSessionID: activeID,
		Workflows:       o.Workflows.Export(),
		Preserved:       o.Preserved.Snapshot(),
	}
}

// RestoreSnapshot replaces store contents from a snapshot. Every entity is
// checked against its invariants first; offenders are quarantined and
// reported instead of loaded, so one corrupt record never poisons the rest.
func (o *Orchestrator) RestoreSnapshot(s Snapshot) (QuarantineReport, error) {
	if s.Version != SnapshotVersion {
		return QuarantineReport{}, fmt.Errorf("unsupported snapshot version %d (expected %d)", s.Version, SnapshotVersion)
	}

	var report QuarantineReport

	tasks := make([]task.Task, 0, len(s.Tasks))
	for _, tk := range s.Tasks {
		if reason := validateTask(tk); reason != "" {
			report.add("task", tk.ID, reason)
			continue
		}
		tasks = append(tasks, tk)
	}

	sessions := make([]session.Context, 0, len(s.Sessions))
	activeID := s.ActiveSessionID
	for _, sess := range s.Sessions {
		if reason := validateSession(sess); reason != "" {
			report.add("session", sess.ID, reason)
			if sess.ID == activeID {
				activeID = ""
			}
			continue
		}
		sessions = append(sessions, sess)
	}

	workflows := make([]workflow.Definition, 0, len(s.Workflows))
	for _, def := range s.Workflows {
		if reason := validateWorkflow(def); reason != "" {
			report.add("workflow", def.ID, reason)
			continue
		}
		workflows = append(workflows, def)
	}

	o.Tasks.Import(tasks)
	o.Sessions.Import(sessions, activeID)
	o.Workflows.Import(workflows)
	o.Preserved.Restore(s.Preserved)

	o.logger.Info("snapshot restored",
		zap.Int("tasks", len(tasks)),
		zap.Int("sessions", len(sessions)),
		zap.Int("workflows", len(workflows)),
		zap.Int("quarantined", len(report.Entries)),
	)
	return report, nil
}

// SaveSnapshot writes the snapshot to path atomically with 0600 permissions.
func (o *Orchestrator) SaveSnapshot(path string) error {
	data, err := json.MarshalIndent(o.Snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot reads a snapshot file and restores it.
func (o *Orchestrator) LoadSnapshot(path string) (QuarantineReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return QuarantineReport{}, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return QuarantineReport{}, fmt.Errorf("failed to parse snapshot: %w", err)
	}
	return o.RestoreSnapshot(s)
}

func validateTask(tk task.Task) string {
	if !validate.IsValidTaskID(tk.ID) {
		return fmt.Sprintf("malformed task id %q", tk.ID)
	}
	if !tk.Status.Valid() {
		return fmt.Sprintf("unknown status %q", tk.Status)
	}
	if r := validate.Content(tk.Content); !r.OK {
		return fmt.Sprintf("invalid content: %v", r.Err)
	}
	return ""
}

func validateSession(sess session.Context) string {
	if !validate.IsValidSessionID(sess.ID) {
		return fmt.Sprintf("malformed session id %q", sess.ID)
	}
	if sess.CreatedAt.IsZero() {
		return "missing creation timestamp"
	}
	return ""
}

func validateWorkflow(def workflow.Definition) string {
	if !validate.IsValidWorkflowID(def.ID) {
		return fmt.Sprintf("malformed workflow id %q", def.ID)
	}
	if def.CurrentTaskIndex < 0 || def.CurrentTaskIndex > len(def.Tasks) {
		return fmt.Sprintf("cursor %d out of bounds for %d tasks", def.CurrentTaskIndex, len(def.Tasks))
	}
	if def.IsCompleted && def.CurrentTaskIndex != len(def.Tasks) {
		return "marked completed with pending tasks"
	}
	for _, tk := range def.Tasks {
		if r := validate.Content(tk.Content); !r.OK {
			return fmt.Sprintf("task %s has invalid content: %v", tk.ID, r.Err)
		}
	}
	return ""
}
