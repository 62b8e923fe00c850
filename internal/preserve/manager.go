// Package preserve provides context snapshot preservation and parent/child
// subtask completion tracking.
//
// Snapshots are serialized on save, so callers never observe mutation of a
// saved snapshot after the fact. Three independent namespaces (execution
// contexts, subtask relationships, global context) share one eviction call.
package preserve

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/orchestrd/internal/orcerr"
)

// Relationship tracks a parent task's fixed child set and its completion.
type Relationship struct {
	ParentID          string          `json:"parent_id"`
	ChildIDs          []string        `json:"child_ids"`
	CompletedChildren []string        `json:"completed_children,omitempty"`
	NextParentStep    string          `json:"next_parent_step,omitempty"`
	ParentContext     json.RawMessage `json:"parent_context,omitempty"`
}

func (r *Relationship) clone() Relationship {
	out := *r
	out.ChildIDs = append([]string(nil), r.ChildIDs...)
	out.CompletedChildren = append([]string(nil), r.CompletedChildren...)
	out.ParentContext = append(json.RawMessage(nil), r.ParentContext...)
	return out
}

// AllComplete reports whether every child has been completed. A relationship
// with no children has nothing to wait for.
func (r *Relationship) AllComplete() bool {
	return len(r.CompletedChildren) >= len(r.ChildIDs)
}

// Manager owns the preservation namespaces.
type Manager struct {
	mu            sync.RWMutex
	execContexts  map[string]json.RawMessage
	relationships map[string]*Relationship
	global        map[string]json.RawMessage
	logger        *zap.Logger
}

// NewManager creates an empty preservation manager.
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		execContexts:  make(map[string]json.RawMessage),
		relationships: make(map[string]*Relationship),
		global:        make(map[string]json.RawMessage),
		logger:        logger,
	}
}

func marshal(v any) (json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, orcerr.Wrap(orcerr.CodeInvalidInput, "snapshot not serializable", err)
	}
	return data, nil
}

// SaveExecutionContext stores an independent copy of the snapshot keyed by
// workflow id.
func (m *Manager) SaveExecutionContext(workflowID string, ctx any) error {
	data, err := marshal(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.execContexts[workflowID] = data
	m.mu.Unlock()

	m.logger.Debug("execution context saved", zap.String("workflow_id", workflowID))
	return nil
}

// RestoreExecutionContext returns a copy of the stored snapshot.
// The second return is false when no snapshot exists.
func (m *Manager) RestoreExecutionContext(workflowID string) (json.RawMessage, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, found := m.execContexts[workflowID]
	if !found {
		return nil, false
	}
	return append(json.RawMessage(nil), data...), true
}

// RestoreExecutionContextInto unmarshals the stored snapshot into out.
func (m *Manager) RestoreExecutionContextInto(workflowID string, out any) error {
	data, found := m.RestoreExecutionContext(workflowID)
	if !found {
		return orcerr.Newf(orcerr.CodeWorkflowNotFound, "no execution context for %s", workflowID).
			With("workflow_id", workflowID)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return orcerr.Wrap(orcerr.CodeOperationFailed, "execution context decode failed", err)
	}
	return nil
}

// CreateSubtaskRelationship fixes the child set for a parent task. Recreating
// with the same parent id replaces the prior relationship wholesale.
func (m *Manager) CreateSubtaskRelationship(parentID string, childIDs []string, nextParentStep string, parentContext any) error {
	data, err := marshal(parentContext)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.relationships[parentID] = &Relationship{
		ParentID:       parentID,
		ChildIDs:       append([]string(nil), childIDs...),
		NextParentStep: nextParentStep,
		ParentContext:  data,
	}
	m.mu.Unlock()

	m.logger.Debug("subtask relationship created",
		zap.String("parent_id", parentID),
		zap.Int("child_count", len(childIDs)),
	)
	return nil
}

// CompleteSubtask marks a child as complete. It is idempotent, ignores ids
// outside the fixed child set, and returns false when the parent is unknown.
func (m *Manager) CompleteSubtask(parentID, childID string) (Relationship, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rel, found := m.relationships[parentID]
	if !found {
		return Relationship{}, false
	}

	member := false
	for _, id := range rel.ChildIDs {
		if id == childID {
			member = true
			break
		}
	}
	if member {
		done := false
		for _, id := range rel.CompletedChildren {
			if id == childID {
				done = true
				break
			}
		}
		if !done {
			rel.CompletedChildren = append(rel.CompletedChildren, childID)
		}
	}
	return rel.clone(), true
}

// AllSubtasksComplete reports whether every child of the parent is complete.
// An unknown parent has nothing to wait for, so it reports true.
func (m *Manager) AllSubtasksComplete(parentID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rel, found := m.relationships[parentID]
	if !found {
		return true
	}
	return rel.AllComplete()
}

// Relationship returns a copy of the parent's relationship.
func (m *Manager) Relationship(parentID string) (Relationship, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rel, found := m.relationships[parentID]
	if !found {
		return Relationship{}, false
	}
	return rel.clone(), true
}

// ParentContext returns a copy of the snapshot captured when the
// relationship was created.
func (m *Manager) ParentContext(parentID string) (json.RawMessage, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rel, found := m.relationships[parentID]
	if !found || rel.ParentContext == nil {
		return nil, false
	}
	return append(json.RawMessage(nil), rel.ParentContext...), true
}

// SaveGlobalContext stores a cross-cutting checkpoint in a flat namespace
// independent of session or workflow identity.
func (m *Manager) SaveGlobalContext(key string, value any) error {
	data, err := marshal(value)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.global[key] = data
	m.mu.Unlock()
	return nil
}

// RestoreGlobalContext returns a copy of the stored checkpoint.
func (m *Manager) RestoreGlobalContext(key string) (json.RawMessage, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, found := m.global[key]
	if !found {
		return nil, false
	}
	return append(json.RawMessage(nil), data...), true
}

// Clear evicts any execution context, subtask relationship, and global
// context entry registered under the identifier.
func (m *Manager) Clear(identifier string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.execContexts, identifier)
	delete(m.relationships, identifier)
	delete(m.global, identifier)
}

// Export bundles all namespaces for snapshot persistence.
type Export struct {
	ExecutionContexts map[string]json.RawMessage `json:"execution_contexts,omitempty"`
	Relationships     []Relationship             `json:"relationships,omitempty"`
	GlobalContext     map[string]json.RawMessage `json:"global_context,omitempty"`
}

// Snapshot returns copies of all namespaces.
func (m *Manager) Snapshot() Export {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := Export{
		ExecutionContexts: make(map[string]json.RawMessage, len(m.execContexts)),
		GlobalContext:     make(map[string]json.RawMessage, len(m.global)),
	}
	for k, v := range m.execContexts {
		out.ExecutionContexts[k] = append(json.RawMessage(nil), v...)
	}
	for k, v := range m.global {
		out.GlobalContext[k] = append(json.RawMessage(nil), v...)
	}
	for _, rel := range m.relationships {
		out.Relationships = append(out.Relationships, rel.clone())
	}
	return out
}

// Restore replaces all namespaces from an export.
func (m *Manager) Restore(e Export) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.execContexts = make(map[string]json.RawMessage, len(e.ExecutionContexts))
	for k, v := range e.ExecutionContexts {
		m.execContexts[k] = append(json.RawMessage(nil), v...)
	}
	m.global = make(map[string]json.RawMessage, len(e.GlobalContext))
	for k, v := range e.GlobalContext {
		m.global[k] = append(json.RawMessage(nil), v...)
	}
	m.relationships = make(map[string]*Relationship, len(e.Relationships))
	for i := range e.Relationships {
		rel := e.Relationships[i].clone()
		m.relationships[rel.ParentID] = &rel
	}
}
