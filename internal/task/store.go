package task

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/orchestrd/internal/orcerr"
)

// EventSink receives best-effort lifecycle events. Implementations must not
// block the caller.
type EventSink interface {
	Publish(ctx context.Context, subject string, payload any)
}

// Store owns the task registry. All mutation of a given task runs under the
// store lock, so history appends are serialized per entity.
type Store struct {
	mu     sync.RWMutex
	tasks  map[string]*Task
	logger *zap.Logger
	sink   EventSink
}

// NewStore creates an empty task store.
func NewStore(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		tasks:  make(map[string]*Task),
		logger: logger,
	}
}

// SetEventSink attaches an optional lifecycle event sink.
func (s *Store) SetEventSink(sink EventSink) {
	s.sink = sink
}

func (s *Store) publish(subject string, payload any) {
	if s.sink != nil {
		s.sink.Publish(context.Background(), subject, payload)
	}
}

// Create registers a new pending task and returns a copy.
func (s *Store) Create(content string, priority Priority) (Task, error) {
	t, err := New(content, priority)
	if err != nil {
		return Task{}, err
	}

	s.mu.Lock()
	s.tasks[t.ID] = t
	s.mu.Unlock()

	s.logger.Debug("task created",
		zap.String("task_id", t.ID),
		zap.String("priority", string(t.Priority)),
	)
	return t.Clone(), nil
}

// Get returns a copy of the task, or CodeTaskNotFound.
func (s *Store) Get(id string) (Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, found := s.tasks[id]
	if !found {
		return Task{}, orcerr.Newf(orcerr.CodeTaskNotFound, "task %s not found", id).
			With("task_id", id)
	}
	return t.Clone(), nil
}

// UpdateStatus applies a status transition under the store lock. The task is
// unchanged when the transition is illegal.
func (s *Store) UpdateStatus(id string, to Status, agentID, notes string) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, found := s.tasks[id]
	if !found {
		return Task{}, orcerr.Newf(orcerr.CodeTaskNotFound, "task %s not found", id).
			With("task_id", id)
	}

	from := t.Status
	if err := t.ChangeStatus(to, agentID, notes); err != nil {
		return Task{}, err
	}

	s.logger.Debug("task status changed",
		zap.String("task_id", id),
		zap.String("status", string(to)),
		zap.String("agent_id", agentID),
	)
	s.publish("task.status_changed", map[string]string{
		"task_id":  id,
		"from":     string(from),
		"to":       string(to),
		"agent_id": agentID,
	})
	return t.Clone(), nil
}

// Block transitions the task to blocked and records the reason.
func (s *Store) Block(id, reason, agentID string) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, found := s.tasks[id]
	if !found {
		return Task{}, orcerr.Newf(orcerr.CodeTaskNotFound, "task %s not found", id).
			With("task_id", id)
	}

	from := t.Status
	if err := t.Block(reason, agentID); err != nil {
		return Task{}, err
	}

	s.logger.Debug("task blocked",
		zap.String("task_id", id),
		zap.String("reason", reason),
	)
	s.publish("task.status_changed", map[string]string{
		"task_id":  id,
		"from":     string(from),
		"to":       string(StatusBlocked),
		"agent_id": agentID,
	})
	return t.Clone(), nil
}

// AddDependency records that id must wait for dependsOn. Idempotent.
func (s *Store) AddDependency(id, dependsOn string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, found := s.tasks[id]
	if !found {
		return orcerr.Newf(orcerr.CodeTaskNotFound, "task %s not found", id).
			With("task_id", id)
	}
	for _, d := range t.Dependencies {
		if d == dependsOn {
			return nil
		}
	}
	t.Dependencies = append(t.Dependencies, dependsOn)
	return nil
}

// List returns copies of all tasks ordered by creation time.
func (s *Store) List() []Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Export returns copies of all tasks for snapshot persistence.
func (s *Store) Export() []Task {
	return s.List()
}

// Import replaces the registry contents. Used by snapshot restore; callers
// are responsible for validating entities beforehand.
func (s *Store) Import(tasks []Task) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks = make(map[string]*Task, len(tasks))
	for i := range tasks {
		t := tasks[i].Clone()
		s.tasks[t.ID] = &t
	}
}
