// Package session provides isolated work sessions with an exclusive active
// pointer, idle expiry, and per-session context memory.
package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/orchestrd/internal/orcerr"
	"github.com/fyrsmithlabs/orchestrd/internal/validate"
)

// Context is an isolated namespace grouping workflows and contextual memory.
type Context struct {
	ID             string                     `json:"id"`
	Description    string                     `json:"description"`
	CreatedAt      time.Time                  `json:"created_at"`
	LastAccessedAt time.Time                  `json:"last_accessed_at"`
	WorkflowIDs    []string                   `json:"workflow_ids,omitempty"`
	ExecutionState map[string]json.RawMessage `json:"execution_state,omitempty"`
	ParentChild    map[string][]string        `json:"parent_child,omitempty"`
	ContextMemory  map[string]json.RawMessage `json:"context_memory,omitempty"`
	IsActive       bool                       `json:"is_active"`
}

func (c *Context) clone() Context {
	out := *c
	out.WorkflowIDs = append([]string(nil), c.WorkflowIDs...)
	out.ExecutionState = cloneRawMap(c.ExecutionState)
	out.ContextMemory = cloneRawMap(c.ContextMemory)
	out.ParentChild = make(map[string][]string, len(c.ParentChild))
	for k, v := range c.ParentChild {
		out.ParentChild[k] = append([]string(nil), v...)
	}
	return out
}

func cloneRawMap(in map[string]json.RawMessage) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(in))
	for k, v := range in {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}

// Config configures the session store.
type Config struct {
	// IdleTimeout is the idle duration after which a session is expired.
	IdleTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{IdleTimeout: 30 * time.Minute}
}

// Stats summarizes the current session population.
type Stats struct {
	TotalSessions   int       `json:"total_sessions"`
	ActiveSessions  int       `json:"active_sessions"`
	OldestCreatedAt time.Time `json:"oldest_created_at,omitzero"`
	NewestCreatedAt time.Time `json:"newest_created_at,omitzero"`
}

// EventSink receives best-effort lifecycle events. Implementations must not
// block the caller.
type EventSink interface {
	Publish(ctx context.Context, subject string, payload any)
}

// Store owns all sessions and the exclusive active pointer. The pointer swap
// in Activate happens under the write lock, so readers never observe two
// active sessions or a torn swap.
type Store struct {
	mu       sync.RWMutex
	cfg      Config
	sessions map[string]*Context
	activeID string
	logger   *zap.Logger
	sink     EventSink

	// now is swappable for expiry tests.
	now func() time.Time
}

// NewStore creates an empty session store.
func NewStore(cfg Config, logger *zap.Logger) *Store {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultConfig().IdleTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		cfg:      cfg,
		sessions: make(map[string]*Context),
		logger:   logger,
		now:      time.Now,
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

// NewID allocates a fresh session identifier.
func NewID() string {
	return "session_" + uuid.New().String()
}

// Create registers a new inactive session. When id is empty a fresh one is
// allocated; a caller-supplied id must match an accepted grammar and be
// unused.
func (s *Store) Create(description, id string) (Context, error) {
	if id == "" {
		id = NewID()
	} else if !validate.IsValidSessionID(id) {
		return Context{}, orcerr.Newf(orcerr.CodeInvalidInput, "invalid session id %q", id).
			With("field", "id").
			With("value", id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[id]; exists {
		return Context{}, orcerr.Newf(orcerr.CodeInvalidInput, "session %s already exists", id).
			With("session_id", id)
	}

	now := s.now()
	sess := &Context{
		ID:             id,
		Description:    description,
		CreatedAt:      now,
		LastAccessedAt: now,
		ExecutionState: make(map[string]json.RawMessage),
		ParentChild:    make(map[string][]string),
		ContextMemory:  make(map[string]json.RawMessage),
	}
	s.sessions[id] = sess

	s.logger.Debug("session created", zap.String("session_id", id))
	return sess.clone(), nil
}

// Activate marks the target session active, deactivating the previous active
// session if any. The swap is atomic with respect to Active readers.
func (s *Store) Activate(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	target, found := s.sessions[id]
	if !found {
		return orcerr.Newf(orcerr.CodeSessionNotFound, "session %s not found", id).
			With("session_id", id)
	}

	if s.activeID != "" && s.activeID != id {
		if prev, ok := s.sessions[s.activeID]; ok {
			prev.IsActive = false
		}
	}

	target.IsActive = true
	target.LastAccessedAt = s.now()
	s.activeID = id

	s.logger.Info("session activated", zap.String("session_id", id))
	s.publish("session.activated", map[string]string{"session_id": id})
	return nil
}

// Active returns the active session, refreshing its last-accessed timestamp
// (read-through touch). The second return is false when no session is active.
func (s *Store) Active() (Context, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.activeID == "" {
		return Context{}, false
	}
	sess, found := s.sessions[s.activeID]
	if !found {
		return Context{}, false
	}
	sess.LastAccessedAt = s.now()
	return sess.clone(), true
}

// Get returns a copy of the session without touching its access time.
func (s *Store) Get(id string) (Context, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, found := s.sessions[id]
	if !found {
		return Context{}, orcerr.Newf(orcerr.CodeSessionNotFound, "session %s not found", id).
			With("session_id", id)
	}
	return sess.clone(), nil
}

// IsExpired reports whether the session has been idle past the configured
// timeout. Unknown sessions are reported as expired.
func (s *Store) IsExpired(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, found := s.sessions[id]
	if !found {
		return true
	}
	return s.expired(sess)
}

func (s *Store) expired(sess *Context) bool {
	return s.now().Sub(sess.LastAccessedAt) > s.cfg.IdleTimeout
}

// SweepExpired removes every expired session regardless of the active flag.
// Callers that must not evict the active session check IsActive first, or use
// CleanupInactive.
func (s *Store) SweepExpired() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []string
	for id, sess := range s.sessions {
		if s.expired(sess) {
			delete(s.sessions, id)
			if s.activeID == id {
				s.activeID = ""
			}
			removed = append(removed, id)
		}
	}
	if len(removed) > 0 {
		s.logger.Info("swept expired sessions", zap.Strings("session_ids", removed))
	}
	return removed
}

// CleanupInactive removes sessions idle longer than maxAge, never touching
// the active session.
func (s *Store) CleanupInactive(maxAge time.Duration) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-maxAge)
	var removed []string
	for id, sess := range s.sessions {
		if sess.IsActive {
			continue
		}
		if sess.LastAccessedAt.Before(cutoff) {
			delete(s.sessions, id)
			removed = append(removed, id)
		}
	}
	if len(removed) > 0 {
		s.logger.Info("cleaned up inactive sessions", zap.Strings("session_ids", removed))
	}
	return removed
}

// SaveContext stores a value in the session's context memory. The value is
// serialized on save so later caller mutation cannot leak into the store.
// Unknown sessions fail with CodeSessionNotFound.
func (s *Store) SaveContext(sessionID, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return orcerr.Wrap(orcerr.CodeInvalidInput, "context value not serializable", err).
			With("key", key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, found := s.sessions[sessionID]
	if !found {
		return orcerr.Newf(orcerr.CodeSessionNotFound, "session %s not found", sessionID).
			With("session_id", sessionID)
	}
	sess.ContextMemory[key] = data
	return nil
}

// GetContext retrieves a context memory value. The second return is false
// when the session or the key is unknown.
func (s *Store) GetContext(sessionID, key string) (json.RawMessage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, found := s.sessions[sessionID]
	if !found {
		return nil, false
	}
	data, found := sess.ContextMemory[key]
	if !found {
		return nil, false
	}
	return append(json.RawMessage(nil), data...), true
}

// LinkWorkflow appends a workflow id to the session's owned list.
// Returns true when the id was newly added.
func (s *Store) LinkWorkflow(sessionID, workflowID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, found := s.sessions[sessionID]
	if !found {
		return false, orcerr.Newf(orcerr.CodeSessionNotFound, "session %s not found", sessionID).
			With("session_id", sessionID)
	}
	for _, id := range sess.WorkflowIDs {
		if id == workflowID {
			return false, nil
		}
	}
	sess.WorkflowIDs = append(sess.WorkflowIDs, workflowID)
	return true, nil
}

// RecordParentChild appends a child task id to the per-parent list.
// Returns true when the pair was newly added.
func (s *Store) RecordParentChild(sessionID, parentID, childID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, found := s.sessions[sessionID]
	if !found {
		return false, orcerr.Newf(orcerr.CodeSessionNotFound, "session %s not found", sessionID).
			With("session_id", sessionID)
	}
	for _, id := range sess.ParentChild[parentID] {
		if id == childID {
			return false, nil
		}
	}
	sess.ParentChild[parentID] = append(sess.ParentChild[parentID], childID)
	return true, nil
}

// SaveExecutionState stores opaque per-workflow state on the session.
func (s *Store) SaveExecutionState(sessionID, workflowID string, state any) error {
	data, err := json.Marshal(state)
	if err != nil {
		return orcerr.Wrap(orcerr.CodeInvalidInput, "execution state not serializable", err).
			With("workflow_id", workflowID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, found := s.sessions[sessionID]
	if !found {
		return orcerr.Newf(orcerr.CodeSessionNotFound, "session %s not found", sessionID).
			With("session_id", sessionID)
	}
	sess.ExecutionState[workflowID] = data
	return nil
}

// Stats summarizes the session population.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{TotalSessions: len(s.sessions)}
	for _, sess := range s.sessions {
		if sess.IsActive {
			st.ActiveSessions++
		}
		if st.OldestCreatedAt.IsZero() || sess.CreatedAt.Before(st.OldestCreatedAt) {
			st.OldestCreatedAt = sess.CreatedAt
		}
		if sess.CreatedAt.After(st.NewestCreatedAt) {
			st.NewestCreatedAt = sess.CreatedAt
		}
	}
	return st
}

// Export returns copies of all sessions plus the active pointer for snapshot
// persistence.
func (s *Store) Export() ([]Context, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Context, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.clone())
	}
	return out, s.activeID
}

// Import replaces the store contents. Callers validate entities beforehand.
func (s *Store) Import(sessions []Context, activeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions = make(map[string]*Context, len(sessions))
	for i := range sessions {
		c := sessions[i].clone()
		s.sessions[c.ID] = &c
	}
	if _, found := s.sessions[activeID]; found {
		s.activeID = activeID
	} else {
		s.activeID = ""
	}
}
