package session

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/orchestrd/internal/orcerr"
	"github.com/fyrsmithlabs/orchestrd/internal/validate"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(DefaultConfig(), zap.NewNop())
}

func TestCreate_GeneratesValidID(t *testing.T) {
	s := newTestStore(t)

	sess, err := s.Create("refactoring session", "")
	require.NoError(t, err)
	assert.True(t, validate.IsValidSessionID(sess.ID))
	assert.False(t, sess.IsActive)
	assert.Equal(t, "refactoring session", sess.Description)
}

func TestCreate_AcceptsLegacyID(t *testing.T) {
	s := newTestStore(t)

	sess, err := s.Create("restored session", "session-1714066800000-abcd1234")
	require.NoError(t, err)
	assert.Equal(t, "session-1714066800000-abcd1234", sess.ID)
}

func TestCreate_RejectsBadOrDuplicateID(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Create("bad", "not-a-session-id")
	require.Error(t, err)
	assert.True(t, orcerr.IsCode(err, orcerr.CodeInvalidInput))

	first, err := s.Create("first", "")
	require.NoError(t, err)
	_, err = s.Create("dup", first.ID)
	require.Error(t, err)
}

type recordingSink struct {
	subjects []string
}

func (r *recordingSink) Publish(_ context.Context, subject string, _ any) {
	r.subjects = append(r.subjects, subject)
}

func TestActivate_PublishesEvent(t *testing.T) {
	s := newTestStore(t)
	sink := &recordingSink{}
	s.SetEventSink(sink)

	sess, err := s.Create("observed session", "")
	require.NoError(t, err)
	require.NoError(t, s.Activate(sess.ID))

	assert.Equal(t, []string{"session.activated"}, sink.subjects)

	require.Error(t, s.Activate("session_0f8fad5b-d9cb-469f-a165-70867728950e"))
	assert.Len(t, sink.subjects, 1)
}

// Scenario: s1 created and activated, s2 created; Active returns s1.
// After activating s2, Active returns s2 and s1 is no longer active.
func TestActivate_SwapsExclusivePointer(t *testing.T) {
	s := newTestStore(t)

	s1, err := s.Create("first", "")
	require.NoError(t, err)
	s2, err := s.Create("second", "")
	require.NoError(t, err)

	require.NoError(t, s.Activate(s1.ID))
	active, ok := s.Active()
	require.True(t, ok)
	assert.Equal(t, s1.ID, active.ID)

	require.NoError(t, s.Activate(s2.ID))
	active, ok = s.Active()
	require.True(t, ok)
	assert.Equal(t, s2.ID, active.ID)

	got1, err := s.Get(s1.ID)
	require.NoError(t, err)
	assert.False(t, got1.IsActive)

	stats := s.Stats()
	assert.Equal(t, 1, stats.ActiveSessions)
}

func TestActivate_UnknownSession(t *testing.T) {
	s := newTestStore(t)
	err := s.Activate("session_0f8fad5b-d9cb-469f-a165-70867728950e")
	require.Error(t, err)
	assert.True(t, orcerr.IsCode(err, orcerr.CodeSessionNotFound))
}

func TestActive_TouchesLastAccessed(t *testing.T) {
	s := newTestStore(t)
	sess, err := s.Create("touched", "")
	require.NoError(t, err)
	require.NoError(t, s.Activate(sess.ID))

	now := time.Now()
	s.now = func() time.Time { return now.Add(time.Minute) }

	active, ok := s.Active()
	require.True(t, ok)
	assert.Equal(t, now.Add(time.Minute), active.LastAccessedAt)
}

func TestIsExpired(t *testing.T) {
	s := NewStore(Config{IdleTimeout: 10 * time.Minute}, zap.NewNop())
	sess, err := s.Create("expiring", "")
	require.NoError(t, err)

	assert.False(t, s.IsExpired(sess.ID))

	base := time.Now()
	s.now = func() time.Time { return base.Add(11 * time.Minute) }
	assert.True(t, s.IsExpired(sess.ID))

	assert.True(t, s.IsExpired("session_0f8fad5b-d9cb-469f-a165-70867728950e"))
}

// SweepExpired is unconditional: it evicts the active session too.
func TestSweepExpired_EvictsActiveSession(t *testing.T) {
	s := NewStore(Config{IdleTimeout: 10 * time.Minute}, zap.NewNop())
	sess, err := s.Create("doomed", "")
	require.NoError(t, err)
	require.NoError(t, s.Activate(sess.ID))

	base := time.Now()
	s.now = func() time.Time { return base.Add(time.Hour) }

	removed := s.SweepExpired()
	assert.Equal(t, []string{sess.ID}, removed)

	_, ok := s.Active()
	assert.False(t, ok)
	assert.Equal(t, 0, s.Stats().TotalSessions)
}

// CleanupInactive never removes the active session, for any age.
func TestCleanupInactive_NeverRemovesActive(t *testing.T) {
	s := newTestStore(t)
	active, err := s.Create("active", "")
	require.NoError(t, err)
	idle, err := s.Create("idle", "")
	require.NoError(t, err)
	require.NoError(t, s.Activate(active.ID))

	base := time.Now()
	s.now = func() time.Time { return base.Add(100 * time.Hour) }

	removed := s.CleanupInactive(24 * time.Hour)
	assert.Equal(t, []string{idle.ID}, removed)

	_, err = s.Get(active.ID)
	assert.NoError(t, err)
}

func TestSaveContext_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	sess, err := s.Create("memory", "")
	require.NoError(t, err)

	value := map[string]any{"step": 3, "note": "after deploy"}
	require.NoError(t, s.SaveContext(sess.ID, "checkpoint", value))

	raw, found := s.GetContext(sess.ID, "checkpoint")
	require.True(t, found)

	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "after deploy", got["note"])

	_, found = s.GetContext(sess.ID, "missing")
	assert.False(t, found)
}

func TestSaveContext_UnknownSessionFailsLoudly(t *testing.T) {
	s := newTestStore(t)
	err := s.SaveContext("session_0f8fad5b-d9cb-469f-a165-70867728950e", "k", "v")
	require.Error(t, err)
	assert.True(t, orcerr.IsCode(err, orcerr.CodeSessionNotFound))
}

func TestLinkWorkflow_Idempotent(t *testing.T) {
	s := newTestStore(t)
	sess, err := s.Create("links", "")
	require.NoError(t, err)

	added, err := s.LinkWorkflow(sess.ID, "wf_0f8fad5b-d9cb-469f-a165-70867728950e")
	require.NoError(t, err)
	assert.True(t, added)

	added, err = s.LinkWorkflow(sess.ID, "wf_0f8fad5b-d9cb-469f-a165-70867728950e")
	require.NoError(t, err)
	assert.False(t, added)

	got, err := s.Get(sess.ID)
	require.NoError(t, err)
	assert.Len(t, got.WorkflowIDs, 1)
}

func TestRecordParentChild_IdempotentOrderedAppend(t *testing.T) {
	s := newTestStore(t)
	sess, err := s.Create("relationships", "")
	require.NoError(t, err)

	added, err := s.RecordParentChild(sess.ID, "parent-1", "child-a")
	require.NoError(t, err)
	assert.True(t, added)

	added, err = s.RecordParentChild(sess.ID, "parent-1", "child-b")
	require.NoError(t, err)
	assert.True(t, added)

	added, err = s.RecordParentChild(sess.ID, "parent-1", "child-a")
	require.NoError(t, err)
	assert.False(t, added)

	got, err := s.Get(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"child-a", "child-b"}, got.ParentChild["parent-1"])
}

func TestStats(t *testing.T) {
	s := newTestStore(t)
	assert.Equal(t, Stats{}, s.Stats())

	first, err := s.Create("first", "")
	require.NoError(t, err)
	_, err = s.Create("second", "")
	require.NoError(t, err)
	require.NoError(t, s.Activate(first.ID))

	stats := s.Stats()
	assert.Equal(t, 2, stats.TotalSessions)
	assert.Equal(t, 1, stats.ActiveSessions)
	assert.False(t, stats.OldestCreatedAt.IsZero())
	assert.False(t, stats.NewestCreatedAt.Before(stats.OldestCreatedAt))
}

func TestExportImport_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	sess, err := s.Create("persisted", "")
	require.NoError(t, err)
	require.NoError(t, s.Activate(sess.ID))
	require.NoError(t, s.SaveContext(sess.ID, "k", "v"))

	sessions, activeID := s.Export()

	restored := newTestStore(t)
	restored.Import(sessions, activeID)

	active, ok := restored.Active()
	require.True(t, ok)
	assert.Equal(t, sess.ID, active.ID)

	raw, found := restored.GetContext(sess.ID, "k")
	require.True(t, found)
	assert.JSONEq(t, `"v"`, string(raw))
}
