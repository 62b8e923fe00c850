package preserve

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(zap.NewNop())
}

type execState struct {
	Step  int      `json:"step"`
	Notes []string `json:"notes"`
}

// Round-trip: restore yields a value deep-equal to the saved one, and later
// mutation of the original does not affect the stored copy.
func TestExecutionContext_RoundTripIsIndependent(t *testing.T) {
	m := newTestManager(t)

	original := &execState{Step: 2, Notes: []string{"after deploy"}}
	require.NoError(t, m.SaveExecutionContext("wf-1", original))

	original.Step = 99
	original.Notes[0] = "mutated"

	var restored execState
	require.NoError(t, m.RestoreExecutionContextInto("wf-1", &restored))
	assert.Equal(t, execState{Step: 2, Notes: []string{"after deploy"}}, restored)
}

func TestExecutionContext_Missing(t *testing.T) {
	m := newTestManager(t)

	_, found := m.RestoreExecutionContext("unknown")
	assert.False(t, found)

	var out execState
	err := m.RestoreExecutionContextInto("unknown", &out)
	assert.Error(t, err)
}

func TestSaveExecutionContext_RejectsUnserializable(t *testing.T) {
	m := newTestManager(t)
	err := m.SaveExecutionContext("wf-1", make(chan int))
	assert.Error(t, err)
}

func TestSubtasks_VacuousCompletion(t *testing.T) {
	m := newTestManager(t)

	// No relationship at all: nothing to wait for.
	assert.True(t, m.AllSubtasksComplete("unknown-parent"))

	// Empty child set: complete immediately after creation.
	require.NoError(t, m.CreateSubtaskRelationship("parent-1", nil, "", nil))
	assert.True(t, m.AllSubtasksComplete("parent-1"))
}

func TestSubtasks_CompleteExactlyWhenAllChildrenDone(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.CreateSubtaskRelationship("parent-1", []string{"c1", "c2", "c3"}, "resume step 4", map[string]string{"cursor": "3"}))

	assert.False(t, m.AllSubtasksComplete("parent-1"))

	for _, child := range []string{"c1", "c2"} {
		rel, found := m.CompleteSubtask("parent-1", child)
		require.True(t, found)
		assert.False(t, rel.AllComplete())
	}

	rel, found := m.CompleteSubtask("parent-1", "c3")
	require.True(t, found)
	assert.True(t, rel.AllComplete())
	assert.True(t, m.AllSubtasksComplete("parent-1"))
}

func TestCompleteSubtask_IdempotentAndSubsetInvariant(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.CreateSubtaskRelationship("parent-1", []string{"c1", "c2"}, "", nil))

	rel, found := m.CompleteSubtask("parent-1", "c1")
	require.True(t, found)
	assert.Equal(t, []string{"c1"}, rel.CompletedChildren)

	// Repeated completion does not duplicate.
	rel, found = m.CompleteSubtask("parent-1", "c1")
	require.True(t, found)
	assert.Equal(t, []string{"c1"}, rel.CompletedChildren)

	// Ids outside the fixed child set never enter CompletedChildren.
	rel, found = m.CompleteSubtask("parent-1", "stranger")
	require.True(t, found)
	assert.Equal(t, []string{"c1"}, rel.CompletedChildren)
	assert.False(t, rel.AllComplete())
}

func TestCompleteSubtask_UnknownParent(t *testing.T) {
	m := newTestManager(t)
	_, found := m.CompleteSubtask("nobody", "c1")
	assert.False(t, found)
}

func TestCreateSubtaskRelationship_LastWriteWins(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.CreateSubtaskRelationship("parent-1", []string{"c1"}, "", nil))
	_, found := m.CompleteSubtask("parent-1", "c1")
	require.True(t, found)
	require.True(t, m.AllSubtasksComplete("parent-1"))

	// Recreation replaces the prior relationship, no merge.
	require.NoError(t, m.CreateSubtaskRelationship("parent-1", []string{"c1", "c2"}, "", nil))
	rel, found := m.Relationship("parent-1")
	require.True(t, found)
	assert.Empty(t, rel.CompletedChildren)
	assert.False(t, m.AllSubtasksComplete("parent-1"))
}

func TestParentContext(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.CreateSubtaskRelationship("parent-1", []string{"c1"}, "step 2", map[string]int{"cursor": 5}))

	raw, found := m.ParentContext("parent-1")
	require.True(t, found)

	var got map[string]int
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, 5, got["cursor"])

	_, found = m.ParentContext("unknown")
	assert.False(t, found)
}

func TestGlobalContext(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.SaveGlobalContext("deploy-checkpoint", "v2 rolled out"))

	raw, found := m.RestoreGlobalContext("deploy-checkpoint")
	require.True(t, found)
	assert.JSONEq(t, `"v2 rolled out"`, string(raw))

	_, found = m.RestoreGlobalContext("missing")
	assert.False(t, found)
}

// Clear evicts all three namespaces under one identifier.
func TestClear(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.SaveExecutionContext("shared-id", execState{Step: 1}))
	require.NoError(t, m.CreateSubtaskRelationship("shared-id", []string{"c1"}, "", nil))
	require.NoError(t, m.SaveGlobalContext("shared-id", "checkpoint"))
	require.NoError(t, m.SaveGlobalContext("other", "kept"))

	m.Clear("shared-id")

	_, found := m.RestoreExecutionContext("shared-id")
	assert.False(t, found)
	_, found = m.Relationship("shared-id")
	assert.False(t, found)
	_, found = m.RestoreGlobalContext("shared-id")
	assert.False(t, found)
	_, found = m.RestoreGlobalContext("other")
	assert.True(t, found)
}

func TestSnapshotRestore_RoundTrip(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.SaveExecutionContext("wf-1", execState{Step: 3}))
	require.NoError(t, m.CreateSubtaskRelationship("parent-1", []string{"c1", "c2"}, "resume", nil))
	_, found := m.CompleteSubtask("parent-1", "c1")
	require.True(t, found)
	require.NoError(t, m.SaveGlobalContext("gk", 42))

	restored := newTestManager(t)
	restored.Restore(m.Snapshot())

	var state execState
	require.NoError(t, restored.RestoreExecutionContextInto("wf-1", &state))
	assert.Equal(t, 3, state.Step)

	rel, found := restored.Relationship("parent-1")
	require.True(t, found)
	assert.Equal(t, []string{"c1"}, rel.CompletedChildren)

	raw, found := restored.RestoreGlobalContext("gk")
	require.True(t, found)
	assert.JSONEq(t, `42`, string(raw))
}
