package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/orchestrd/internal/session"
	"github.com/fyrsmithlabs/orchestrd/internal/task"
	"github.com/fyrsmithlabs/orchestrd/internal/workflow"
)

// populate fills the orchestrator with one of everything.
func populate(t *testing.T, o *Orchestrator) (task.Task, session.Context, workflow.Definition) {
	t.Helper()

	tk, err := o.Tasks.Create("document the snapshot format", task.PriorityMedium)
	require.NoError(t, err)

	sess, err := o.Sessions.Create("snapshot test session", session.NewID())
	require.NoError(t, err)
	require.NoError(t, o.Sessions.Activate(sess.ID))

	def, err := o.CreateWorkflow(context.Background(), "verify persisted state survives a restart", "simple")
	require.NoError(t, err)

	require.NoError(t, o.Preserved.SaveGlobalContext("branch", "main"))
	return tk, sess, def
}

func TestSnapshotRoundTrip(t *testing.T) {
	src := newOrchestrator(t)
	tk, sess, def := populate(t, src)

	snap := src.Snapshot()
	assert.Equal(t, SnapshotVersion, snap.Version)

	dst := newOrchestrator(t)
	report, err := dst.RestoreSnapshot(snap)
	require.NoError(t, err)
	assert.Empty(t, report.Entries)

	gotTask, err := dst.Tasks.Get(tk.ID)
	require.NoError(t, err)
	assert.Equal(t, tk.Content, gotTask.Content)

	active, ok := dst.Sessions.Active()
	require.True(t, ok)
	assert.Equal(t, sess.ID, active.ID)

	gotDef, err := dst.Workflows.Get(def.ID)
	require.NoError(t, err)
	assert.Equal(t, def.Title, gotDef.Title)
	assert.Len(t, gotDef.Tasks, len(def.Tasks))

	raw, ok := dst.Preserved.RestoreGlobalContext("branch")
	require.True(t, ok)
	assert.JSONEq(t, `"main"`, string(raw))
}

func TestRestoreSnapshot_RejectsWrongVersion(t *testing.T) {
	o := newOrchestrator(t)

	_, err := o.RestoreSnapshot(Snapshot{Version: 99})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported snapshot version")
}

func TestRestoreSnapshot_QuarantinesInvalidEntities(t *testing.T) {
	o := newOrchestrator(t)

	goodTask, err := task.New("a perfectly fine task", task.PriorityLow)
	require.NoError(t, err)

	badStatus := *goodTask
	badStatus.ID = task.NewID()
	badStatus.Status = task.Status("daydreaming")

	goodSession := session.Context{
		ID:        session.NewID(),
		CreatedAt: time.Now(),
	}
	badSession := session.Context{
		ID:        "sess-not-a-real-id",
		CreatedAt: time.Now(),
	}

	badWorkflow := workflow.Definition{
		ID:               workflow.NewID(),
		Title:            "cursor out of bounds",
		Tasks:            []workflow.Task{{ID: "step-1", Content: "only step"}},
		CurrentTaskIndex: 5,
	}

	snap := Snapshot{
		Version:  SnapshotVersion,
		Tasks:    []task.Task{*goodTask, badStatus},
		Sessions: []session.Context{goodSession, badSession},
		// The active pointer names the quarantined session; restore must
		// clear it rather than point at a missing entry.
		ActiveSessionID: badSession.ID,
		Workflows:       []workflow.Definition{badWorkflow},
	}

	report, err := o.RestoreSnapshot(snap)
	require.NoError(t, err)
	require.Len(t, report.Entries, 3)

	kinds := make(map[string]string, len(report.Entries))
	for _, e := range report.Entries {
		kinds[e.Kind] = e.Reason
	}
	assert.Contains(t, kinds["task"], "unknown status")
	assert.Contains(t, kinds["session"], "malformed session id")
	assert.Contains(t, kinds["workflow"], "out of bounds")

	// Valid entities loaded.
	_, err = o.Tasks.Get(goodTask.ID)
	assert.NoError(t, err)
	_, err = o.Sessions.Get(goodSession.ID)
	assert.NoError(t, err)

	// Quarantined entities did not.
	_, err = o.Tasks.Get(badStatus.ID)
	assert.Error(t, err)
	_, err = o.Workflows.Get(badWorkflow.ID)
	assert.Error(t, err)

	_, ok := o.Sessions.Active()
	assert.False(t, ok)
}

func TestSaveLoadSnapshot(t *testing.T) {
	src := newOrchestrator(t)
	_, sess, def := populate(t, src)

	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, src.SaveSnapshot(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	dst := newOrchestrator(t)
	report, err := dst.LoadSnapshot(path)
	require.NoError(t, err)
	assert.Empty(t, report.Entries)

	active, ok := dst.Sessions.Active()
	require.True(t, ok)
	assert.Equal(t, sess.ID, active.ID)

	gotDef, err := dst.Workflows.Get(def.ID)
	require.NoError(t, err)
	assert.Equal(t, def.ID, gotDef.ID)
}

func TestLoadSnapshot_MissingFile(t *testing.T) {
	o := newOrchestrator(t)

	_, err := o.LoadSnapshot(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
