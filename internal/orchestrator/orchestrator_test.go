package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/orchestrd/internal/config"
	"github.com/fyrsmithlabs/orchestrd/internal/session"
	"github.com/fyrsmithlabs/orchestrd/internal/workflow"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	cfg, err := config.LoadWithFile("")
	require.NoError(t, err)
	return cfg
}

func newOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	o, err := New(testConfig(t), zap.NewNop())
	require.NoError(t, err)
	return o
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, zap.NewNop())
	assert.Error(t, err)

	_, err = New(testConfig(t), nil)
	assert.Error(t, err)
}

func TestStartClose(t *testing.T) {
	o := newOrchestrator(t)
	require.NoError(t, o.Start(context.Background()))
	require.NoError(t, o.Close())
}

func TestCreateWorkflow_BindsActiveSession(t *testing.T) {
	o := newOrchestrator(t)

	sess, err := o.Sessions.Create("binding test", session.NewID())
	require.NoError(t, err)
	require.NoError(t, o.Sessions.Activate(sess.ID))

	def, err := o.CreateWorkflow(context.Background(), "ship the release notes", "simple")
	require.NoError(t, err)
	assert.Equal(t, sess.ID, def.Context.SessionID)

	got, err := o.Sessions.Get(sess.ID)
	require.NoError(t, err)
	assert.Contains(t, got.WorkflowIDs, def.ID)
}

func TestCreateWorkflow_NoActiveSession(t *testing.T) {
	o := newOrchestrator(t)

	def, err := o.CreateWorkflow(context.Background(), "ship the release notes", "simple")
	require.NoError(t, err)
	assert.Empty(t, def.Context.SessionID)
}

func TestCreateWorkflow_UsesInstalledGenerator(t *testing.T) {
	o := newOrchestrator(t)
	o.SetGenerator(func(ctx context.Context, objective, complexity string) ([]workflow.Task, error) {
		return []workflow.Task{{Content: "custom step"}}, nil
	})

	def, err := o.CreateWorkflow(context.Background(), "ship the release notes", "simple")
	require.NoError(t, err)
	require.Len(t, def.Tasks, 1)
	assert.Equal(t, "custom step", def.Tasks[0].Content)
}

func TestClassify_FallsBackToHeuristic(t *testing.T) {
	o := newOrchestrator(t)

	cls := o.Classify(context.Background(), "fix typo")
	assert.Equal(t, "simple", cls.Complexity)
}
