package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/orchestrd/internal/workflow"
)

func newEngine(t *testing.T) *workflow.Store {
	t.Helper()
	return workflow.NewStore(workflow.DefaultConfig(), zap.NewNop())
}

func newMonitor(t *testing.T, engine *workflow.Store) *Monitor {
	t.Helper()
	m, err := New(engine, zap.NewNop(), WithIdleThreshold(10*time.Second))
	require.NoError(t, err)
	// Every workflow looks idle unless a test overrides the clock.
	m.now = func() time.Time { return time.Now().Add(time.Hour) }
	return m
}

func createWorkflow(t *testing.T, engine *workflow.Store, tasks []workflow.Task) workflow.Definition {
	t.Helper()
	def, err := engine.Create(context.Background(), "workflow under monitoring", "moderate",
		func(ctx context.Context, objective, complexity string) ([]workflow.Task, error) {
			return tasks, nil
		})
	require.NoError(t, err)
	return def
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, zap.NewNop())
	assert.Error(t, err)

	_, err = New(newEngine(t), nil)
	assert.Error(t, err)
}

func TestStartStop_Idempotence(t *testing.T) {
	m, err := New(newEngine(t), zap.NewNop(), WithInterval(time.Hour))
	require.NoError(t, err)

	require.NoError(t, m.Start())
	assert.Error(t, m.Start())

	require.NoError(t, m.Stop())
	require.NoError(t, m.Stop())

	// Restartable after stop.
	require.NoError(t, m.Start())
	require.NoError(t, m.Stop())
}

func TestTick_AdvancesIdleWorkflow(t *testing.T) {
	engine := newEngine(t)
	def := createWorkflow(t, engine, []workflow.Task{{Content: "t1"}, {Content: "t2"}})

	m := newMonitor(t, engine)
	m.tick(context.Background())

	got, err := engine.Get(def.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CurrentTaskIndex)
	require.Len(t, got.Context.History, 1)
	assert.True(t, got.Context.History[0].AutoExecuted)
}

func TestTick_SkipsRecentlyActiveWorkflow(t *testing.T) {
	engine := newEngine(t)
	def := createWorkflow(t, engine, []workflow.Task{{Content: "t1"}})

	m, err := New(engine, zap.NewNop(), WithIdleThreshold(10*time.Second))
	require.NoError(t, err)
	// Real clock: the workflow was created moments ago, so it is not idle.
	m.tick(context.Background())

	got, err := engine.Get(def.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.CurrentTaskIndex)
}

func TestTick_SkipsExecutingWorkflow(t *testing.T) {
	engine := newEngine(t)
	def := createWorkflow(t, engine, []workflow.Task{{Content: "t1"}})

	require.True(t, engine.TryBeginExecution(def.ID))
	defer engine.EndExecution(def.ID)

	m := newMonitor(t, engine)
	m.tick(context.Background())

	got, err := engine.Get(def.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.CurrentTaskIndex)
}

// Scenario: both tasks completed; the tick past completion is an idempotent
// no-op and raises no error.
func TestTick_NoOpPastCompletion(t *testing.T) {
	engine := newEngine(t)
	def := createWorkflow(t, engine, []workflow.Task{{Content: "t1"}, {Content: "t2"}})

	_, err := engine.MarkCompleted(context.Background(), def.ID, "t1 done", true)
	require.NoError(t, err)
	_, err = engine.MarkCompleted(context.Background(), def.ID, "t2 done", true)
	require.NoError(t, err)

	m := newMonitor(t, engine)
	m.tick(context.Background())

	got, err := engine.Get(def.ID)
	require.NoError(t, err)
	assert.True(t, got.IsCompleted)
	assert.Equal(t, 2, got.CurrentTaskIndex)
	assert.Len(t, got.Context.History, 2)
}

// One gated workflow must not stop the sweep from advancing the others.
func TestTick_BestEffortAcrossWorkflows(t *testing.T) {
	engine := newEngine(t)
	gated := createWorkflow(t, engine, []workflow.Task{
		{Content: "gated", Dependencies: []string{"never-satisfied"}},
	})
	free := createWorkflow(t, engine, []workflow.Task{{Content: "free"}, {Content: "more"}})

	m := newMonitor(t, engine)
	m.tick(context.Background())

	gotGated, err := engine.Get(gated.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, gotGated.CurrentTaskIndex)

	gotFree, err := engine.Get(free.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, gotFree.CurrentTaskIndex)
}

func TestTick_RefreshesActivityEvenWithoutAdvancement(t *testing.T) {
	engine := newEngine(t)
	def := createWorkflow(t, engine, []workflow.Task{
		{Content: "gated", Dependencies: []string{"never-satisfied"}},
	})

	before, found := engine.LastActivity(def.ID)
	require.True(t, found)

	m := newMonitor(t, engine)
	m.tick(context.Background())

	after, found := engine.LastActivity(def.ID)
	require.True(t, found)
	assert.False(t, after.Before(before))
}
