package mcp

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/orchestrd/internal/config"
	"github.com/fyrsmithlabs/orchestrd/internal/orcerr"
	"github.com/fyrsmithlabs/orchestrd/internal/orchestrator"
)

func newTestOrchestrator(t *testing.T) *orchestrator.Orchestrator {
	t.Helper()

	t.Setenv("HOME", t.TempDir())
	cfg, err := config.LoadWithFile("")
	require.NoError(t, err)

	orch, err := orchestrator.New(cfg, zap.NewNop())
	require.NoError(t, err)
	return orch
}

func TestNewServer(t *testing.T) {
	srv, err := NewServer(nil, newTestOrchestrator(t))
	require.NoError(t, err)
	assert.NotNil(t, srv)
}

func TestNewServer_RequiresOrchestrator(t *testing.T) {
	_, err := NewServer(DefaultConfig(), nil)
	assert.Error(t, err)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "orchestrd", cfg.Name)
	assert.Equal(t, "1.0.0", cfg.Version)
	assert.NotNil(t, cfg.Logger)
}

func TestCategorizeError(t *testing.T) {
	assert.Equal(t, "", categorizeError(nil))
	assert.Equal(t, string(orcerr.CodeTaskNotFound),
		categorizeError(orcerr.New(orcerr.CodeTaskNotFound, "task missing")))
	assert.Equal(t, string(orcerr.CodeOperationFailed),
		categorizeError(errors.New("plain error")))
}
