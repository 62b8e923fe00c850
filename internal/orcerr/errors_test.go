package orcerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Message(t *testing.T) {
	err := New(CodeSessionNotFound, "session missing")
	assert.Equal(t, "session_not_found: session missing", err.Error())
}

func TestError_WrapsUnderlyingCause(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(CodeOperationFailed, "advance failed", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "boom")
}

func TestError_Details(t *testing.T) {
	err := New(CodeInvalidInput, "bad content").
		With("field", "content").
		With("length", 2)

	assert.Equal(t, "content", err.Details["field"])
	assert.Equal(t, 2, err.Details["length"])
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"nil", nil, ""},
		{"taxonomy error", New(CodeTaskNotFound, "x"), CodeTaskNotFound},
		{"wrapped taxonomy error", fmt.Errorf("outer: %w", New(CodeInvalidStatusTransition, "x")), CodeInvalidStatusTransition},
		{"plain error", errors.New("plain"), CodeOperationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CodeOf(tt.err))
		})
	}
}

func TestIsCode(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(CodeWorkflowNotFound, "gone"))

	require.True(t, IsCode(err, CodeWorkflowNotFound))
	assert.False(t, IsCode(err, CodeSessionNotFound))
	assert.False(t, IsCode(errors.New("plain"), CodeWorkflowNotFound))
}
