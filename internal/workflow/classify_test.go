package workflow

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeuristicClassification(t *testing.T) {
	tests := []struct {
		name           string
		text           string
		wantComplexity string
		wantTaskType   string
		wantApproach   string
	}{
		{
			name:           "short request is simple",
			text:           "fix typo in readme",
			wantComplexity: "simple",
			wantTaskType:   "bug_fix",
			wantApproach:   ApproachSingleTask,
		},
		{
			name:           "architecture keyword is complex",
			text:           "redesign the service architecture to support multi-region deployments",
			wantComplexity: "complex",
			wantTaskType:   "implementation",
			wantApproach:   ApproachSequentialWorkflow,
		},
		{
			name:           "long request is complex",
			text:           strings.Repeat("describe one more requirement in detail ", 10),
			wantComplexity: "complex",
			wantTaskType:   "implementation",
			wantApproach:   ApproachSequentialWorkflow,
		},
		{
			name:           "moderate default",
			text:           "add pagination support to the listing endpoint and update clients",
			wantComplexity: "moderate",
			wantTaskType:   "implementation",
			wantApproach:   ApproachSequentialWorkflow,
		},
		{
			name:           "test keyword",
			text:           "add unit coverage for the session store expiry and sweep behavior together",
			wantComplexity: "moderate",
			wantTaskType:   "testing",
			wantApproach:   ApproachSequentialWorkflow,
		},
		{
			name:           "documentation keyword",
			text:           "update the readme with the new configuration options and environment variables",
			wantComplexity: "moderate",
			wantTaskType:   "documentation",
			wantApproach:   ApproachSequentialWorkflow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := HeuristicClassification(tt.text)
			assert.Equal(t, tt.wantComplexity, c.Complexity)
			assert.Equal(t, tt.wantTaskType, c.TaskType)
			assert.Equal(t, tt.wantApproach, c.Approach)
			assert.Greater(t, c.Confidence, 0.0)
		})
	}
}

func TestHeuristicClassification_IsDeterministic(t *testing.T) {
	text := "migrate the billing pipeline"
	assert.Equal(t, HeuristicClassification(text), HeuristicClassification(text))
}

type stubClassifier struct {
	result Classification
	err    error
}

func (s stubClassifier) Classify(ctx context.Context, text string) (Classification, error) {
	return s.result, s.err
}

func TestClassify_FallsBackOnError(t *testing.T) {
	failing := stubClassifier{err: errors.New("provider down")}
	c := Classify(context.Background(), failing, "fix typo")
	assert.Equal(t, "simple", c.Complexity)
}

func TestClassify_FallsBackOnNil(t *testing.T) {
	c := Classify(context.Background(), nil, "fix typo")
	assert.Equal(t, "simple", c.Complexity)
}

func TestClassify_UsesClassifierResult(t *testing.T) {
	want := Classification{Complexity: "complex", TaskType: "implementation", Approach: ApproachSequentialWorkflow, Confidence: 0.9}
	c := Classify(context.Background(), stubClassifier{result: want}, "anything")
	assert.Equal(t, want, c)
}
