package workflow

import (
	"context"
	"strings"
)

// Classification is the outcome of analyzing a request's text.
type Classification struct {
	Complexity string  `json:"complexity"`
	TaskType   string  `json:"task_type"`
	Approach   string  `json:"approach"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning,omitempty"`
}

// Classifier analyzes a request. Implementations may call out to an
// inference provider and may fail or be unavailable.
type Classifier interface {
	Classify(ctx context.Context, text string) (Classification, error)
}

// Keyword cues for the heuristic fallback.
var (
	complexCues = []string{
		"architecture", "migrate", "migration", "refactor", "redesign",
		"integrate", "integration", "distributed", "end-to-end", "overhaul",
	}
	simpleCues = []string{
		"typo", "rename", "bump", "tweak", "comment", "log line",
	}
	bugCues  = []string{"fix", "bug", "crash", "regression", "broken"}
	testCues = []string{"test", "coverage", "flaky"}
	docCues  = []string{"document", "docs", "readme", "changelog"}
)

// HeuristicClassification is the deterministic, non-AI fallback: word count
// plus keyword presence. It never fails, so workflow creation never
// hard-fails for lack of a classifier.
func HeuristicClassification(text string) Classification {
	lower := strings.ToLower(text)
	words := len(strings.Fields(text))

	complexity := "moderate"
	switch {
	case containsAny(lower, complexCues) || words > 40:
		complexity = "complex"
	case containsAny(lower, simpleCues) || words < 8:
		complexity = "simple"
	}

	taskType := "implementation"
	switch {
	case containsAny(lower, bugCues):
		taskType = "bug_fix"
	case containsAny(lower, testCues):
		taskType = "testing"
	case containsAny(lower, docCues):
		taskType = "documentation"
	}

	approach := ApproachSequentialWorkflow
	if complexity == "simple" {
		approach = ApproachSingleTask
	}

	return Classification{
		Complexity: complexity,
		TaskType:   taskType,
		Approach:   approach,
		Confidence: 0.5,
		Reasoning:  "heuristic classification from word count and keyword presence",
	}
}

func containsAny(text string, cues []string) bool {
	for _, cue := range cues {
		if strings.Contains(text, cue) {
			return true
		}
	}
	return false
}

// Classify runs the given classifier and downgrades to the heuristic on any
// failure, per the collaborator-failure propagation policy.
func Classify(ctx context.Context, c Classifier, text string) Classification {
	if c == nil {
		return HeuristicClassification(text)
	}
	result, err := c.Classify(ctx, text)
	if err != nil {
		return HeuristicClassification(text)
	}
	return result
}
