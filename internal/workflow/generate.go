package workflow

import (
	"context"
	"fmt"
)

// Generator produces an ordered task list for an objective. Implementations
// may call out to an inference provider; this layer does not retry them.
type Generator func(ctx context.Context, objective, complexity string) ([]Task, error)

// fallbackTasks is the fixed, complexity-appropriate generic template used
// when the generator is absent, fails, or returns malformed data.
func fallbackTasks(objective, complexity string) []Task {
	switch complexity {
	case "simple":
		return []Task{
			{Content: fmt.Sprintf("Plan: %s", objective), EstimatedDuration: "15 minutes"},
			{Content: fmt.Sprintf("Execute: %s", objective), EstimatedDuration: "30 minutes"},
		}
	case "complex":
		return []Task{
			{Content: fmt.Sprintf("Discovery: investigate the current state for %q", objective), EstimatedDuration: "1 hour"},
			{Content: fmt.Sprintf("Design: outline the approach for %q", objective), EstimatedDuration: "1 hour"},
			{Content: fmt.Sprintf("Implementation: carry out %q", objective), EstimatedDuration: "4 hours"},
			{Content: fmt.Sprintf("Validation: verify the result of %q", objective), EstimatedDuration: "1 hour"},
			{Content: fmt.Sprintf("Review: summarize outcomes of %q", objective), EstimatedDuration: "30 minutes"},
		}
	default:
		return []Task{
			{Content: fmt.Sprintf("Analysis: break down %q", objective), EstimatedDuration: "30 minutes"},
			{Content: fmt.Sprintf("Implementation: carry out %q", objective), EstimatedDuration: "2 hours"},
			{Content: fmt.Sprintf("Verification: confirm %q is done", objective), EstimatedDuration: "30 minutes"},
		}
	}
}

// generateTasks invokes the generator and substitutes the template on any
// failure or malformed result. The returned list is never empty.
func generateTasks(ctx context.Context, gen Generator, objective, complexity string) ([]Task, bool) {
	if gen == nil {
		return fallbackTasks(objective, complexity), true
	}
	tasks, err := gen(ctx, objective, complexity)
	if err != nil || len(tasks) == 0 {
		return fallbackTasks(objective, complexity), true
	}
	for _, t := range tasks {
		if t.Content == "" {
			return fallbackTasks(objective, complexity), true
		}
	}
	return tasks, false
}
