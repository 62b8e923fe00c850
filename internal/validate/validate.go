// Package validate provides shared identifier grammars and input validation.
//
// Identifier formats have evolved over time; each validator accepts the union
// of all historically-issued grammars for its entity class, never a single
// rigid pattern.
package validate

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Content length constraints (runes are not significant here; the limits are
// byte lengths on the raw text, minimum applies to the trimmed text).
const (
	MinContentLength = 3
	MaxContentLength = 10000
)

// Validation errors surfaced through Result.Err.
var (
	// ErrTooShort indicates trimmed content shorter than MinContentLength.
	ErrTooShort = errors.New("content too short")

	// ErrTooLong indicates content longer than MaxContentLength.
	ErrTooLong = errors.New("content too long")
)

const uuidPattern = `[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`

// Accepted grammars per entity class. The second pattern in each set is the
// legacy timestamp-suffix format still present in persisted snapshots.
var (
	taskIDPatterns = []*regexp.Regexp{
		regexp.MustCompile(`^task_` + uuidPattern + `$`),
		regexp.MustCompile(`^task-\d{10,13}-[a-z0-9]{4,16}$`),
	}

	sessionIDPatterns = []*regexp.Regexp{
		regexp.MustCompile(`^session_` + uuidPattern + `$`),
		regexp.MustCompile(`^session-\d{10,13}-[a-z0-9]{4,16}$`),
	}

	workflowIDPatterns = []*regexp.Regexp{
		regexp.MustCompile(`^wf_` + uuidPattern + `$`),
		regexp.MustCompile(`^workflow-\d{10,13}-[a-z0-9]{4,16}$`),
	}
)

// Result is the uniform outcome of a structural check.
type Result struct {
	OK  bool
	Err error
}

func ok() Result { return Result{OK: true} }

func fail(err error) Result { return Result{Err: err} }

func matchesAny(id string, patterns []*regexp.Regexp) bool {
	for _, p := range patterns {
		if p.MatchString(id) {
			return true
		}
	}
	return false
}

// IsValidTaskID reports whether id matches an accepted task id grammar.
func IsValidTaskID(id string) bool {
	return matchesAny(id, taskIDPatterns)
}

// IsValidSessionID reports whether id matches an accepted session id grammar.
func IsValidSessionID(id string) bool {
	return matchesAny(id, sessionIDPatterns)
}

// IsValidWorkflowID reports whether id matches an accepted workflow id grammar.
func IsValidWorkflowID(id string) bool {
	return matchesAny(id, workflowIDPatterns)
}

// Content validates free-text content against the configured length bounds.
func Content(text string) Result {
	if len(strings.TrimSpace(text)) < MinContentLength {
		return fail(ErrTooShort)
	}
	if len(text) > MaxContentLength {
		return fail(ErrTooLong)
	}
	return ok()
}

// Range validates that value lies within [min, max] inclusive.
func Range(value, min, max float64) Result {
	if value < min || value > max {
		return fail(fmt.Errorf("value %v outside range [%v, %v]", value, min, max))
	}
	return ok()
}

// Pattern validates a string against a compiled regular expression.
func Pattern(s string, re *regexp.Regexp) Result {
	if re == nil {
		return fail(errors.New("pattern is nil"))
	}
	if !re.MatchString(s) {
		return fail(fmt.Errorf("value %q does not match pattern %s", s, re))
	}
	return ok()
}

// ObjectShape validates that a decoded object carries every required key.
func ObjectShape(obj map[string]any, required []string) Result {
	if obj == nil {
		return fail(errors.New("object is nil"))
	}
	for _, key := range required {
		if _, present := obj[key]; !present {
			return fail(fmt.Errorf("missing required field %q", key))
		}
	}
	return ok()
}

// ItemValidator checks a single element of an array.
type ItemValidator func(item any) Result

// ArrayOf validates every element, reporting the first failing index.
func ArrayOf(items []any, item ItemValidator) Result {
	for i, v := range items {
		if r := item(v); !r.OK {
			return fail(fmt.Errorf("item %d: %w", i, r.Err))
		}
	}
	return ok()
}

// Closed enumeration sets. Status membership mirrors the task state machine;
// it is duplicated here as a plain string set so leaf callers need no import
// of the task package.
var (
	statuses = stringSet(
		"pending", "in_progress", "completed", "archived", "stuck",
		"waiting", "cancelled", "blocked", "paused", "awaiting_approval",
	)
	priorities   = stringSet("critical", "high", "medium", "low")
	complexities = stringSet("simple", "moderate", "complex")
	approaches   = stringSet("single_task", "sequential_workflow")
)

func stringSet(values ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

// IsValidStatus reports membership in the closed status set.
func IsValidStatus(s string) bool {
	_, member := statuses[s]
	return member
}

// IsValidPriority reports membership in the closed priority set.
func IsValidPriority(s string) bool {
	_, member := priorities[s]
	return member
}

// IsValidComplexity reports membership in the closed complexity set.
func IsValidComplexity(s string) bool {
	_, member := complexities[s]
	return member
}

// IsValidApproach reports membership in the closed approach set.
func IsValidApproach(s string) bool {
	_, member := approaches[s]
	return member
}
