package workflow

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/orchestrd/internal/orcerr"
	"github.com/fyrsmithlabs/orchestrd/internal/validate"
)

const instrumentationName = "github.com/fyrsmithlabs/orchestrd/internal/workflow"

// EventSink receives best-effort lifecycle events. Implementations must not
// block; failures are the sink's problem, never the engine's.
type EventSink interface {
	Publish(ctx context.Context, subject string, payload any)
}

// Config configures the workflow store.
type Config struct {
	// MaxSteps caps the task count of a single workflow (default: 20).
	MaxSteps int

	// DefaultTaskMinutes is the per-task estimate used when a task carries
	// no parseable duration (default: 30).
	DefaultTaskMinutes int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxSteps:           20,
		DefaultTaskMinutes: 30,
	}
}

// Store owns workflow definitions and advances them. A per-workflow
// "executing" marker makes monitor ticks and caller-invoked advancement of
// the same workflow mutually exclusive; operations on different workflows
// proceed independently.
type Store struct {
	cfg    Config
	logger *zap.Logger
	sink   EventSink

	tracer         trace.Tracer
	meter          metric.Meter
	createCounter  metric.Int64Counter
	advanceCounter metric.Int64Counter

	mu           sync.RWMutex
	workflows    map[string]*Definition
	executing    map[string]bool
	lastActivity map[string]time.Time

	// now is swappable for idle-threshold tests.
	now func() time.Time
}

// NewStore creates an empty workflow store.
func NewStore(cfg Config, logger *zap.Logger) *Store {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = DefaultConfig().MaxSteps
	}
	if cfg.DefaultTaskMinutes <= 0 {
		cfg.DefaultTaskMinutes = DefaultConfig().DefaultTaskMinutes
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Store{
		cfg:          cfg,
		logger:       logger,
		tracer:       otel.Tracer(instrumentationName),
		meter:        otel.Meter(instrumentationName),
		workflows:    make(map[string]*Definition),
		executing:    make(map[string]bool),
		lastActivity: make(map[string]time.Time),
		now:          time.Now,
	}
	s.initMetrics()
	return s
}

func (s *Store) initMetrics() {
	var err error

	s.createCounter, err = s.meter.Int64Counter(
		"orchestrd.workflow.creates_total",
		metric.WithDescription("Total number of workflows created"),
		metric.WithUnit("{workflow}"),
	)
	if err != nil {
		s.logger.Warn("failed to create workflow create counter", zap.Error(err))
	}

	s.advanceCounter, err = s.meter.Int64Counter(
		"orchestrd.workflow.advancements_total",
		metric.WithDescription("Total number of workflow advancement attempts"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		s.logger.Warn("failed to create workflow advance counter", zap.Error(err))
	}
}

// SetEventSink attaches an optional lifecycle event sink.
func (s *Store) SetEventSink(sink EventSink) {
	s.sink = sink
}

func (s *Store) publish(ctx context.Context, subject string, payload any) {
	if s.sink != nil {
		s.sink.Publish(ctx, subject, payload)
	}
}

// NewID allocates a fresh workflow identifier.
func NewID() string {
	return "wf_" + uuid.New().String()
}

// Create builds a workflow for the objective by invoking the task generator,
// falling back to a complexity-appropriate template when the generator is
// absent, fails, or returns malformed data.
func (s *Store) Create(ctx context.Context, objective, complexity string, gen Generator) (Definition, error) {
	ctx, span := s.tracer.Start(ctx, "workflow.create")
	defer span.End()

	if r := validate.Content(objective); !r.OK {
		return Definition{}, orcerr.Wrap(orcerr.CodeInvalidInput, "invalid objective", r.Err).
			With("field", "objective")
	}
	if complexity == "" {
		complexity = HeuristicClassification(objective).Complexity
	}
	if !validate.IsValidComplexity(complexity) {
		return Definition{}, orcerr.Newf(orcerr.CodeInvalidInput, "invalid complexity %q", complexity).
			With("field", "complexity").
			With("value", complexity)
	}

	tasks, usedFallback := generateTasks(ctx, gen, objective, complexity)
	if usedFallback && gen != nil {
		s.logger.Warn("task generator unavailable, using template",
			zap.String("complexity", complexity),
		)
	}
	if len(tasks) > s.cfg.MaxSteps {
		return Definition{}, orcerr.Newf(orcerr.CodeInvalidInput,
			"workflow has %d tasks, maximum is %d", len(tasks), s.cfg.MaxSteps).
			With("task_count", len(tasks))
	}

	// Clone on the way in: a generator that retains its slice must not be
	// able to mutate store-owned state afterwards.
	owned := make([]Task, len(tasks))
	id := NewID()
	totalMinutes := 0
	for i := range tasks {
		owned[i] = tasks[i].clone()
		if owned[i].ID == "" {
			owned[i].ID = fmt.Sprintf("step-%d", i+1)
		}
		totalMinutes += parseDurationMinutes(owned[i].EstimatedDuration, s.cfg.DefaultTaskMinutes)
	}

	approach := ApproachSingleTask
	if len(owned) > 1 {
		approach = ApproachSequentialWorkflow
	}

	now := s.now()
	def := &Definition{
		ID:    id,
		Title: title(objective),
		Tasks: owned,
		Metadata: Metadata{
			Complexity: complexity,
			Approach:   approach,
			Request:    objective,
			CreatedAt:  now,
		},
		EstimatedDuration: formatMinutes(totalMinutes),
	}

	s.mu.Lock()
	s.workflows[id] = def
	s.lastActivity[id] = now
	s.mu.Unlock()

	if s.createCounter != nil {
		s.createCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("complexity", complexity),
			attribute.Bool("fallback_template", usedFallback),
		))
	}
	span.SetAttributes(attribute.String("workflow_id", id))

	s.logger.Info("workflow created",
		zap.String("workflow_id", id),
		zap.Int("task_count", len(tasks)),
		zap.String("complexity", complexity),
		zap.String("approach", approach),
	)

	s.publish(ctx, "workflow.created", def.clone())
	return def.clone(), nil
}

func title(objective string) string {
	const max = 80
	if len(objective) <= max {
		return objective
	}
	// Back up to a rune boundary so the cut never splits a multibyte rune.
	cut := max - 3
	for cut > 0 && !utf8.RuneStart(objective[cut]) {
		cut--
	}
	return objective[:cut] + "..."
}

// Get returns a copy of the workflow, or CodeWorkflowNotFound.
func (s *Store) Get(id string) (Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	def, found := s.workflows[id]
	if !found {
		return Definition{}, orcerr.Newf(orcerr.CodeWorkflowNotFound, "workflow %s not found", id).
			With("workflow_id", id)
	}
	return def.clone(), nil
}

// BindSession records the owning session on the workflow context.
func (s *Store) BindSession(id, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	def, found := s.workflows[id]
	if !found {
		return orcerr.Newf(orcerr.CodeWorkflowNotFound, "workflow %s not found", id).
			With("workflow_id", id)
	}
	def.Context.SessionID = sessionID
	return nil
}

// NextExecutableTask returns the task at the cursor when all of its declared
// dependencies are satisfied, nil when the cursor is at the end or a
// dependency is unmet.
//
// A dependency is satisfied when some successful history entry's result
// contains the dependency string as a substring. The loose match is kept
// deliberately for compatibility with previously recorded results; see
// DESIGN.md before changing it.
func (s *Store) NextExecutableTask(id string) (*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	def, found := s.workflows[id]
	if !found {
		return nil, orcerr.Newf(orcerr.CodeWorkflowNotFound, "workflow %s not found", id).
			With("workflow_id", id)
	}
	return nextExecutable(def), nil
}

func nextExecutable(def *Definition) *Task {
	if def.IsCompleted || def.CurrentTaskIndex >= len(def.Tasks) {
		return nil
	}
	candidate := def.Tasks[def.CurrentTaskIndex]
	for _, dep := range candidate.Dependencies {
		if !dependencySatisfied(def.Context.History, dep) {
			return nil
		}
	}
	t := candidate.clone()
	return &t
}

func dependencySatisfied(history []HistoryEntry, dep string) bool {
	for _, entry := range history {
		if entry.Success && strings.Contains(entry.Result, dep) {
			return true
		}
	}
	return false
}

// MarkCompleted records a caller-driven advancement attempt. The history
// entry is always appended; on success the cursor advances by one and the
// workflow completes once the cursor reaches the end. Failed steps are
// retryable by invoking MarkCompleted again with success=true once
// remediated.
//
// The call takes the per-workflow executing marker for its duration, so a
// caller completion and a monitor pass over the same workflow never
// interleave; a contended call fails with CodeOperationFailed and is
// retryable.
func (s *Store) MarkCompleted(ctx context.Context, id, result string, success bool) (Definition, error) {
	if !s.TryBeginExecution(id) {
		return Definition{}, orcerr.Newf(orcerr.CodeOperationFailed,
			"workflow %s is being advanced concurrently", id).
			With("workflow_id", id)
	}
	defer s.EndExecution(id)
	return s.markCompleted(ctx, id, result, success, false)
}

func (s *Store) markCompleted(ctx context.Context, id, result string, success, auto bool) (Definition, error) {
	ctx, span := s.tracer.Start(ctx, "workflow.mark_completed")
	defer span.End()
	span.SetAttributes(
		attribute.String("workflow_id", id),
		attribute.Bool("success", success),
		attribute.Bool("auto_executed", auto),
	)

	s.mu.Lock()
	def, found := s.workflows[id]
	if !found {
		s.mu.Unlock()
		return Definition{}, orcerr.Newf(orcerr.CodeWorkflowNotFound, "workflow %s not found", id).
			With("workflow_id", id)
	}
	if def.IsCompleted {
		s.mu.Unlock()
		return Definition{}, orcerr.Newf(orcerr.CodeOperationFailed,
			"workflow %s is already completed", id).
			With("workflow_id", id)
	}
	out := s.advanceLocked(def, id, result, success, auto)
	s.mu.Unlock()

	s.recordAdvancement(ctx, out, success, auto)
	return out, nil
}

// advanceLocked appends the history entry and moves the cursor on success.
// Callers hold s.mu for writing.
func (s *Store) advanceLocked(def *Definition, id, result string, success, auto bool) Definition {
	now := s.now()
	def.Context.History = append(def.Context.History, HistoryEntry{
		TaskIndex:    def.CurrentTaskIndex,
		Result:       result,
		Timestamp:    now,
		CompletedAt:  now,
		Success:      success,
		AutoExecuted: auto,
	})
	if success {
		def.CurrentTaskIndex++
		if def.CurrentTaskIndex >= len(def.Tasks) {
			def.IsCompleted = true
		}
	}
	s.lastActivity[id] = now
	return def.clone()
}

func (s *Store) recordAdvancement(ctx context.Context, out Definition, success, auto bool) {
	if s.advanceCounter != nil {
		s.advanceCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.Bool("success", success),
			attribute.Bool("auto_executed", auto),
		))
	}

	s.logger.Debug("workflow advancement recorded",
		zap.String("workflow_id", out.ID),
		zap.Int("cursor", out.CurrentTaskIndex),
		zap.Bool("success", success),
		zap.Bool("auto_executed", auto),
		zap.Bool("completed", out.IsCompleted),
	)

	if out.IsCompleted {
		s.publish(ctx, "workflow.completed", out)
	} else if success {
		s.publish(ctx, "workflow.advanced", out)
	}
}

// AutoAdvance performs one monitor-driven advancement step. The dependency
// gate is re-checked and the advancement applied inside a single critical
// section, so the recorded entry always belongs to the task whose gate was
// checked. It is a no-op on completed workflows and on workflows whose next
// task has unmet dependencies. Returns whether the cursor moved.
func (s *Store) AutoAdvance(ctx context.Context, id string) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "workflow.auto_advance")
	defer span.End()
	span.SetAttributes(attribute.String("workflow_id", id))

	s.mu.Lock()
	def, found := s.workflows[id]
	if !found {
		s.mu.Unlock()
		return false, orcerr.Newf(orcerr.CodeWorkflowNotFound, "workflow %s not found", id).
			With("workflow_id", id)
	}
	next := nextExecutable(def)
	if next == nil {
		s.mu.Unlock()
		return false, nil
	}
	result := fmt.Sprintf("Auto-executed: %s", next.Content)
	out := s.advanceLocked(def, id, result, true, true)
	s.mu.Unlock()

	s.recordAdvancement(ctx, out, true, true)
	return true, nil
}

// Progress reports completion counts and the estimated time remaining, using
// the default per-task estimate for every uncompleted task.
func (s *Store) Progress(id string) (Progress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	def, found := s.workflows[id]
	if !found {
		return Progress{}, orcerr.Newf(orcerr.CodeWorkflowNotFound, "workflow %s not found", id).
			With("workflow_id", id)
	}

	total := len(def.Tasks)
	completed := def.CurrentTaskIndex
	if completed > total {
		completed = total
	}

	p := Progress{
		CompletedTasks: completed,
		TotalTasks:     total,
	}
	if total > 0 {
		p.ProgressPercentage = int(math.Round(100 * float64(completed) / float64(total)))
	}
	if !def.IsCompleted && def.CurrentTaskIndex < total {
		p.CurrentTaskContent = def.Tasks[def.CurrentTaskIndex].Content
	}
	p.EstimatedTimeRemaining = formatMinutes((total - completed) * s.cfg.DefaultTaskMinutes)
	return p, nil
}

// Validate checks a definition structurally, collecting all violations
// rather than failing fast. A dependency is resolvable when some earlier
// task's content contains it as a substring or some earlier task's id equals
// it.
func (s *Store) Validate(def Definition) ValidationResult {
	var errs []string

	if len(def.Tasks) == 0 {
		errs = append(errs, "workflow has no tasks")
	}
	if len(def.Tasks) > s.cfg.MaxSteps {
		errs = append(errs, fmt.Sprintf("workflow has %d tasks, maximum is %d", len(def.Tasks), s.cfg.MaxSteps))
	}

	for i, t := range def.Tasks {
		if strings.TrimSpace(t.Content) == "" {
			errs = append(errs, fmt.Sprintf("task %d has empty content", i))
		}
		for _, dep := range t.Dependencies {
			if !dependencyResolvable(def.Tasks[:i], dep) {
				errs = append(errs, fmt.Sprintf("task %d dependency %q does not resolve to an earlier task", i, dep))
			}
		}
	}

	return ValidationResult{OK: len(errs) == 0, Errors: errs}
}

func dependencyResolvable(earlier []Task, dep string) bool {
	for _, t := range earlier {
		if t.ID == dep || strings.Contains(t.Content, dep) {
			return true
		}
	}
	return false
}

// MetricsReport aggregates across all tracked workflows. Average completion
// time is computed only over completed workflows with a non-empty history, as
// last entry CompletedAt minus first entry Timestamp.
func (s *Store) MetricsReport() Metrics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m := Metrics{ComplexityDistribution: make(map[string]int)}
	m.Total = len(s.workflows)

	taskSum := 0
	var completionSum time.Duration
	completionCount := 0

	for _, def := range s.workflows {
		taskSum += len(def.Tasks)
		m.ComplexityDistribution[def.Metadata.Complexity]++
		if def.IsCompleted {
			m.Completed++
			if h := def.Context.History; len(h) > 0 {
				completionSum += h[len(h)-1].CompletedAt.Sub(h[0].Timestamp)
				completionCount++
			}
		} else {
			m.Pending++
		}
	}

	if m.Total > 0 {
		m.AvgTasksPerWorkflow = float64(taskSum) / float64(m.Total)
	}
	if completionCount > 0 {
		m.AvgCompletionMinutes = completionSum.Minutes() / float64(completionCount)
	}
	return m
}

// TryBeginExecution sets the per-workflow executing marker. Returns false
// when the workflow is already being advanced by a concurrent call.
func (s *Store) TryBeginExecution(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.executing[id] {
		return false
	}
	s.executing[id] = true
	return true
}

// EndExecution clears the executing marker.
func (s *Store) EndExecution(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.executing, id)
}

// ActiveIDs returns the ids of all workflows that are not completed.
func (s *Store) ActiveIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	for id, def := range s.workflows {
		if !def.IsCompleted {
			out = append(out, id)
		}
	}
	return out
}

// LastActivity returns the time of the last advancement attempt (or creation)
// for the workflow.
func (s *Store) LastActivity(id string) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ts, found := s.lastActivity[id]
	return ts, found
}

// TouchActivity refreshes the last-activity timestamp.
func (s *Store) TouchActivity(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, found := s.workflows[id]; found {
		s.lastActivity[id] = s.now()
	}
}

// Export returns copies of all workflows for snapshot persistence.
func (s *Store) Export() []Definition {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Definition, 0, len(s.workflows))
	for _, def := range s.workflows {
		out = append(out, def.clone())
	}
	return out
}

// Import replaces the store contents. Callers validate entities beforehand.
func (s *Store) Import(defs []Definition) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.workflows = make(map[string]*Definition, len(defs))
	s.executing = make(map[string]bool)
	s.lastActivity = make(map[string]time.Time, len(defs))
	now := s.now()
	for i := range defs {
		d := defs[i].clone()
		s.workflows[d.ID] = &d
		s.lastActivity[d.ID] = now
	}
}
