// Package orchestrator wires the stores, the auto-progression monitor, and
// the lifecycle event publisher into one object the transports hand requests
// to. It is the only place the engine's components learn about each other.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/orchestrd/internal/config"
	"github.com/fyrsmithlabs/orchestrd/internal/events"
	"github.com/fyrsmithlabs/orchestrd/internal/monitor"
	"github.com/fyrsmithlabs/orchestrd/internal/preserve"
	"github.com/fyrsmithlabs/orchestrd/internal/session"
	"github.com/fyrsmithlabs/orchestrd/internal/task"
	"github.com/fyrsmithlabs/orchestrd/internal/workflow"
)

// Orchestrator owns every store. All cross-store coordination (session
// binding, subtask bookkeeping, snapshotting) goes through it rather than
// through globals.
type Orchestrator struct {
	cfg    *config.Config
	logger *zap.Logger

	Tasks     *task.Store
	Sessions  *session.Store
	Workflows *workflow.Store
	Preserved *preserve.Manager

	monitor   *monitor.Monitor
	publisher *events.Publisher

	generator  workflow.Generator
	classifier workflow.Classifier
}

// New constructs the orchestrator and its stores from configuration. Nothing
// starts running until Start is called.
func New(cfg *config.Config, logger *zap.Logger) (*Orchestrator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	o := &Orchestrator{
		cfg:    cfg,
		logger: logger,
		Tasks:  task.NewStore(logger.Named("tasks")),
		Sessions: session.NewStore(session.Config{
			IdleTimeout: time.Duration(cfg.Session.IdleTimeoutMinutes) * time.Minute,
		}, logger.Named("sessions")),
		Workflows: workflow.NewStore(workflow.Config{
			MaxSteps:           cfg.Workflow.MaxSteps,
			DefaultTaskMinutes: cfg.Workflow.DefaultTaskMinutes,
		}, logger.Named("workflows")),
		Preserved: preserve.NewManager(logger.Named("preserve")),
	}

	if cfg.Monitor.Enabled {
		mon, err := monitor.New(o.Workflows, logger.Named("monitor"),
			monitor.WithInterval(time.Duration(cfg.Monitor.IntervalSeconds)*time.Second),
			monitor.WithIdleThreshold(time.Duration(cfg.Monitor.IdleThresholdSeconds)*time.Second),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create monitor: %w", err)
		}
		o.monitor = mon
	}

	return o, nil
}

// SetGenerator installs the task generator used by CreateWorkflow. A nil
// generator means the complexity-keyed fallback templates are always used.
func (o *Orchestrator) SetGenerator(gen workflow.Generator) {
	o.generator = gen
}

// SetClassifier installs the complexity classifier used by Classify. A nil
// classifier means the word-count heuristic is always used.
func (o *Orchestrator) SetClassifier(c workflow.Classifier) {
	o.classifier = c
}

// Start connects the event publisher, restores a persisted snapshot when one
// exists, and starts the auto-progression monitor.
func (o *Orchestrator) Start(ctx context.Context) error {
	if o.cfg.Events.Enabled {
		pub, err := events.Connect(events.Config{
			URL:           o.cfg.Events.URL,
			MaxReconnects: events.DefaultConfig().MaxReconnects,
			ReconnectWait: events.DefaultConfig().ReconnectWait,
		}, o.logger.Named("events"))
		if err != nil {
			// Events are best effort: log and run without them.
			o.logger.Warn("event publisher unavailable, continuing without lifecycle events",
				zap.Error(err),
			)
		} else {
			o.publisher = pub
			o.Tasks.SetEventSink(pub)
			o.Sessions.SetEventSink(pub)
			o.Workflows.SetEventSink(pub)
		}
	}

	if path := o.cfg.Snapshot.Path; path != "" {
		if _, err := os.Stat(path); err == nil {
			report, err := o.LoadSnapshot(path)
			if err != nil {
				return fmt.Errorf("failed to restore snapshot: %w", err)
			}
			if len(report.Entries) > 0 {
				o.logger.Warn("snapshot restored with quarantined entities",
					zap.Int("quarantined", len(report.Entries)),
				)
			}
		}
	}

	if o.monitor != nil {
		if err := o.monitor.Start(); err != nil {
			return err
		}
	}

	o.logger.Info("orchestrator started",
		zap.Bool("monitor", o.monitor != nil),
		zap.Bool("events", o.publisher != nil),
	)
	return nil
}

// Close stops the monitor, persists a final snapshot when configured, and
// closes the event publisher.
func (o *Orchestrator) Close() error {
	if o.monitor != nil {
		if err := o.monitor.Stop(); err != nil {
			o.logger.Warn("failed to stop monitor", zap.Error(err))
		}
	}

	var saveErr error
	if path := o.cfg.Snapshot.Path; path != "" {
		if err := o.SaveSnapshot(path); err != nil {
			o.logger.Error("failed to persist snapshot", zap.Error(err))
			saveErr = err
		}
	}

	o.publisher.Close()
	o.logger.Info("orchestrator stopped")
	return saveErr
}

// CreateWorkflow builds a workflow with the installed generator and, when a
// session is active, binds the workflow to it.
func (o *Orchestrator) CreateWorkflow(ctx context.Context, objective, complexity string) (workflow.Definition, error) {
	def, err := o.Workflows.Create(ctx, objective, complexity, o.generator)
	if err != nil {
		return workflow.Definition{}, err
	}

	if active, ok := o.Sessions.Active(); ok {
		if err := o.Workflows.BindSession(def.ID, active.ID); err != nil {
			o.logger.Warn("failed to bind workflow to active session",
				zap.String("workflow_id", def.ID),
				zap.String("session_id", active.ID),
				zap.Error(err),
			)
		} else {
			def.Context.SessionID = active.ID
			if _, err := o.Sessions.LinkWorkflow(active.ID, def.ID); err != nil {
				o.logger.Warn("failed to link workflow into session",
					zap.String("workflow_id", def.ID),
					zap.Error(err),
				)
			}
		}
	}

	return def, nil
}

// Classify runs the installed classifier with heuristic fallback.
func (o *Orchestrator) Classify(ctx context.Context, text string) workflow.Classification {
	return workflow.Classify(ctx, o.classifier, text)
}
