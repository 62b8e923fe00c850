// Package monitor provides the auto-progression monitor: a background ticker
// that advances idle workflows without an explicit caller-triggered step.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/orchestrd/internal/workflow"
)

// Monitor periodically scans all active workflows and advances any that have
// been idle past the threshold. One bad workflow never blocks the others: per
// workflow errors are logged and the sweep continues.
//
// Thread Safety: Start and Stop are safe for concurrent use; the running
// state is protected by a mutex.
type Monitor struct {
	interval      time.Duration
	idleThreshold time.Duration
	engine        *workflow.Store
	logger        *zap.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}

	// now is swappable for idle-threshold tests.
	now func() time.Time
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithInterval sets the tick interval. Defaults to 5 seconds.
func WithInterval(interval time.Duration) Option {
	return func(m *Monitor) {
		m.interval = interval
	}
}

// WithIdleThreshold sets how long a workflow must be idle before the monitor
// advances it. Defaults to 10 seconds.
func WithIdleThreshold(threshold time.Duration) Option {
	return func(m *Monitor) {
		m.idleThreshold = threshold
	}
}

// New creates a monitor over the given engine. It does not start
// automatically; call Start.
func New(engine *workflow.Store, logger *zap.Logger, opts ...Option) (*Monitor, error) {
	if engine == nil {
		return nil, fmt.Errorf("workflow engine cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	m := &Monitor{
		interval:      5 * time.Second,
		idleThreshold: 10 * time.Second,
		engine:        engine,
		logger:        logger,
		stopCh:        make(chan struct{}),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Start begins the background sweep loop. Calling Start on a running monitor
// returns an error without starting a second goroutine.
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("monitor is already running")
	}
	m.stopCh = make(chan struct{})
	m.running = true

	m.logger.Info("auto-progression monitor started",
		zap.Duration("interval", m.interval),
		zap.Duration("idle_threshold", m.idleThreshold),
	)

	go m.run()
	return nil
}

// Stop signals the sweep loop to exit. Stopping a stopped monitor is a no-op.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}
	m.logger.Info("stopping auto-progression monitor")
	m.running = false
	close(m.stopCh)
	return nil
}

func (m *Monitor) run() {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("monitor goroutine panicked, recovering",
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			m.mu.Lock()
			m.running = false
			m.mu.Unlock()
		}
	}()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.safeTick()
		case <-m.stopCh:
			m.logger.Debug("monitor received stop signal")
			return
		}
	}
}

func (m *Monitor) safeTick() {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("monitor tick panicked, continuing",
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), m.interval)
	defer cancel()
	m.tick(ctx)
}

// tick performs one best-effort sweep over all active workflows.
func (m *Monitor) tick(ctx context.Context) {
	for _, id := range m.engine.ActiveIDs() {
		m.advanceIfIdle(ctx, id)
	}
}

// advanceIfIdle advances a single workflow when it is not currently being
// advanced by a concurrent call and has been idle past the threshold. The
// last-activity timestamp is refreshed regardless of the advancement outcome.
func (m *Monitor) advanceIfIdle(ctx context.Context, id string) {
	last, found := m.engine.LastActivity(id)
	if found && m.now().Sub(last) <= m.idleThreshold {
		return
	}

	if !m.engine.TryBeginExecution(id) {
		m.logger.Debug("workflow busy, skipping", zap.String("workflow_id", id))
		return
	}
	defer m.engine.EndExecution(id)

	advanced, err := m.engine.AutoAdvance(ctx, id)
	m.engine.TouchActivity(id)
	if err != nil {
		m.logger.Error("auto-advancement failed",
			zap.String("workflow_id", id),
			zap.Error(err),
		)
		return
	}
	if advanced {
		m.logger.Info("workflow auto-advanced", zap.String("workflow_id", id))
	}
}
