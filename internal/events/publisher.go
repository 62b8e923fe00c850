// Package events publishes workflow lifecycle events to NATS. Publishing is
// best effort: the engine never blocks or fails an operation because an event
// could not be delivered.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// SubjectPrefix namespaces all lifecycle subjects, e.g.
// orchestrd.workflow.created.
const SubjectPrefix = "orchestrd"

// Config holds the NATS connection settings.
type Config struct {
	// URL is the NATS server address.
	URL string
	// MaxReconnects bounds reconnection attempts after a dropped connection.
	MaxReconnects int
	// ReconnectWait is the delay between reconnection attempts.
	ReconnectWait time.Duration
}

// DefaultConfig returns settings suitable for a local NATS server.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		MaxReconnects: 5,
		ReconnectWait: 1 * time.Second,
	}
}

// Publisher sends lifecycle events to NATS. A nil Publisher is safe to use;
// every method on it is a no-op, so callers can wire it unconditionally.
type Publisher struct {
	conn   *nats.Conn
	logger *zap.Logger
}

// Connect dials NATS and returns a publisher. The connection retries in the
// background if the server is not yet reachable.
func Connect(cfg Config, logger *zap.Logger) (*Publisher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	nc, err := nats.Connect(cfg.URL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.URL, err)
	}

	logger.Info("connected to NATS", zap.String("url", cfg.URL))
	return &Publisher{conn: nc, logger: logger}, nil
}

// Publish marshals the payload and sends it on the prefixed subject. Failures
// are logged and swallowed.
func (p *Publisher) Publish(ctx context.Context, subject string, payload any) {
	if p == nil || p.conn == nil {
		return
	}

	data, err := json.Marshal(envelope{
		Subject:   subject,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	})
	if err != nil {
		p.logger.Warn("failed to marshal lifecycle event",
			zap.String("subject", subject),
			zap.Error(err),
		)
		return
	}

	full := SubjectPrefix + "." + subject
	if err := p.conn.Publish(full, data); err != nil {
		p.logger.Warn("failed to publish lifecycle event",
			zap.String("subject", full),
			zap.Error(err),
		)
		return
	}

	p.logger.Debug("lifecycle event published", zap.String("subject", full))
}

// Close drains and closes the connection. Safe on a nil publisher.
func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	p.conn.Close()
}

// envelope is the wire format for lifecycle events.
type envelope struct {
	Subject   string    `json:"subject"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}
