package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"tablowatch/internal/models"
)

// Publisher publishes change records to NATS, one subject per change type.
type Publisher struct {
	conn    *nats.Conn
	subject string
	logger  *logrus.Logger
}

// NewPublisher connects to url. Records go to "<subject>.<type>".
func NewPublisher(url, subject string, maxReconnect int, reconnectWait time.Duration, logger *logrus.Logger) (*Publisher, error) {
	opts := []nats.Option{
		nats.Name("tablowatch"),
		nats.MaxReconnects(maxReconnect),
		nats.ReconnectWait(reconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Warnf("NATS disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Infof("NATS reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Warn("NATS connection closed")
		}),
	}

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	logger.Infof("Connected to NATS at %s", url)

	return &Publisher{conn: conn, subject: subject, logger: logger}, nil
}

// Subject returns the subject a record of the given type is published on.
func Subject(base string, kind models.ChangeKind) string {
	base = strings.TrimSuffix(base, ".")
	if base == "" {
		return string(kind)
	}
	return base + "." + string(kind)
}

// Publish sends rec and flushes so that delivery errors surface here.
func (p *Publisher) Publish(ctx context.Context, rec *models.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	subject := Subject(p.subject, rec.Type)
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to NATS: %w", err)
	}
	if err := p.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("failed to flush NATS connection: %w", err)
	}

	p.logger.Debugf("Published %s record for table %s on %s", rec.Type, rec.TableID, subject)
	return nil
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	if p.conn == nil {
		return
	}
	if err := p.conn.Drain(); err != nil {
		p.logger.Warnf("Failed to drain NATS connection: %v", err)
		p.conn.Close()
	}
}

// Conn returns the underlying connection, for script bindings.
func (p *Publisher) Conn() *nats.Conn {
	return p.conn
}
