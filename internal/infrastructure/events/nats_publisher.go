package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"bintunet/internal/core/domain"
	"bintunet/internal/core/ports"
)

// Conn is the part of *nats.Conn the publisher needs.
type Conn interface {
	Publish(subject string, data []byte) error
	IsConnected() bool
	Close()
}

// NATSPublisher publishes events to <prefix>.<user_id>.<event type>.
type NATSPublisher struct {
	conn   Conn
	prefix string
	logger *zap.SugaredLogger
}

// ConnectNATS dials the server with reconnect handling logged through logger.
func ConnectNATS(url string, logger *zap.SugaredLogger) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name("bintunet"),
		nats.Timeout(10 * time.Second),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Warnw("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Infow("NATS reconnected", "url", nc.ConnectedUrl())
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return nc, nil
}

func NewNATSPublisher(conn Conn, prefix string, logger *zap.SugaredLogger) *NATSPublisher {
	return &NATSPublisher{
		conn:   conn,
		prefix: strings.TrimSuffix(prefix, "."),
		logger: logger,
	}
}

// Subject returns the subject an event is published on.
func (p *NATSPublisher) Subject(event domain.StreamEvent) string {
	return fmt.Sprintf("%s.%s.%s", p.prefix, event.UserID, strings.TrimPrefix(string(event.Type), "stream."))
}

func (p *NATSPublisher) Publish(ctx context.Context, event domain.StreamEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	subject := p.Subject(event)
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// Healthy reports whether the connection is up.
func (p *NATSPublisher) Healthy(context.Context) error {
	if !p.conn.IsConnected() {
		return fmt.Errorf("nats connection is down")
	}
	return nil
}

func (p *NATSPublisher) Close() {
	p.conn.Close()
}

var _ ports.EventPublisher = (*NATSPublisher)(nil)
