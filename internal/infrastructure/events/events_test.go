package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"bintunet/internal/core/domain"
	"bintunet/pkg/circuitbreaker"
)

type stubPublisher struct {
	events []domain.StreamEvent
	err    error
}

func (s *stubPublisher) Publish(_ context.Context, event domain.StreamEvent) error {
	s.events = append(s.events, event)
	return s.err
}

type stubConn struct {
	subjects  []string
	payloads  [][]byte
	connected bool
}

func (c *stubConn) Publish(subject string, data []byte) error {
	c.subjects = append(c.subjects, subject)
	c.payloads = append(c.payloads, data)
	return nil
}

func (c *stubConn) IsConnected() bool { return c.connected }
func (c *stubConn) Close()            { c.connected = false }

func TestFanout_DeliversToAllAndJoinsErrors(t *testing.T) {
	failing := &stubPublisher{err: errors.New("broker down")}
	healthy := &stubPublisher{}
	fanout := NewFanout(failing)
	fanout.Add(healthy)

	event := domain.StreamEvent{Type: domain.EventStreamCreated, UserID: "1", StreamID: "stream_a"}
	err := fanout.Publish(context.Background(), event)

	assert.ErrorContains(t, err, "broker down")
	require.Len(t, healthy.events, 1)
	assert.Equal(t, event, healthy.events[0])
}

func TestNATSPublisher_SubjectAndPayload(t *testing.T) {
	conn := &stubConn{connected: true}
	pub := NewNATSPublisher(conn, "bintunet.streams.", zap.NewNop().Sugar())

	event := domain.StreamEvent{Type: domain.EventStreamStatus, UserID: "1", StreamID: "stream_a"}
	require.NoError(t, pub.Publish(context.Background(), event))

	require.Len(t, conn.subjects, 1)
	assert.Equal(t, "bintunet.streams.1.status", conn.subjects[0])

	var decoded domain.StreamEvent
	require.NoError(t, json.Unmarshal(conn.payloads[0], &decoded))
	assert.Equal(t, domain.StreamID("stream_a"), decoded.StreamID)

	assert.NoError(t, pub.Healthy(context.Background()))
	pub.Close()
	assert.Error(t, pub.Healthy(context.Background()))
}

func TestGuarded_FailsFastWhileOpen(t *testing.T) {
	broker := &stubPublisher{err: errors.New("broker down")}
	breaker := circuitbreaker.New("redis", circuitbreaker.Config{
		FailureThreshold: 2,
		SuccessThreshold: 1,
		Timeout:          time.Minute,
	}, clockwork.NewFakeClock())
	guarded := NewGuarded(broker, breaker)

	event := domain.StreamEvent{Type: domain.EventStreamUpdated, UserID: "1"}
	_ = guarded.Publish(context.Background(), event)
	_ = guarded.Publish(context.Background(), event)

	err := guarded.Publish(context.Background(), event)
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.Len(t, broker.events, 2)
}
