package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"bintunet/internal/core/domain"
	"bintunet/internal/core/ports"
)

const (
	eventBufferSize     = 256
	eventPublishTimeout = 5 * time.Second
)

// eventDispatcher delivers engine events to a publisher in order, off the
// engine lock. When the buffer is full the event is dropped.
type eventDispatcher struct {
	publisher ports.EventPublisher
	logger    *zap.SugaredLogger
	events    chan domain.StreamEvent
	done      chan struct{}
}

func newEventDispatcher(publisher ports.EventPublisher, logger *zap.SugaredLogger) *eventDispatcher {
	d := &eventDispatcher{
		publisher: publisher,
		logger:    logger,
		events:    make(chan domain.StreamEvent, eventBufferSize),
		done:      make(chan struct{}),
	}
	go d.run()
	return d
}

// dispatch must not be called after close.
func (d *eventDispatcher) dispatch(event domain.StreamEvent) {
	select {
	case d.events <- event:
	default:
		d.logger.Warnw("Event buffer full, dropping event",
			"type", event.Type,
			"user_id", event.UserID,
			"stream_id", event.StreamID,
		)
	}
}

func (d *eventDispatcher) run() {
	defer close(d.done)
	for event := range d.events {
		ctx, cancel := context.WithTimeout(context.Background(), eventPublishTimeout)
		if err := d.publisher.Publish(ctx, event); err != nil {
			d.logger.Warnw("Failed to publish event", "type", event.Type, "user_id", event.UserID, "error", err)
		}
		cancel()
	}
}

// close drains the buffer and waits for the last publish to finish.
func (d *eventDispatcher) close() {
	close(d.events)
	<-d.done
}

// NoopPublisher discards events.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, domain.StreamEvent) error { return nil }

// NoopObserver discards measurements.
type NoopObserver struct{}

func (NoopObserver) ObserveTransition(domain.StreamStatus)                          {}
func (NoopObserver) ObserveRejection(string)                                        {}
func (NoopObserver) ObserveStatusCounts(domain.UserID, map[domain.StreamStatus]int) {}
func (NoopObserver) ObserveTick(time.Duration)                                      {}
func (NoopObserver) ObservePersistFailure()                                         {}
func (NoopObserver) SetActiveSessions(int)                                          {}
