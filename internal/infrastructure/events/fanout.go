package events

import (
	"context"
	"errors"

	"bintunet/internal/core/domain"
	"bintunet/internal/core/ports"
)

// Fanout publishes every event to each of its publishers in order. A failing
// publisher does not stop delivery to the rest.
type Fanout struct {
	publishers []ports.EventPublisher
}

func NewFanout(publishers ...ports.EventPublisher) *Fanout {
	return &Fanout{publishers: publishers}
}

// Add appends a publisher. Not safe to call once events are flowing.
func (f *Fanout) Add(p ports.EventPublisher) {
	f.publishers = append(f.publishers, p)
}

func (f *Fanout) Publish(ctx context.Context, event domain.StreamEvent) error {
	var errs []error
	for _, p := range f.publishers {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ ports.EventPublisher = (*Fanout)(nil)
