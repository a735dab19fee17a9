package events

import (
	"context"

	"bintunet/internal/core/domain"
	"bintunet/internal/core/ports"
	"bintunet/pkg/circuitbreaker"
)

// Guarded puts a remote publisher behind a circuit breaker so an unreachable
// broker costs one fast error per event instead of a timeout.
type Guarded struct {
	next    ports.EventPublisher
	breaker *circuitbreaker.CircuitBreaker
}

func NewGuarded(next ports.EventPublisher, breaker *circuitbreaker.CircuitBreaker) *Guarded {
	return &Guarded{next: next, breaker: breaker}
}

func (g *Guarded) Publish(ctx context.Context, event domain.StreamEvent) error {
	return g.breaker.Execute(func() error {
		return g.next.Publish(ctx, event)
	})
}

var _ ports.EventPublisher = (*Guarded)(nil)
