package ports

import (
	"context"
	"time"

	"bintunet/internal/core/domain"
)

// IdentityProvider resolves credentials to a user profile.
type IdentityProvider interface {
	Authenticate(ctx context.Context, identifier, secret, accessCode string) (*domain.UserProfile, error)
}

// StreamEngine is the per-user stream registry and lifecycle state machine.
type StreamEngine interface {
	User() domain.UserProfile
	Create(ctx context.Context, draft domain.StreamDraft) (*domain.Stream, error)
	Update(ctx context.Context, id domain.StreamID, patch domain.StreamPatch) error
	Delete(ctx context.Context, id domain.StreamID) error
	Get(ctx context.Context, id domain.StreamID) (*domain.Stream, bool)
	List(ctx context.Context) []*domain.Stream
	Start(ctx context.Context, id domain.StreamID) error
	Stop(ctx context.Context, id domain.StreamID) error
	GetMetrics(ctx context.Context, id domain.StreamID) (*domain.StreamMetrics, error)
	Tick(ctx context.Context)
	Run(ctx context.Context)
	Flush(ctx context.Context) error
	Close(ctx context.Context) error
}

type EventPublisher interface {
	Publish(ctx context.Context, event domain.StreamEvent) error
}

// StreamObserver receives engine-level measurements. Implemented by the
// Prometheus collector.
type StreamObserver interface {
	ObserveTransition(to domain.StreamStatus)
	ObserveRejection(reason string)
	ObserveStatusCounts(userID domain.UserID, counts map[domain.StreamStatus]int)
	ObserveTick(duration time.Duration)
	ObservePersistFailure()
	SetActiveSessions(n int)
}
