package ports

import (
	"context"
	"time"

	"bintunet/internal/core/domain"
)

// StreamStore is the durable, unscoped stream collection. Callers own the
// per-user filtering and the merge of other users' records.
type StreamStore interface {
	LoadAll(ctx context.Context) ([]*domain.Stream, error)
	SaveAll(ctx context.Context, streams []*domain.Stream) error
}

type SessionStore interface {
	Save(ctx context.Context, record *domain.SessionRecord, ttl time.Duration) error
	Get(ctx context.Context, id domain.SessionID) (*domain.SessionRecord, error)
	Delete(ctx context.Context, id domain.SessionID) error
}
