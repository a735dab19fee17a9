package memory

import (
	"context"
	"sync"

	"bintunet/internal/core/domain"
	"bintunet/internal/core/ports"
)

// MemoryStreamRepository keeps the stream collection in process memory.
type MemoryStreamRepository struct {
	streams []*domain.Stream
	mu      sync.RWMutex
}

func NewMemoryStreamRepository() *MemoryStreamRepository {
	return &MemoryStreamRepository{}
}

func (r *MemoryStreamRepository) LoadAll(ctx context.Context) ([]*domain.Stream, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Stream, len(r.streams))
	for i, s := range r.streams {
		out[i] = s.Clone()
	}
	return out, nil
}

func (r *MemoryStreamRepository) SaveAll(ctx context.Context, streams []*domain.Stream) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	copied := make([]*domain.Stream, len(streams))
	for i, s := range streams {
		copied[i] = s.Clone()
	}

	r.mu.Lock()
	r.streams = copied
	r.mu.Unlock()
	return nil
}

var _ ports.StreamStore = (*MemoryStreamRepository)(nil)
