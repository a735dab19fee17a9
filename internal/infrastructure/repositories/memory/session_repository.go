package memory

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"bintunet/internal/core/domain"
	"bintunet/internal/core/ports"
)

type sessionEntry struct {
	record    domain.SessionRecord
	expiresAt time.Time
}

// MemorySessionRepository stores session records with a TTL.
type MemorySessionRepository struct {
	sessions map[domain.SessionID]sessionEntry
	clock    clockwork.Clock
	mu       sync.Mutex
}

func NewMemorySessionRepository(clock clockwork.Clock) *MemorySessionRepository {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemorySessionRepository{
		sessions: make(map[domain.SessionID]sessionEntry),
		clock:    clock,
	}
}

func (r *MemorySessionRepository) Save(ctx context.Context, record *domain.SessionRecord, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[record.ID] = sessionEntry{
		record:    *record,
		expiresAt: r.clock.Now().Add(ttl),
	}
	return nil
}

func (r *MemorySessionRepository) Get(ctx context.Context, id domain.SessionID) (*domain.SessionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	if !r.clock.Now().Before(entry.expiresAt) {
		delete(r.sessions, id)
		return nil, domain.ErrSessionNotFound
	}
	record := entry.record
	return &record, nil
}

func (r *MemorySessionRepository) Delete(ctx context.Context, id domain.SessionID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, id)
	return nil
}

var _ ports.SessionStore = (*MemorySessionRepository)(nil)
