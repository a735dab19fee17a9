package services

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"bintunet/internal/core/domain"
	"bintunet/internal/core/ports"
	"bintunet/pkg/retry"
	"bintunet/pkg/tracing"
)

// StoreLocker serializes the read-merge-write of Save across processes that
// share one backend.
type StoreLocker interface {
	WithLock(ctx context.Context, fn func(ctx context.Context) error) error
}

// ScopedStore exposes one user's slice of a shared StreamStore. All engines
// share a single ScopedStore so that the read-merge-write in Save never
// interleaves between users.
type ScopedStore struct {
	mu      sync.Mutex
	store   ports.StreamStore
	locker  StoreLocker
	backend string
}

func NewScopedStore(store ports.StreamStore) *ScopedStore {
	return &ScopedStore{store: store, backend: "unknown"}
}

// WithBackend names the backend on store spans.
func (s *ScopedStore) WithBackend(name string) *ScopedStore {
	if name != "" {
		s.backend = name
	}
	return s
}

// WithLocker makes Save hold locker as well as the in-process mutex.
func (s *ScopedStore) WithLocker(locker StoreLocker) *ScopedStore {
	s.locker = locker
	return s
}

// Load returns the owner's streams in stored order.
func (s *ScopedStore) Load(ctx context.Context, owner domain.UserID) ([]*domain.Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, span := tracing.TraceStoreOperation(ctx, "load", s.backend, string(owner))
	defer span.End()

	all, err := s.store.LoadAll(ctx)
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, fmt.Errorf("failed to load streams: %w", err)
	}

	var owned []*domain.Stream
	for _, st := range all {
		if st != nil && st.Owner == owner {
			owned = append(owned, st)
		}
	}
	return owned, nil
}

// Save replaces the owner's records with streams and leaves every other
// user's records untouched.
func (s *ScopedStore) Save(ctx context.Context, owner domain.UserID, streams []*domain.Stream) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.locker == nil {
		return s.saveLocked(ctx, owner, streams)
	}
	return s.locker.WithLock(ctx, func(ctx context.Context) error {
		return s.saveLocked(ctx, owner, streams)
	})
}

func (s *ScopedStore) saveLocked(ctx context.Context, owner domain.UserID, streams []*domain.Stream) error {
	ctx, span := tracing.TraceStoreOperation(ctx, "save", s.backend, string(owner))
	defer span.End()

	all, err := s.store.LoadAll(ctx)
	if err != nil {
		tracing.RecordError(ctx, err)
		return fmt.Errorf("failed to load streams: %w", err)
	}

	merged := make([]*domain.Stream, 0, len(all)+len(streams))
	for _, st := range all {
		if st != nil && st.Owner != owner {
			merged = append(merged, st)
		}
	}
	for _, st := range streams {
		c := st.Clone()
		c.Owner = owner
		merged = append(merged, c)
	}

	if err := s.store.SaveAll(ctx, merged); err != nil {
		tracing.RecordError(ctx, err)
		return fmt.Errorf("failed to save streams: %w", err)
	}
	return nil
}

// snapshotWriter persists the latest registry snapshot in the background.
// Snapshots submitted while a write is in flight are coalesced; only the
// newest one is written next.
type snapshotWriter struct {
	store    *ScopedStore
	owner    domain.UserID
	retryCfg retry.Config
	observer ports.StreamObserver
	logger   *zap.SugaredLogger

	mu      sync.Mutex
	pending []*domain.Stream
	dirty   bool
	closed  bool

	saveMu sync.Mutex
	wake   chan struct{}
	done   chan struct{}
}

func newSnapshotWriter(store *ScopedStore, owner domain.UserID, retryCfg retry.Config, observer ports.StreamObserver, logger *zap.SugaredLogger) *snapshotWriter {
	w := &snapshotWriter{
		store:    store,
		owner:    owner,
		retryCfg: retryCfg,
		observer: observer,
		logger:   logger,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	go w.run()
	return w
}

// submit hands over a snapshot the caller no longer mutates.
func (w *snapshotWriter) submit(snapshot []*domain.Stream) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending = snapshot
	w.dirty = true
	if w.closed {
		return
	}
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *snapshotWriter) run() {
	defer close(w.done)
	for range w.wake {
		if err := w.flush(context.Background()); err != nil {
			w.logger.Warnw("Stream snapshot write failed", "user_id", w.owner, "error", err)
		}
	}
}

// flush writes the pending snapshot, if any. Writes are serialized so an
// older snapshot can never land after a newer one.
func (w *snapshotWriter) flush(ctx context.Context) error {
	w.saveMu.Lock()
	defer w.saveMu.Unlock()

	w.mu.Lock()
	if !w.dirty {
		w.mu.Unlock()
		return nil
	}
	snapshot := w.pending
	w.pending = nil
	w.dirty = false
	w.mu.Unlock()

	err := retry.Do(ctx, w.retryCfg, func(ctx context.Context) error {
		return w.store.Save(ctx, w.owner, snapshot)
	})
	if err == nil {
		return nil
	}

	w.observer.ObservePersistFailure()
	w.logger.Errorw("Failed to persist streams", "user_id", w.owner, "streams", len(snapshot), "error", err)

	// keep the snapshot for the next attempt unless something newer arrived
	w.mu.Lock()
	if !w.dirty {
		w.pending = snapshot
		w.dirty = true
	}
	w.mu.Unlock()
	return err
}

// close stops the background goroutine and writes whatever is still pending.
func (w *snapshotWriter) close(ctx context.Context) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.wake)
	w.mu.Unlock()

	select {
	case <-w.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return w.flush(ctx)
}
