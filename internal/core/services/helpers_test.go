package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"bintunet/internal/core/domain"
	"bintunet/internal/infrastructure/repositories/memory"
	"bintunet/pkg/retry"
)

type recordingObserver struct {
	mu            sync.Mutex
	transitions   []domain.StreamStatus
	rejections    []string
	counts        map[domain.StreamStatus]int
	ticks         int
	persistErrors int
	sessions      int
}

func (o *recordingObserver) ObserveTransition(to domain.StreamStatus) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.transitions = append(o.transitions, to)
}

func (o *recordingObserver) ObserveRejection(reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rejections = append(o.rejections, reason)
}

func (o *recordingObserver) ObserveStatusCounts(_ domain.UserID, counts map[domain.StreamStatus]int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.counts = counts
}

func (o *recordingObserver) ObserveTick(time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ticks++
}

func (o *recordingObserver) ObservePersistFailure() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.persistErrors++
}

func (o *recordingObserver) SetActiveSessions(n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sessions = n
}

func (o *recordingObserver) sawTransition(to domain.StreamStatus) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, s := range o.transitions {
		if s == to {
			return true
		}
	}
	return false
}

func (o *recordingObserver) tickCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.ticks
}

func (o *recordingObserver) persistFailures() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.persistErrors
}

func (o *recordingObserver) activeSessions() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sessions
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.StreamEvent
}

func (p *recordingPublisher) Publish(_ context.Context, event domain.StreamEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []domain.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.EventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

type failingStore struct{}

func (failingStore) LoadAll(context.Context) ([]*domain.Stream, error) { return nil, nil }
func (failingStore) SaveAll(context.Context, []*domain.Stream) error {
	return errors.New("disk full")
}

type brokenStore struct{}

func (brokenStore) LoadAll(context.Context) ([]*domain.Stream, error) {
	return nil, errors.New("corrupt document")
}
func (brokenStore) SaveAll(context.Context, []*domain.Stream) error { return nil }

type engineFixture struct {
	engine    *StreamEngine
	clock     *clockwork.FakeClock
	store     *memory.MemoryStreamRepository
	observer  *recordingObserver
	publisher *recordingPublisher
	deps      EngineDeps
}

func testUser(maxStreams int) domain.UserProfile {
	return domain.UserProfile{
		ID:         "1",
		Email:      "demo@bintunet.com",
		Username:   "demo",
		Tier:       domain.TierPremium,
		Credits:    150,
		MaxStreams: maxStreams,
	}
}

func testDeps(clock *clockwork.FakeClock, store *memory.MemoryStreamRepository, observer *recordingObserver, publisher *recordingPublisher) EngineDeps {
	return EngineDeps{
		Config:    DefaultEngineConfig(),
		Clock:     clock,
		Store:     NewScopedStore(store),
		Publisher: publisher,
		Observer:  observer,
		Simulator: NewTelemetrySimulator(1),
		Retry:     retry.Config{MaxAttempts: 1},
	}
}

func newEngineFixture(t *testing.T, maxStreams int) *engineFixture {
	t.Helper()

	f := &engineFixture{
		clock:     clockwork.NewFakeClock(),
		store:     memory.NewMemoryStreamRepository(),
		observer:  &recordingObserver{},
		publisher: &recordingPublisher{},
	}
	f.deps = testDeps(f.clock, f.store, f.observer, f.publisher)

	engine, err := NewStreamEngine(context.Background(), testUser(maxStreams), f.deps)
	require.NoError(t, err)
	f.engine = engine
	t.Cleanup(func() { _ = engine.Close(context.Background()) })
	return f
}

func (f *engineFixture) create(t *testing.T, title string) domain.StreamID {
	t.Helper()
	s, err := f.engine.Create(context.Background(), domain.StreamDraft{Title: title, DestinationKey: "live_" + title})
	require.NoError(t, err)
	return s.ID
}

func (f *engineFixture) status(id domain.StreamID) domain.StreamStatus {
	s, ok := f.engine.Get(context.Background(), id)
	if !ok {
		return ""
	}
	return s.Status
}

func (f *engineFixture) waitStatus(t *testing.T, id domain.StreamID, want domain.StreamStatus) {
	t.Helper()
	require.Eventually(t, func() bool {
		return f.status(id) == want
	}, time.Second, 5*time.Millisecond, "stream %s never reached %s", id, want)
}

func (f *engineFixture) runningCount() int {
	n := 0
	for _, s := range f.engine.List(context.Background()) {
		if s.Status.Running() {
			n++
		}
	}
	return n
}
