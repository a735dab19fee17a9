package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"bintunet/internal/core/domain"
	"bintunet/internal/infrastructure/repositories/memory"
)

func TestScopedStore_SaveKeepsOtherUsers(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewMemoryStreamRepository()
	require.NoError(t, repo.SaveAll(ctx, []*domain.Stream{
		{ID: "stream_a", Owner: "1", Title: "mine-old"},
		{ID: "stream_b", Owner: "2", Title: "theirs"},
	}))

	scoped := NewScopedStore(repo)
	require.NoError(t, scoped.Save(ctx, "1", []*domain.Stream{
		{ID: "stream_c", Owner: "1", Title: "mine-new"},
		{ID: "stream_d", Owner: "1", Title: "mine-newer"},
	}))

	all, err := repo.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, domain.StreamID("stream_b"), all[0].ID)

	mine, err := scoped.Load(ctx, "1")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, domain.StreamID("stream_c"), mine[0].ID)
	assert.Equal(t, domain.StreamID("stream_d"), mine[1].ID)

	theirs, err := scoped.Load(ctx, "2")
	require.NoError(t, err)
	require.Len(t, theirs, 1)
	assert.Equal(t, "theirs", theirs[0].Title)
}

func TestStreamEngine_PersistsOnMutation(t *testing.T) {
	f := newEngineFixture(t, 2)
	ctx := context.Background()
	id := f.create(t, "durable")

	require.NoError(t, f.engine.Flush(ctx))
	require.Eventually(t, func() bool {
		all, _ := f.store.LoadAll(ctx)
		return len(all) == 1 && all[0].ID == id
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, f.engine.Start(ctx, id))
	require.NoError(t, f.engine.Close(ctx))

	all, err := f.store.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, domain.StatusStarting, all[0].Status)
	assert.Equal(t, domain.UserID("1"), all[0].Owner)
}

func TestStreamEngine_PersistFailureIsNotFatal(t *testing.T) {
	clock := clockwork.NewFakeClock()
	observer := &recordingObserver{}
	deps := testDeps(clock, memory.NewMemoryStreamRepository(), observer, &recordingPublisher{})
	deps.Store = NewScopedStore(failingStore{})

	engine, err := NewStreamEngine(context.Background(), testUser(2), deps)
	require.NoError(t, err)
	defer engine.Close(context.Background())

	s, err := engine.Create(context.Background(), domain.StreamDraft{Title: "show", DestinationKey: "key"})
	require.NoError(t, err)
	require.NoError(t, engine.Start(context.Background(), s.ID))

	require.Eventually(t, func() bool {
		return observer.persistFailures() >= 1
	}, time.Second, 5*time.Millisecond)

	got, ok := engine.Get(context.Background(), s.ID)
	require.True(t, ok)
	assert.Equal(t, domain.StatusStarting, got.Status)
}

func TestNewStreamEngine_LoadErrorFails(t *testing.T) {
	deps := testDeps(clockwork.NewFakeClock(), memory.NewMemoryStreamRepository(), &recordingObserver{}, &recordingPublisher{})
	deps.Store = NewScopedStore(brokenStore{})

	_, err := NewStreamEngine(context.Background(), testUser(2), deps)
	assert.Error(t, err)
}

func TestNewStreamEngine_Restore(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	repo := memory.NewMemoryStreamRepository()
	started := clock.Now().Add(-time.Minute)

	require.NoError(t, repo.SaveAll(ctx, []*domain.Stream{
		{ID: "stream_live", Owner: "1", Title: "live", DestinationKey: "k", Status: domain.StatusLive, StartTime: &started,
			Telemetry: domain.Telemetry{Ping: 30, ViewerCount: 3, UploadSpeed: 3}},
		{ID: "stream_starting", Owner: "1", Title: "starting", DestinationKey: "k", Status: domain.StatusStarting, StartTime: &started},
		{ID: "stream_extra", Owner: "1", Title: "over quota", DestinationKey: "k", Status: domain.StatusLive, StartTime: &started},
		{ID: "stream_stopping", Owner: "1", Title: "stopping", DestinationKey: "k", Status: domain.StatusStopping, StartTime: &started},
		{ID: "stream_other", Owner: "2", Title: "someone else", DestinationKey: "k", Status: domain.StatusLive, StartTime: &started},
	}))

	observer := &recordingObserver{}
	deps := testDeps(clock, repo, observer, &recordingPublisher{})
	engine, err := NewStreamEngine(ctx, testUser(2), deps)
	require.NoError(t, err)
	defer engine.Close(ctx)

	status := func(id domain.StreamID) domain.StreamStatus {
		s, ok := engine.Get(ctx, id)
		require.True(t, ok, "missing %s", id)
		return s.Status
	}

	list := engine.List(ctx)
	require.Len(t, list, 4)
	assert.Equal(t, domain.StatusLive, status("stream_live"))
	assert.Equal(t, domain.StatusStarting, status("stream_starting"))
	assert.Equal(t, domain.StatusOffline, status("stream_extra"))
	assert.Equal(t, domain.StatusStopping, status("stream_stopping"))

	extra, _ := engine.Get(ctx, "stream_extra")
	assert.Nil(t, extra.StartTime)

	live, _ := engine.Get(ctx, "stream_live")
	assert.Equal(t, 30, live.Ping)

	// re-armed timers
	clock.Advance(3 * time.Second)
	require.Eventually(t, func() bool {
		s, _ := engine.Get(ctx, "stream_starting")
		o, _ := engine.Get(ctx, "stream_stopping")
		return s.Status == domain.StatusLive && o.Status == domain.StatusOffline
	}, time.Second, 5*time.Millisecond)

	// the other user's record survives this user's writes
	require.NoError(t, engine.Close(ctx))
	all, err := repo.LoadAll(ctx)
	require.NoError(t, err)
	var foundOther bool
	for _, s := range all {
		if s.ID == "stream_other" {
			foundOther = true
			assert.Equal(t, domain.StatusLive, s.Status)
		}
	}
	assert.True(t, foundOther)
}

type countingLocker struct {
	held  bool
	calls int
}

func (l *countingLocker) WithLock(ctx context.Context, fn func(ctx context.Context) error) error {
	l.calls++
	l.held = true
	defer func() { l.held = false }()
	return fn(ctx)
}

type lockCheckingStore struct {
	*memory.MemoryStreamRepository
	locker *countingLocker
	saves  int
}

func (s *lockCheckingStore) SaveAll(ctx context.Context, streams []*domain.Stream) error {
	if !s.locker.held {
		return errors.New("saved without the lock")
	}
	s.saves++
	return s.MemoryStreamRepository.SaveAll(ctx, streams)
}

func TestScopedStore_SaveHoldsLocker(t *testing.T) {
	locker := &countingLocker{}
	store := &lockCheckingStore{MemoryStreamRepository: memory.NewMemoryStreamRepository(), locker: locker}
	scoped := NewScopedStore(store).WithLocker(locker)

	require.NoError(t, scoped.Save(context.Background(), "1", []*domain.Stream{{ID: "stream_a", Title: "a"}}))
	assert.Equal(t, 1, locker.calls)
	assert.Equal(t, 1, store.saves)

	_, err := scoped.Load(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, 1, locker.calls)
}

func TestScopedStore_TracesBackendCalls(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tracesdk.NewTracerProvider(tracesdk.WithSpanProcessor(sr)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	ctx := context.Background()
	scoped := NewScopedStore(memory.NewMemoryStreamRepository()).WithBackend("memory")
	require.NoError(t, scoped.Save(ctx, "1", []*domain.Stream{{ID: "stream_a", Title: "a"}}))
	_, err := scoped.Load(ctx, "1")
	require.NoError(t, err)

	assert.Error(t, NewScopedStore(failingStore{}).Save(ctx, "1", nil))

	byName := make(map[string][]tracesdk.ReadOnlySpan)
	for _, span := range sr.Ended() {
		byName[span.Name()] = append(byName[span.Name()], span)
	}
	require.Len(t, byName["store.load"], 1)
	require.Len(t, byName["store.save"], 2)

	backend := func(span tracesdk.ReadOnlySpan) string {
		for _, kv := range span.Attributes() {
			if kv.Key == "storage.backend" {
				return kv.Value.AsString()
			}
		}
		return ""
	}
	assert.Equal(t, "memory", backend(byName["store.load"][0]))
	assert.Equal(t, "memory", backend(byName["store.save"][0]))
	assert.Equal(t, codes.Unset, byName["store.save"][0].Status().Code)
	assert.Equal(t, "unknown", backend(byName["store.save"][1]))
	assert.Equal(t, codes.Error, byName["store.save"][1].Status().Code)
}

func TestNewStreamEngine_RestoreBackfillsStartTime(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	repo := memory.NewMemoryStreamRepository()
	require.NoError(t, repo.SaveAll(ctx, []*domain.Stream{
		{ID: "stream_live", Owner: "1", Title: "live", DestinationKey: "k", Status: domain.StatusLive},
		{ID: "stream_stopping", Owner: "1", Title: "stopping", DestinationKey: "k", Status: domain.StatusStopping,
			Telemetry: domain.Telemetry{ViewerCount: 3}},
	}))

	engine, err := NewStreamEngine(ctx, testUser(2), testDeps(clock, repo, &recordingObserver{}, &recordingPublisher{}))
	require.NoError(t, err)
	defer engine.Close(ctx)

	for _, s := range engine.List(ctx) {
		require.NotNil(t, s.StartTime, "stream %s", s.ID)
		assert.True(t, s.StartTime.Equal(clock.Now()))
	}

	stopping, ok := engine.Get(ctx, "stream_stopping")
	require.True(t, ok)
	assert.Equal(t, domain.StatusStopping, stopping.Status)
}
