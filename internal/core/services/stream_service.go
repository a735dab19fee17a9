package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"bintunet/internal/core/domain"
	"bintunet/internal/core/ports"
	"bintunet/pkg/retry"
	"bintunet/pkg/tracing"
	"bintunet/pkg/utils"
	"bintunet/pkg/validation"
)

// Rejection reasons reported to the observer.
const (
	rejectQuota        = "quota_exceeded"
	rejectInvalidState = "invalid_state"
	rejectInvalidInput = "invalid_input"
)

type EngineConfig struct {
	BootDelay           time.Duration
	TeardownDelay       time.Duration
	TickInterval        time.Duration
	DroppedFrameWarning int
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		BootDelay:           3 * time.Second,
		TeardownDelay:       2 * time.Second,
		TickInterval:        2 * time.Second,
		DroppedFrameWarning: 10,
	}
}

// EngineDeps collects the collaborators of a StreamEngine. Nil optional
// fields fall back to no-op or real-clock implementations.
type EngineDeps struct {
	Config    EngineConfig
	Clock     clockwork.Clock
	Store     *ScopedStore
	Publisher ports.EventPublisher
	Observer  ports.StreamObserver
	Simulator *TelemetrySimulator
	Retry     retry.Config
	Logger    *zap.SugaredLogger
}

type transitionKind int

const (
	transitionBoot transitionKind = iota
	transitionTeardown
)

// pendingTransition is the one scheduled status change a stream may own.
// The token identifies the schedule that armed the timer; a callback whose
// token no longer matches the slot is stale and does nothing.
type pendingTransition struct {
	timer clockwork.Timer
	token uint64
}

// StreamEngine owns one user's stream registry and drives each stream
// through offline -> starting -> live -> stopping -> offline. Every read
// and write of engine state happens under mu.
type StreamEngine struct {
	user     domain.UserProfile
	cfg      EngineConfig
	clock    clockwork.Clock
	observer ports.StreamObserver
	sim      *TelemetrySimulator
	logger   *zap.SugaredLogger
	writer   *snapshotWriter
	events   *eventDispatcher

	mu        sync.Mutex
	streams   []*domain.Stream
	pending   map[domain.StreamID]*pendingTransition
	nextToken uint64
	closed    bool
	stop      chan struct{}
}

// NewStreamEngine restores the user's streams from storage and returns a
// ready engine. Restored "starting" and "stopping" streams get their
// transition timers re-armed; running streams beyond the user's quota are
// reset to offline.
func NewStreamEngine(ctx context.Context, user domain.UserProfile, deps EngineDeps) (*StreamEngine, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("stream engine requires a store")
	}
	if user.MaxStreams < 1 {
		return nil, fmt.Errorf("%w: max streams must be at least 1", domain.ErrInvalidInput)
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Publisher == nil {
		deps.Publisher = NoopPublisher{}
	}
	if deps.Observer == nil {
		deps.Observer = NoopObserver{}
	}
	if deps.Simulator == nil {
		deps.Simulator = NewTelemetrySimulator(0)
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop().Sugar()
	}
	if deps.Retry.MaxAttempts == 0 {
		deps.Retry = retry.DefaultConfig()
	}
	if deps.Config.TickInterval <= 0 {
		deps.Config.TickInterval = DefaultEngineConfig().TickInterval
	}

	restored, err := deps.Store.Load(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to restore streams for user %s: %w", user.ID, err)
	}

	logger := deps.Logger.With("user_id", user.ID)
	e := &StreamEngine{
		user:     user,
		cfg:      deps.Config,
		clock:    deps.Clock,
		observer: deps.Observer,
		sim:      deps.Simulator,
		logger:   logger,
		writer:   newSnapshotWriter(deps.Store, user.ID, deps.Retry, deps.Observer, logger),
		events:   newEventDispatcher(deps.Publisher, logger),
		pending:  make(map[domain.StreamID]*pendingTransition),
		stop:     make(chan struct{}),
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.restoreLocked(restored) {
		e.persistLocked()
	}
	e.observeCountsLocked()

	logger.Infow("Stream engine started", "streams", len(e.streams), "max_streams", user.MaxStreams)
	return e, nil
}

// restoreLocked adopts restored streams and reports whether any of them had
// to be corrected.
func (e *StreamEngine) restoreLocked(restored []*domain.Stream) bool {
	changed := false
	running := 0
	now := e.clock.Now()

	for _, st := range restored {
		s := st.Clone()
		switch s.Status {
		case domain.StatusStarting, domain.StatusLive:
			if running >= e.user.MaxStreams {
				e.logger.Warnw("Restored stream exceeds quota, resetting to offline", "stream_id", s.ID)
				s.ResetToOffline()
				changed = true
				break
			}
			running++
			if s.StartTime == nil {
				s.StartTime = &now
				changed = true
			}
			if s.Status == domain.StatusStarting {
				e.scheduleLocked(s.ID, transitionBoot, e.cfg.BootDelay)
			}
		case domain.StatusStopping:
			if s.StartTime == nil {
				s.StartTime = &now
				changed = true
			}
			e.scheduleLocked(s.ID, transitionTeardown, e.cfg.TeardownDelay)
		case domain.StatusOffline:
			if s.StartTime != nil || s.Telemetry != (domain.Telemetry{}) {
				s.ResetToOffline()
				changed = true
			}
		default:
			e.logger.Warnw("Restored stream has unknown status, resetting to offline", "stream_id", s.ID, "status", s.Status)
			s.ResetToOffline()
			changed = true
		}
		e.streams = append(e.streams, s)
	}
	return changed
}

func (e *StreamEngine) User() domain.UserProfile {
	return e.user
}

// Create validates the draft and appends a new offline stream.
func (e *StreamEngine) Create(ctx context.Context, draft domain.StreamDraft) (*domain.Stream, error) {
	ctx, span := tracing.TraceStreamOperation(ctx, "create", string(e.user.ID), "")
	defer span.End()

	draft = draft.WithDefaults()
	draft.Title = utils.SanitizeString(draft.Title)
	draft.DestinationKey = utils.SanitizeString(draft.DestinationKey)
	if err := validation.ValidateStreamFields(draftFields(draft)); err != nil {
		e.observer.ObserveRejection(rejectInvalidInput)
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, domain.ErrEngineClosed
	}
	if e.runningCountLocked() >= e.user.MaxStreams {
		e.observer.ObserveRejection(rejectQuota)
		tracing.RecordError(ctx, domain.ErrQuotaExceeded)
		return nil, domain.ErrQuotaExceeded
	}

	s := &domain.Stream{
		ID:               domain.StreamID(utils.GenerateStreamID()),
		Owner:            e.user.ID,
		Title:            draft.Title,
		DestinationKey:   draft.DestinationKey,
		Quality:          draft.Quality,
		Orientation:      draft.Orientation,
		Looping:          draft.Looping,
		MaxDurationHours: copyHours(draft.MaxDurationHours),
		FileName:         draft.FileName,
		OverlayText:      draft.OverlayText,
		Status:           domain.StatusOffline,
		CreatedAt:        e.clock.Now(),
	}
	e.streams = append(e.streams, s)

	e.logger.Infow("Stream created",
		"stream_id", s.ID,
		"quality", s.Quality,
		"destination_key", utils.MaskSensitive(s.DestinationKey, 4),
	)
	e.publishLocked(domain.EventStreamCreated, s)
	e.persistLocked()
	e.observeCountsLocked()
	return s.Clone(), nil
}

// Update applies a configuration patch. Unknown ids are ignored.
func (e *StreamEngine) Update(ctx context.Context, id domain.StreamID, patch domain.StreamPatch) error {
	_, span := tracing.TraceStreamOperation(ctx, "update", string(e.user.ID), string(id))
	defer span.End()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return domain.ErrEngineClosed
	}
	idx := e.indexLocked(id)
	if idx < 0 || patch.IsEmpty() {
		return nil
	}

	merged := e.streams[idx].Clone()
	patch.ApplyTo(merged)
	merged.Title = utils.SanitizeString(merged.Title)
	merged.DestinationKey = utils.SanitizeString(merged.DestinationKey)
	if err := validation.ValidateStreamFields(streamFields(merged)); err != nil {
		e.observer.ObserveRejection(rejectInvalidInput)
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	e.streams[idx] = merged

	e.publishLocked(domain.EventStreamUpdated, merged)
	e.persistLocked()
	return nil
}

// Delete removes a stream that is not running. Unknown ids are ignored.
func (e *StreamEngine) Delete(ctx context.Context, id domain.StreamID) error {
	_, span := tracing.TraceStreamOperation(ctx, "delete", string(e.user.ID), string(id))
	defer span.End()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return domain.ErrEngineClosed
	}
	idx := e.indexLocked(id)
	if idx < 0 {
		return nil
	}
	s := e.streams[idx]
	if s.Status.Running() {
		e.observer.ObserveRejection(rejectInvalidState)
		return fmt.Errorf("%w: cannot delete a %s stream", domain.ErrInvalidState, s.Status)
	}

	e.revokeLocked(id)
	e.streams = append(e.streams[:idx], e.streams[idx+1:]...)

	e.logger.Infow("Stream deleted", "stream_id", id)
	e.publishLocked(domain.EventStreamDeleted, s)
	e.persistLocked()
	e.observeCountsLocked()
	return nil
}

func (e *StreamEngine) Get(_ context.Context, id domain.StreamID) (*domain.Stream, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx := e.indexLocked(id)
	if idx < 0 {
		return nil, false
	}
	return e.streams[idx].Clone(), true
}

// List returns copies of all streams in creation order.
func (e *StreamEngine) List(_ context.Context) []*domain.Stream {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.snapshotLocked()
}

// Start moves an offline stream to starting and arms the boot timer.
func (e *StreamEngine) Start(ctx context.Context, id domain.StreamID) error {
	ctx, span := tracing.TraceStreamOperation(ctx, "start", string(e.user.ID), string(id))
	defer span.End()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return domain.ErrEngineClosed
	}
	idx := e.indexLocked(id)
	if idx < 0 {
		return domain.ErrStreamNotFound
	}
	s := e.streams[idx]
	if s.Status != domain.StatusOffline {
		e.observer.ObserveRejection(rejectInvalidState)
		return fmt.Errorf("%w: cannot start a %s stream", domain.ErrInvalidState, s.Status)
	}
	if e.runningCountLocked() >= e.user.MaxStreams {
		e.observer.ObserveRejection(rejectQuota)
		tracing.RecordError(ctx, domain.ErrQuotaExceeded)
		return domain.ErrQuotaExceeded
	}

	now := e.clock.Now()
	s.Status = domain.StatusStarting
	s.StartTime = &now
	s.Telemetry = e.sim.Startup()
	e.scheduleLocked(id, transitionBoot, e.cfg.BootDelay)

	e.logger.Infow("Stream starting", "stream_id", id)
	e.transitionedLocked(s)
	return nil
}

// Stop moves a starting or live stream to stopping, cancelling a pending
// boot, and arms the teardown timer.
func (e *StreamEngine) Stop(ctx context.Context, id domain.StreamID) error {
	_, span := tracing.TraceStreamOperation(ctx, "stop", string(e.user.ID), string(id))
	defer span.End()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return domain.ErrEngineClosed
	}
	idx := e.indexLocked(id)
	if idx < 0 {
		return domain.ErrStreamNotFound
	}
	s := e.streams[idx]
	if !s.Status.Running() {
		e.observer.ObserveRejection(rejectInvalidState)
		return fmt.Errorf("%w: cannot stop a %s stream", domain.ErrInvalidState, s.Status)
	}

	e.logger.Infow("Stream stopping", "stream_id", id, "from", s.Status)
	e.beginStopLocked(s)
	return nil
}

func (e *StreamEngine) beginStopLocked(s *domain.Stream) {
	e.revokeLocked(s.ID)
	s.Status = domain.StatusStopping
	e.scheduleLocked(s.ID, transitionTeardown, e.cfg.TeardownDelay)
	e.transitionedLocked(s)
}

// GetMetrics returns the telemetry view of one stream.
func (e *StreamEngine) GetMetrics(_ context.Context, id domain.StreamID) (*domain.StreamMetrics, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx := e.indexLocked(id)
	if idx < 0 {
		return nil, domain.ErrStreamNotFound
	}
	return e.metricsLocked(e.streams[idx]), nil
}

// Tick advances the telemetry of every live stream once and stops live
// streams whose duration cap has been reached.
func (e *StreamEngine) Tick(_ context.Context) {
	started := e.clock.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}

	updated := 0
	for _, s := range e.streams {
		if s.Status != domain.StatusLive {
			continue
		}
		s.Telemetry = e.sim.Advance(s.Telemetry)
		updated++

		m := e.metricsLocked(s)
		if m.Degraded {
			e.logger.Debugw("Stream dropping frames", "stream_id", s.ID, "dropped_frames", s.DroppedFrames)
		}
		e.events.dispatch(domain.StreamEvent{
			Type:      domain.EventStreamMetrics,
			UserID:    e.user.ID,
			StreamID:  s.ID,
			Metrics:   m,
			Timestamp: started,
		})

		if e.durationCapReachedLocked(s, started) {
			e.logger.Infow("Stream reached its duration cap", "stream_id", s.ID, "max_duration_hours", *s.MaxDurationHours)
			e.beginStopLocked(s)
		}
	}

	if updated > 0 {
		e.persistLocked()
	}
	e.observer.ObserveTick(e.clock.Since(started))
}

func (e *StreamEngine) durationCapReachedLocked(s *domain.Stream, now time.Time) bool {
	if s.MaxDurationHours == nil || s.StartTime == nil {
		return false
	}
	return now.Sub(*s.StartTime) >= time.Duration(*s.MaxDurationHours)*time.Hour
}

// Run ticks telemetry on the configured interval until ctx is done or the
// engine is closed.
func (e *StreamEngine) Run(ctx context.Context) {
	ticker := e.clock.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stop:
			return
		case <-ticker.Chan():
			e.Tick(ctx)
		}
	}
}

// Flush synchronously writes any snapshot not yet persisted.
func (e *StreamEngine) Flush(ctx context.Context) error {
	return e.writer.flush(ctx)
}

// Close revokes every pending transition, stops Run and flushes the registry.
// Streams keep their current status in storage and resume on the next restore.
func (e *StreamEngine) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	for id := range e.pending {
		e.revokeLocked(id)
	}
	close(e.stop)
	e.observer.ObserveStatusCounts(e.user.ID, nil)
	e.mu.Unlock()

	e.events.close()
	if err := e.writer.close(ctx); err != nil {
		return fmt.Errorf("failed to flush streams on close: %w", err)
	}
	e.logger.Infow("Stream engine closed")
	return nil
}

// scheduleLocked arms a transition for id, replacing any pending one.
func (e *StreamEngine) scheduleLocked(id domain.StreamID, kind transitionKind, delay time.Duration) {
	e.revokeLocked(id)
	e.nextToken++
	token := e.nextToken
	timer := e.clock.AfterFunc(delay, func() {
		e.fire(id, token, kind)
	})
	e.pending[id] = &pendingTransition{timer: timer, token: token}
}

func (e *StreamEngine) revokeLocked(id domain.StreamID) {
	if p, ok := e.pending[id]; ok {
		p.timer.Stop()
		delete(e.pending, id)
	}
}

func (e *StreamEngine) fire(id domain.StreamID, token uint64, kind transitionKind) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	p, ok := e.pending[id]
	if !ok || p.token != token {
		return
	}
	delete(e.pending, id)

	idx := e.indexLocked(id)
	if idx < 0 {
		return
	}
	s := e.streams[idx]

	switch kind {
	case transitionBoot:
		if s.Status != domain.StatusStarting {
			return
		}
		s.Status = domain.StatusLive
		e.logger.Infow("Stream live", "stream_id", id)
	case transitionTeardown:
		if s.Status != domain.StatusStopping {
			return
		}
		s.ResetToOffline()
		e.logger.Infow("Stream offline", "stream_id", id)
	}
	e.transitionedLocked(s)
}

func (e *StreamEngine) transitionedLocked(s *domain.Stream) {
	e.observer.ObserveTransition(s.Status)
	e.publishLocked(domain.EventStreamStatus, s)
	e.persistLocked()
	e.observeCountsLocked()
}

func (e *StreamEngine) publishLocked(eventType domain.EventType, s *domain.Stream) {
	e.events.dispatch(domain.StreamEvent{
		Type:      eventType,
		UserID:    e.user.ID,
		StreamID:  s.ID,
		Stream:    s.Clone(),
		Timestamp: e.clock.Now(),
	})
}

func (e *StreamEngine) persistLocked() {
	e.writer.submit(e.snapshotLocked())
}

func (e *StreamEngine) observeCountsLocked() {
	counts := map[domain.StreamStatus]int{
		domain.StatusOffline:  0,
		domain.StatusStarting: 0,
		domain.StatusLive:     0,
		domain.StatusStopping: 0,
	}
	for _, s := range e.streams {
		counts[s.Status]++
	}
	e.observer.ObserveStatusCounts(e.user.ID, counts)
}

func (e *StreamEngine) snapshotLocked() []*domain.Stream {
	out := make([]*domain.Stream, len(e.streams))
	for i, s := range e.streams {
		out[i] = s.Clone()
	}
	return out
}

func (e *StreamEngine) metricsLocked(s *domain.Stream) *domain.StreamMetrics {
	return &domain.StreamMetrics{
		StreamID:      s.ID,
		Status:        s.Status,
		Ping:          s.Ping,
		ViewerCount:   s.ViewerCount,
		DroppedFrames: s.DroppedFrames,
		UploadSpeed:   s.UploadSpeed,
		Duration:      utils.ElapsedClock(s.StartTime, e.clock.Now()),
		Degraded:      s.Status == domain.StatusLive && s.DroppedFrames > e.cfg.DroppedFrameWarning,
	}
}

func (e *StreamEngine) runningCountLocked() int {
	n := 0
	for _, s := range e.streams {
		if s.Status.Running() {
			n++
		}
	}
	return n
}

func (e *StreamEngine) indexLocked(id domain.StreamID) int {
	for i, s := range e.streams {
		if s.ID == id {
			return i
		}
	}
	return -1
}

func draftFields(d domain.StreamDraft) validation.StreamFields {
	return validation.StreamFields{
		Title:            d.Title,
		DestinationKey:   d.DestinationKey,
		Quality:          string(d.Quality),
		Orientation:      string(d.Orientation),
		MaxDurationHours: d.MaxDurationHours,
		FileName:         d.FileName,
		OverlayText:      d.OverlayText,
	}
}

func streamFields(s *domain.Stream) validation.StreamFields {
	return validation.StreamFields{
		Title:            s.Title,
		DestinationKey:   s.DestinationKey,
		Quality:          string(s.Quality),
		Orientation:      string(s.Orientation),
		MaxDurationHours: s.MaxDurationHours,
		FileName:         s.FileName,
		OverlayText:      s.OverlayText,
	}
}

func copyHours(h *int) *int {
	if h == nil {
		return nil
	}
	v := *h
	return &v
}

var _ ports.StreamEngine = (*StreamEngine)(nil)
