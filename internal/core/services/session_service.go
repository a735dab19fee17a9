package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"bintunet/internal/core/domain"
	"bintunet/internal/core/ports"
	"bintunet/pkg/utils"
)

// EngineFactory builds the lifecycle engine of a user.
type EngineFactory func(ctx context.Context, user domain.UserProfile) (ports.StreamEngine, error)

// NewEngineFactory returns a factory that restores engines from store with
// the shared collaborators in deps.
func NewEngineFactory(deps EngineDeps) EngineFactory {
	return func(ctx context.Context, user domain.UserProfile) (ports.StreamEngine, error) {
		return NewStreamEngine(ctx, user, deps)
	}
}

// Session is one signed-in session and the engine it operates on.
type Session struct {
	ID        domain.SessionID
	User      domain.UserProfile
	Engine    ports.StreamEngine
	ExpiresAt time.Time
}

type engineEntry struct {
	engine   ports.StreamEngine
	sessions map[domain.SessionID]struct{}
	cancel   context.CancelFunc

	// closed is closed once a detached engine has flushed and shut down.
	// The entry stays in the map until then so a new session cannot load
	// the user's streams ahead of the final write.
	closing bool
	closed  chan struct{}
}

// SessionManager is the application root: it authenticates users, issues
// session tokens and owns one lifecycle engine per signed-in user. Engines
// are shared by concurrent sessions of the same user.
type SessionManager struct {
	identity ports.IdentityProvider
	tokens   *TokenIssuer
	sessions ports.SessionStore
	factory  EngineFactory
	observer ports.StreamObserver
	clock    clockwork.Clock
	logger   *zap.SugaredLogger

	mu      sync.Mutex
	engines map[domain.UserID]*engineEntry
}

func NewSessionManager(
	identity ports.IdentityProvider,
	tokens *TokenIssuer,
	sessions ports.SessionStore,
	factory EngineFactory,
	observer ports.StreamObserver,
	clock clockwork.Clock,
	logger *zap.SugaredLogger,
) *SessionManager {
	if observer == nil {
		observer = NoopObserver{}
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &SessionManager{
		identity: identity,
		tokens:   tokens,
		sessions: sessions,
		factory:  factory,
		observer: observer,
		clock:    clock,
		logger:   logger,
		engines:  make(map[domain.UserID]*engineEntry),
	}
}

// Login authenticates the user, records a new session and attaches the
// user's engine, restoring it from storage when this is the first session.
func (m *SessionManager) Login(ctx context.Context, identifier, secret, accessCode string) (*Session, string, error) {
	profile, err := m.identity.Authenticate(ctx, identifier, secret, accessCode)
	if err != nil {
		if errors.Is(err, domain.ErrAuthFailure) {
			m.logger.Infow("Login rejected", "identifier", utils.MaskSensitive(identifier, 3))
		}
		return nil, "", err
	}

	sessionID := domain.SessionID(utils.GenerateSessionID())
	token, expiresAt, err := m.tokens.GenerateToken(*profile, sessionID)
	if err != nil {
		return nil, "", err
	}

	record := &domain.SessionRecord{
		ID:        sessionID,
		Profile:   *profile,
		IssuedAt:  m.clock.Now(),
		ExpiresAt: expiresAt,
	}
	if err := m.sessions.Save(ctx, record, m.tokens.TTL()); err != nil {
		return nil, "", fmt.Errorf("failed to save session: %w", err)
	}

	engine, err := m.attach(ctx, *profile, sessionID)
	if err != nil {
		if delErr := m.sessions.Delete(ctx, sessionID); delErr != nil {
			m.logger.Warnw("Failed to discard session", "session_id", sessionID, "error", delErr)
		}
		return nil, "", err
	}

	m.logger.Infow("User signed in", "user_id", profile.ID, "session_id", sessionID)
	return &Session{
		ID:        sessionID,
		User:      *profile,
		Engine:    engine,
		ExpiresAt: expiresAt,
	}, token, nil
}

// Resolve validates a token and returns its live session. A session whose
// engine is not loaded (for example after a restart) is rehydrated.
func (m *SessionManager) Resolve(ctx context.Context, token string) (*Session, error) {
	claims, err := m.tokens.ValidateToken(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrAuthFailure, err)
	}

	record, err := m.sessions.Get(ctx, claims.SessionID())
	if err != nil {
		return nil, err
	}
	if record.Profile.ID != claims.UserID {
		return nil, fmt.Errorf("%w: session does not belong to token subject", domain.ErrAuthFailure)
	}

	engine, err := m.attach(ctx, record.Profile, record.ID)
	if err != nil {
		return nil, err
	}
	return &Session{
		ID:        record.ID,
		User:      record.Profile,
		Engine:    engine,
		ExpiresAt: record.ExpiresAt,
	}, nil
}

// Logout ends the session. The user's engine is closed with its last session.
func (m *SessionManager) Logout(ctx context.Context, token string) error {
	claims, err := m.tokens.ValidateToken(token)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrAuthFailure, err)
	}

	sessionID := claims.SessionID()
	if err := m.sessions.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	m.logger.Infow("User signed out", "user_id", claims.UserID, "session_id", sessionID)
	return m.detach(ctx, claims.UserID, sessionID)
}

// Shutdown closes every engine. Sessions stay valid and rehydrate on the
// next Resolve.
func (m *SessionManager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	entries := m.engines
	m.engines = make(map[domain.UserID]*engineEntry)
	m.observer.SetActiveSessions(0)
	m.mu.Unlock()

	var errs []error
	for userID, entry := range entries {
		if entry.closing {
			continue
		}
		entry.cancel()
		if err := entry.engine.Close(ctx); err != nil {
			m.logger.Errorw("Failed to close stream engine", "user_id", userID, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ActiveUsers returns the number of users with a loaded engine.
func (m *SessionManager) ActiveUsers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, entry := range m.engines {
		if !entry.closing {
			n++
		}
	}
	return n
}

func (m *SessionManager) attach(ctx context.Context, user domain.UserProfile, sessionID domain.SessionID) (ports.StreamEngine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.engines[user.ID]
	for ok && entry.closing {
		m.mu.Unlock()
		select {
		case <-entry.closed:
		case <-ctx.Done():
			m.mu.Lock()
			return nil, ctx.Err()
		}
		m.mu.Lock()
		entry, ok = m.engines[user.ID]
	}

	if !ok {
		engine, err := m.factory(ctx, user)
		if err != nil {
			return nil, fmt.Errorf("failed to start stream engine: %w", err)
		}
		runCtx, cancel := context.WithCancel(context.Background())
		go engine.Run(runCtx)

		entry = &engineEntry{
			engine:   engine,
			sessions: make(map[domain.SessionID]struct{}),
			cancel:   cancel,
			closed:   make(chan struct{}),
		}
		m.engines[user.ID] = entry
	}
	entry.sessions[sessionID] = struct{}{}
	m.observer.SetActiveSessions(m.sessionCountLocked())
	return entry.engine, nil
}

func (m *SessionManager) detach(ctx context.Context, userID domain.UserID, sessionID domain.SessionID) error {
	m.mu.Lock()
	entry, ok := m.engines[userID]
	if !ok || entry.closing {
		m.mu.Unlock()
		return nil
	}
	delete(entry.sessions, sessionID)
	last := len(entry.sessions) == 0
	if last {
		entry.closing = true
	}
	m.observer.SetActiveSessions(m.sessionCountLocked())
	m.mu.Unlock()

	if !last {
		return nil
	}

	entry.cancel()
	err := entry.engine.Close(ctx)

	m.mu.Lock()
	if m.engines[userID] == entry {
		delete(m.engines, userID)
	}
	close(entry.closed)
	m.mu.Unlock()

	if err != nil {
		return fmt.Errorf("failed to close stream engine: %w", err)
	}
	return nil
}

func (m *SessionManager) sessionCountLocked() int {
	n := 0
	for _, entry := range m.engines {
		n += len(entry.sessions)
	}
	return n
}
