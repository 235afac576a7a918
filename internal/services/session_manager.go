package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"agromarket-notifier/internal/domain"
	"agromarket-notifier/internal/metrics"
	"agromarket-notifier/pkg/logger"

	"github.com/google/uuid"
)

var ErrInvalidCredentials = errors.New("user id and token required")

// StreamFactory builds the upstream event stream for a session. Injected so
// tests can substitute a fake transport.
type StreamFactory func(session *domain.Session) domain.EventStream

type pipeline struct {
	session *domain.Session
	stream  domain.EventStream
	ledger  *BidLedger
}

// SessionManager owns the session lifecycle. Invariant: an upstream stream
// exists if and only if its session is active, and each session has at most
// one. The dedup ledger lives here, not in the stream, so it survives
// transient reconnects but never a logout.
type SessionManager struct {
	store      domain.SessionStore
	feeds      *FeedManager
	bus        domain.SignalBus
	notifier   domain.Notifier
	newStream  StreamFactory
	sessionTTL time.Duration
	log        logger.Logger

	mu     sync.Mutex
	active map[string]*pipeline
}

func NewSessionManager(store domain.SessionStore, feeds *FeedManager,
	bus domain.SignalBus, notifier domain.Notifier, newStream StreamFactory,
	sessionTTL time.Duration, log logger.Logger) *SessionManager {
	return &SessionManager{
		store:      store,
		feeds:      feeds,
		bus:        bus,
		notifier:   notifier,
		newStream:  newStream,
		sessionTTL: sessionTTL,
		log:        log,
		active:     make(map[string]*pipeline),
	}
}

// Login mints a session, persists it and starts its event pipeline. A fresh
// session always starts with an empty ledger.
func (m *SessionManager) Login(ctx context.Context, userID, token string) (*domain.Session, error) {
	if userID == "" || token == "" {
		return nil, ErrInvalidCredentials
	}

	session := &domain.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Token:     token,
		CreatedAt: time.Now(),
	}

	if err := m.store.Create(ctx, session); err != nil {
		return nil, err
	}

	ledger := NewBidLedger()
	listener := NewEventListener(session, ledger, m.notifier, m.bus, m.log)

	stream := m.newStream(session)
	stream.OnEvent(listener.HandleEvent)

	if err := stream.Start(context.Background(), session); err != nil {
		m.store.Delete(ctx, session.ID)
		return nil, err
	}

	m.mu.Lock()
	m.active[session.ID] = &pipeline{
		session: session,
		stream:  stream,
		ledger:  ledger,
	}
	m.mu.Unlock()

	metrics.ActiveSessions.Inc()
	m.log.Info("Session started", "session_id", session.ID, "user_id", userID)

	return session, nil
}

// Logout tears down the session's pipeline. Idempotent: a second call, or a
// call for an unknown session, is a no-op.
func (m *SessionManager) Logout(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	p, ok := m.active[sessionID]
	if ok {
		delete(m.active, sessionID)
	}
	m.mu.Unlock()

	if !ok {
		// Still clear any store record left behind.
		if err := m.store.Delete(ctx, sessionID); err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
			return err
		}
		return nil
	}

	if err := p.stream.Stop(); err != nil {
		m.log.Error("Failed to stop event stream", "session_id", sessionID, "error", err)
	}
	m.notifier.CancelPending(sessionID)
	m.feeds.CloseSession(sessionID)

	if err := m.store.Delete(ctx, sessionID); err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
		m.log.Error("Failed to delete session record", "session_id", sessionID, "error", err)
	}

	metrics.ActiveSessions.Dec()
	m.log.Info("Session stopped", "session_id", sessionID, "user_id", p.session.UserID)

	return nil
}

// Session returns the active session, if any.
func (m *SessionManager) Session(sessionID string) (*domain.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.active[sessionID]
	if !ok {
		return nil, false
	}
	return p.session, true
}

func (m *SessionManager) ActiveSessions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.active))
	for id := range m.active {
		ids = append(ids, id)
	}
	return ids
}

// Touch refreshes the session's TTL in the store. Called by downstream feed
// activity so an open tab keeps its session alive.
func (m *SessionManager) Touch(ctx context.Context, sessionID string) error {
	return m.store.RefreshTTL(ctx, sessionID)
}

// StopAll logs out every active session. Used during shutdown.
func (m *SessionManager) StopAll(ctx context.Context) {
	for _, id := range m.ActiveSessions() {
		if err := m.Logout(ctx, id); err != nil {
			m.log.Error("Failed to stop session", "session_id", id, "error", err)
		}
	}
}
