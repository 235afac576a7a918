package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"agromarket-notifier/internal/domain"
	"agromarket-notifier/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
}

func newMemorySessionStore() *memorySessionStore {
	return &memorySessionStore{sessions: make(map[string]*domain.Session)}
}

func (s *memorySessionStore) Create(ctx context.Context, session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session
	return nil
}

func (s *memorySessionStore) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

func (s *memorySessionStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

func (s *memorySessionStore) RefreshTTL(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return domain.ErrSessionNotFound
	}
	return nil
}

// fakeStream stands in for the upstream websocket transport.
type fakeStream struct {
	mu      sync.Mutex
	handler domain.EventHandler
	state   domain.StreamState
	starts  int
	stops   int
}

func (f *fakeStream) Start(ctx context.Context, session *domain.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == domain.StreamOpen {
		return nil
	}
	f.starts++
	f.state = domain.StreamOpen
	return nil
}

func (f *fakeStream) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.state = domain.StreamClosed
	return nil
}

func (f *fakeStream) OnEvent(handler domain.EventHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = handler
}

func (f *fakeStream) State() domain.StreamState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeStream) deliver(event *domain.StreamEvent) {
	f.mu.Lock()
	handler := f.handler
	f.mu.Unlock()
	if handler != nil {
		handler(event)
	}
}

type sessionManagerFixture struct {
	manager  *SessionManager
	store    *memorySessionStore
	notifier *recordingNotifier
	feeds    *FeedManager

	mu      sync.Mutex
	streams []*fakeStream
}

func newSessionManagerFixture(t *testing.T) *sessionManagerFixture {
	t.Helper()

	fx := &sessionManagerFixture{
		store:    newMemorySessionStore(),
		notifier: &recordingNotifier{},
		feeds:    NewFeedManager(8, logger.NewNop()),
	}

	factory := func(session *domain.Session) domain.EventStream {
		stream := &fakeStream{state: domain.StreamIdle}
		fx.mu.Lock()
		fx.streams = append(fx.streams, stream)
		fx.mu.Unlock()
		return stream
	}

	fx.manager = NewSessionManager(fx.store, fx.feeds, NewMemoryBus(logger.NewNop()),
		fx.notifier, factory, 30*time.Minute, logger.NewNop())
	return fx
}

func (fx *sessionManagerFixture) stream(i int) *fakeStream {
	fx.mu.Lock()
	defer fx.mu.Unlock()
	return fx.streams[i]
}

func (fx *sessionManagerFixture) streamCount() int {
	fx.mu.Lock()
	defer fx.mu.Unlock()
	return len(fx.streams)
}

func TestSessionManager_LoginStartsExactlyOneStream(t *testing.T) {
	fx := newSessionManagerFixture(t)
	ctx := context.Background()

	session, err := fx.manager.Login(ctx, "farmer-1", "tok")
	require.NoError(t, err)
	require.NotEmpty(t, session.ID)

	assert.Equal(t, 1, fx.streamCount())
	assert.Equal(t, domain.StreamOpen, fx.stream(0).State())

	stored, err := fx.store.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "farmer-1", stored.UserID)

	active, ok := fx.manager.Session(session.ID)
	require.True(t, ok)
	assert.Equal(t, session.ID, active.ID)
}

func TestSessionManager_LoginRejectsMissingCredentials(t *testing.T) {
	fx := newSessionManagerFixture(t)

	_, err := fx.manager.Login(context.Background(), "", "tok")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = fx.manager.Login(context.Background(), "farmer-1", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	assert.Equal(t, 0, fx.streamCount())
}

func TestSessionManager_LogoutStopsStreamAndCancelsTimers(t *testing.T) {
	fx := newSessionManagerFixture(t)
	ctx := context.Background()

	session, err := fx.manager.Login(ctx, "farmer-1", "tok")
	require.NoError(t, err)

	require.NoError(t, fx.manager.Logout(ctx, session.ID))

	assert.Equal(t, domain.StreamClosed, fx.stream(0).State())
	assert.Contains(t, fx.notifier.cancelled, session.ID)

	_, err = fx.store.Get(ctx, session.ID)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	_, ok := fx.manager.Session(session.ID)
	assert.False(t, ok)
}

func TestSessionManager_LogoutIsIdempotent(t *testing.T) {
	fx := newSessionManagerFixture(t)
	ctx := context.Background()

	// Logout of a session that never existed.
	require.NoError(t, fx.manager.Logout(ctx, "no-such-session"))

	session, err := fx.manager.Login(ctx, "farmer-1", "tok")
	require.NoError(t, err)

	require.NoError(t, fx.manager.Logout(ctx, session.ID))
	require.NoError(t, fx.manager.Logout(ctx, session.ID))

	assert.Equal(t, 1, fx.stream(0).stops)
}

func TestSessionManager_FreshSessionStartsWithEmptyLedger(t *testing.T) {
	fx := newSessionManagerFixture(t)
	ctx := context.Background()

	first, err := fx.manager.Login(ctx, "farmer-1", "tok")
	require.NoError(t, err)

	// Bid 42 alerts in the first session.
	fx.stream(0).deliver(newBidEvent(t, 42, 7, 500, "Ravi Traders"))
	require.Equal(t, 1, fx.notifier.bidCount())

	// Redelivery within the same session is suppressed.
	fx.stream(0).deliver(newBidEvent(t, 42, 7, 500, "Ravi Traders"))
	require.Equal(t, 1, fx.notifier.bidCount())

	require.NoError(t, fx.manager.Logout(ctx, first.ID))

	// A new session must not inherit the old ledger: bid 42 alerts again.
	_, err = fx.manager.Login(ctx, "farmer-1", "tok")
	require.NoError(t, err)

	fx.stream(1).deliver(newBidEvent(t, 42, 7, 500, "Ravi Traders"))
	assert.Equal(t, 2, fx.notifier.bidCount())
}

func TestSessionManager_StopAll(t *testing.T) {
	fx := newSessionManagerFixture(t)
	ctx := context.Background()

	_, err := fx.manager.Login(ctx, "farmer-1", "tok")
	require.NoError(t, err)
	_, err = fx.manager.Login(ctx, "farmer-2", "tok")
	require.NoError(t, err)
	require.Len(t, fx.manager.ActiveSessions(), 2)

	fx.manager.StopAll(ctx)

	assert.Empty(t, fx.manager.ActiveSessions())
	assert.Equal(t, domain.StreamClosed, fx.stream(0).State())
	assert.Equal(t, domain.StreamClosed, fx.stream(1).State())
}
