package services

import (
	"testing"
	"time"

	"agromarket-notifier/internal/domain"
	"agromarket-notifier/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRevealDelay = 100 * time.Millisecond

func newTestDispatcher(t *testing.T) (*Dispatcher, *FeedManager, *MemoryBus) {
	t.Helper()
	feeds := NewFeedManager(8, logger.NewNop())
	bus := NewMemoryBus(logger.NewNop())
	return NewDispatcher(feeds, bus, testRevealDelay, logger.NewNop()), feeds, bus
}

func testSession() *domain.Session {
	return &domain.Session{ID: "sess-1", UserID: "farmer-1", Token: "tok"}
}

func TestDispatcher_NotifyNewBid(t *testing.T) {
	dispatcher, feeds, bus := newTestDispatcher(t)
	session := testSession()

	feed, cancelFeed := feeds.Subscribe(session.ID)
	defer cancelFeed()
	reveals, cancelReveals := bus.Subscribe(domain.TopicReveal)
	defer cancelReveals()

	dispatcher.NotifyNewBid(session, &domain.BidAnnouncement{
		BidID:      42,
		AuctionID:  7,
		Amount:     1250.5,
		BidderName: "Ravi Traders",
	})

	select {
	case msg := <-feed:
		require.NotNil(t, msg.Alert)
		assert.Equal(t, domain.AlertNewBid, msg.Alert.Kind)
		assert.Contains(t, msg.Alert.Body, "Ravi Traders")
		assert.Contains(t, msg.Alert.Body, "1250.50")
		assert.Equal(t, int64(7), msg.Alert.AuctionID)
		assert.Equal(t, "/my/auctions", msg.Alert.Navigate)
	case <-time.After(time.Second):
		t.Fatal("expected alert on feed")
	}

	// The reveal signal arrives only after the mount delay.
	select {
	case <-reveals:
		t.Fatal("reveal signal arrived before the delay elapsed")
	default:
	}

	select {
	case sig := <-reveals:
		assert.Equal(t, int64(7), sig.AuctionID)
		assert.Equal(t, session.ID, sig.SessionID)
		assert.Equal(t, session.UserID, sig.UserID)
	case <-time.After(time.Second):
		t.Fatal("expected reveal signal after delay")
	}
}

func TestDispatcher_NotifyAuctionClosed(t *testing.T) {
	dispatcher, feeds, bus := newTestDispatcher(t)
	session := testSession()

	feed, cancelFeed := feeds.Subscribe(session.ID)
	defer cancelFeed()
	reveals, cancelReveals := bus.Subscribe(domain.TopicReveal)
	defer cancelReveals()

	dispatcher.NotifyAuctionClosed(session, 11)

	select {
	case msg := <-feed:
		require.NotNil(t, msg.Alert)
		assert.Equal(t, domain.AlertAuctionClosed, msg.Alert.Kind)
		assert.Equal(t, int64(11), msg.Alert.AuctionID)
	case <-time.After(time.Second):
		t.Fatal("expected alert on feed")
	}

	select {
	case sig := <-reveals:
		assert.Equal(t, int64(11), sig.AuctionID)
	case <-time.After(time.Second):
		t.Fatal("expected reveal signal after delay")
	}
}

func TestDispatcher_NotifyWithoutFeedSubscribersDoesNotPanic(t *testing.T) {
	dispatcher, _, _ := newTestDispatcher(t)

	dispatcher.NotifyNewBid(testSession(), &domain.BidAnnouncement{BidID: 1, AuctionID: 2})
	dispatcher.NotifyAuctionClosed(testSession(), 2)
}

func TestDispatcher_CancelPendingStopsRevealTimers(t *testing.T) {
	dispatcher, _, bus := newTestDispatcher(t)
	session := testSession()

	reveals, cancelReveals := bus.Subscribe(domain.TopicReveal)
	defer cancelReveals()

	dispatcher.NotifyNewBid(session, &domain.BidAnnouncement{BidID: 1, AuctionID: 3})
	dispatcher.NotifyAuctionClosed(session, 4)
	dispatcher.CancelPending(session.ID)

	select {
	case sig := <-reveals:
		t.Fatalf("reveal fired after teardown: %+v", sig)
	case <-time.After(5 * testRevealDelay):
	}
}

func TestDispatcher_CancelPendingLeavesOtherSessionsAlone(t *testing.T) {
	dispatcher, _, bus := newTestDispatcher(t)
	kept := &domain.Session{ID: "sess-kept", UserID: "farmer-2"}

	reveals, cancelReveals := bus.Subscribe(domain.TopicReveal)
	defer cancelReveals()

	dispatcher.NotifyNewBid(testSession(), &domain.BidAnnouncement{BidID: 1, AuctionID: 3})
	dispatcher.NotifyNewBid(kept, &domain.BidAnnouncement{BidID: 2, AuctionID: 8})
	dispatcher.CancelPending(testSession().ID)

	select {
	case sig := <-reveals:
		assert.Equal(t, kept.ID, sig.SessionID)
		assert.Equal(t, int64(8), sig.AuctionID)
	case <-time.After(time.Second):
		t.Fatal("surviving session's reveal never fired")
	}
}
