package domain

import (
	"context"
	"errors"
)

var ErrSessionNotFound = errors.New("session not found")

type EventHandler func(event *StreamEvent)

// EventStream maintains the single upstream push connection for one session.
type EventStream interface {
	// Start opens the connection for the session. No-op if a connection for
	// the same session id is already open.
	Start(ctx context.Context, session *Session) error
	// Stop closes the active connection if present. Idempotent.
	Stop() error
	// OnEvent registers the callback invoked once per delivered event, in
	// delivery order. Must be called before Start.
	OnEvent(handler EventHandler)
	State() StreamState
}

// DedupLedger guarantees at-most-once notification per logical event.
type DedupLedger interface {
	// Admit returns true if bidID has not been seen before, recording it.
	Admit(bidID int64) bool
	Size() int
}

// Notifier translates an admitted event into a rendered alert. Rendering is
// fire-and-forget; implementations never return errors.
type Notifier interface {
	NotifyNewBid(session *Session, bid *BidAnnouncement)
	NotifyAuctionClosed(session *Session, auctionID int64)
	// CancelPending stops any reveal timers still scheduled for the session.
	CancelPending(sessionID string)
}

// SignalBus is the in-process broadcast channel between the pipeline and any
// open views.
type SignalBus interface {
	Publish(signal Signal)
	// Subscribe returns a receive channel for the topic and an unsubscribe
	// function. The channel is closed on unsubscribe.
	Subscribe(topic Topic) (<-chan Signal, func())
}

type SessionStore interface {
	Create(ctx context.Context, session *Session) error
	Get(ctx context.Context, sessionID string) (*Session, error)
	Delete(ctx context.Context, sessionID string) error
	RefreshTTL(ctx context.Context, sessionID string) error
}

type ListingCache interface {
	SetOpenAuctions(ctx context.Context, userID string, auctions []*Auction) error
	GetOpenAuctions(ctx context.Context, userID string) ([]*Auction, bool, error)
	Invalidate(ctx context.Context, userID string) error
}

// MarketClient covers the consumed marketplace REST operations. Bid ranking,
// acceptance rules and auction closing all live behind it.
type MarketClient interface {
	ListOpenAuctions(ctx context.Context, sellerID string) ([]*Auction, error)
	GetAuction(ctx context.Context, auctionID int64) (*Auction, error)
	ListBids(ctx context.Context, auctionID int64) ([]*Bid, error)
	AcceptBid(ctx context.Context, auctionID, bidID int64) error
}

// AlertSink receives rendered alerts for a session's downstream feed.
type AlertSink interface {
	PushAlert(sessionID string, alert *Alert)
}
