package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Session is an authenticated marketplace user. It owns at most one live
// upstream event stream for its lifetime.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Token     string    `json:"token"`
	CreatedAt time.Time `json:"created_at"`
}

type EventKind string

const (
	EventNewBid        EventKind = "newBid"
	EventAuctionClosed EventKind = "auctionClosed"
)

// StreamEvent is a single server-pushed notification. The payload shape is
// discriminated by Kind and decoded lazily so a malformed payload can be
// dropped without touching the rest of the pipeline.
type StreamEvent struct {
	Kind    EventKind       `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type BidAnnouncement struct {
	BidID      int64   `json:"bidId"`
	AuctionID  int64   `json:"auctionId"`
	Amount     float64 `json:"amount"`
	BidderName string  `json:"bidderName"`
}

type AuctionClosure struct {
	AuctionID int64 `json:"auctionId"`
}

func (e *StreamEvent) Bid() (*BidAnnouncement, error) {
	if e.Kind != EventNewBid {
		return nil, fmt.Errorf("event is %q, not %q", e.Kind, EventNewBid)
	}
	var bid BidAnnouncement
	if err := json.Unmarshal(e.Payload, &bid); err != nil {
		return nil, err
	}
	return &bid, nil
}

func (e *StreamEvent) Closure() (*AuctionClosure, error) {
	if e.Kind != EventAuctionClosed {
		return nil, fmt.Errorf("event is %q, not %q", e.Kind, EventAuctionClosed)
	}
	var closure AuctionClosure
	if err := json.Unmarshal(e.Payload, &closure); err != nil {
		return nil, err
	}
	return &closure, nil
}

type StreamState int

const (
	StreamIdle StreamState = iota
	StreamConnecting
	StreamOpen
	StreamClosed
)

func (s StreamState) String() string {
	switch s {
	case StreamIdle:
		return "idle"
	case StreamConnecting:
		return "connecting"
	case StreamOpen:
		return "open"
	case StreamClosed:
		return "closed"
	default:
		return "unknown"
	}
}

type AlertKind string

const (
	AlertNewBid        AlertKind = "new_bid"
	AlertAuctionClosed AlertKind = "auction_closed"
)

// Alert is a user-facing toast with a follow-up action: the UI navigates to
// Navigate and expects a later reveal signal for AuctionID.
type Alert struct {
	Kind      AlertKind `json:"kind"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	AuctionID int64     `json:"auction_id"`
	Navigate  string    `json:"navigate"`
	CreatedAt time.Time `json:"created_at"`
}

type Topic string

const (
	TopicAuctionList   Topic = "auction-list"
	TopicAuctionDetail Topic = "auction-detail"
	TopicReveal        Topic = "reveal"
)

// Signal is a transient in-process broadcast. It never crosses the network as
// is; the feed handler re-encodes the topic and auction id for the browser.
type Signal struct {
	Topic     Topic  `json:"topic"`
	AuctionID int64  `json:"auction_id,omitempty"`
	SessionID string `json:"-"`
	UserID    string `json:"-"`
}

// FeedMessage is one frame of a session's downstream feed.
type FeedMessage struct {
	Type      string    `json:"type"`
	Alert     *Alert    `json:"alert,omitempty"`
	Topic     Topic     `json:"topic,omitempty"`
	AuctionID int64     `json:"auction_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Auction is the marketplace's view of a listing, as returned by the remote
// API. The gateway caches these, it never owns them.
type Auction struct {
	ID           int64     `json:"id"`
	ProductName  string    `json:"product_name"`
	Quantity     float64   `json:"quantity"`
	Unit         string    `json:"unit"`
	SellerID     string    `json:"seller_id"`
	StartingBid  float64   `json:"starting_bid"`
	HighestBid   float64   `json:"highest_bid"`
	BidCount     int       `json:"bid_count"`
	Status       string    `json:"status"`
	EndsAt       time.Time `json:"ends_at"`
}

const (
	AuctionStatusOpen   = "open"
	AuctionStatusClosed = "closed"
)

type Bid struct {
	ID         int64     `json:"id"`
	AuctionID  int64     `json:"auction_id"`
	BidderName string    `json:"bidder_name"`
	Amount     float64   `json:"amount"`
	PlacedAt   time.Time `json:"placed_at"`
}
