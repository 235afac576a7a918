package services

import (
	"fmt"
	"sync"
	"time"

	"agromarket-notifier/internal/domain"
	"agromarket-notifier/internal/metrics"
	"agromarket-notifier/pkg/logger"
)

// Dispatcher turns admitted events into alerts on the session's feed. After a
// short delay (the UI needs time to mount the target view) it emits a reveal
// signal so the relevant auction row can expand. Pending reveal timers are
// cancelled when the session is torn down.
type Dispatcher struct {
	feeds       domain.AlertSink
	bus         domain.SignalBus
	revealDelay time.Duration
	log         logger.Logger

	mu     sync.Mutex
	timers map[string]map[*time.Timer]struct{} // sessionID -> pending reveal timers
}

func NewDispatcher(feeds domain.AlertSink, bus domain.SignalBus,
	revealDelay time.Duration, log logger.Logger) *Dispatcher {
	return &Dispatcher{
		feeds:       feeds,
		bus:         bus,
		revealDelay: revealDelay,
		log:         log,
		timers:      make(map[string]map[*time.Timer]struct{}),
	}
}

func (d *Dispatcher) NotifyNewBid(session *domain.Session, bid *domain.BidAnnouncement) {
	alert := &domain.Alert{
		Kind:      domain.AlertNewBid,
		Title:     "New bid received",
		Body:      fmt.Sprintf("%s placed a bid of %.2f", bid.BidderName, bid.Amount),
		AuctionID: bid.AuctionID,
		Navigate:  "/my/auctions",
		CreatedAt: time.Now(),
	}

	d.feeds.PushAlert(session.ID, alert)
	metrics.AlertsDispatched.WithLabelValues(string(domain.AlertNewBid)).Inc()
	d.scheduleReveal(session, bid.AuctionID)
}

func (d *Dispatcher) NotifyAuctionClosed(session *domain.Session, auctionID int64) {
	alert := &domain.Alert{
		Kind:      domain.AlertAuctionClosed,
		Title:     "Auction closed",
		Body:      "One of your auctions has closed",
		AuctionID: auctionID,
		Navigate:  "/my/auctions",
		CreatedAt: time.Now(),
	}

	d.feeds.PushAlert(session.ID, alert)
	metrics.AlertsDispatched.WithLabelValues(string(domain.AlertAuctionClosed)).Inc()
	d.scheduleReveal(session, auctionID)
}

func (d *Dispatcher) scheduleReveal(session *domain.Session, auctionID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timers[session.ID] == nil {
		d.timers[session.ID] = make(map[*time.Timer]struct{})
	}

	var timer *time.Timer
	timer = time.AfterFunc(d.revealDelay, func() {
		d.forget(session.ID, timer)
		d.bus.Publish(domain.Signal{
			Topic:     domain.TopicReveal,
			AuctionID: auctionID,
			SessionID: session.ID,
			UserID:    session.UserID,
		})
	})
	d.timers[session.ID][timer] = struct{}{}
}

func (d *Dispatcher) forget(sessionID string, timer *time.Timer) {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.timers[sessionID], timer)
	if len(d.timers[sessionID]) == 0 {
		delete(d.timers, sessionID)
	}
}

// CancelPending stops reveal timers still scheduled for the session so a
// stopped session never acts on a stale navigation target.
func (d *Dispatcher) CancelPending(sessionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for timer := range d.timers[sessionID] {
		timer.Stop()
	}
	delete(d.timers, sessionID)
}
