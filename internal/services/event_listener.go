package services

import (
	"agromarket-notifier/internal/domain"
	"agromarket-notifier/internal/metrics"
	"agromarket-notifier/pkg/logger"
)

// EventListener is one session's event pipeline: ledger admission, alert
// dispatch and cache invalidation for every event the stream delivers.
// Alert and invalidation are independent, unordered effects of the same
// admitted event; the UI is eventually consistent.
type EventListener struct {
	session  *domain.Session
	ledger   domain.DedupLedger
	notifier domain.Notifier
	bus      domain.SignalBus
	log      logger.Logger
}

func NewEventListener(session *domain.Session, ledger domain.DedupLedger,
	notifier domain.Notifier, bus domain.SignalBus, log logger.Logger) *EventListener {
	return &EventListener{
		session:  session,
		ledger:   ledger,
		notifier: notifier,
		bus:      bus,
		log:      log,
	}
}

// HandleEvent is registered as the stream's OnEvent callback. It never
// panics: a bad event is logged and dropped without touching the ledger.
func (el *EventListener) HandleEvent(event *domain.StreamEvent) {
	metrics.EventsReceived.WithLabelValues(string(event.Kind)).Inc()

	switch event.Kind {
	case domain.EventNewBid:
		el.handleNewBid(event)
	case domain.EventAuctionClosed:
		el.handleAuctionClosed(event)
	default:
		metrics.EventsDropped.WithLabelValues("unknown_kind").Inc()
		el.log.Warn("Dropping event of unknown kind",
			"kind", event.Kind, "session_id", el.session.ID)
	}
}

func (el *EventListener) handleNewBid(event *domain.StreamEvent) {
	bid, err := event.Bid()
	if err != nil {
		metrics.EventsDropped.WithLabelValues("malformed_payload").Inc()
		el.log.Error("Dropping malformed bid payload",
			"session_id", el.session.ID, "error", err)
		return
	}

	if !el.ledger.Admit(bid.BidID) {
		metrics.DuplicatesSuppressed.Inc()
		el.log.Debug("Suppressed duplicate bid event",
			"bid_id", bid.BidID, "session_id", el.session.ID)
		return
	}

	el.notifier.NotifyNewBid(el.session, bid)

	el.bus.Publish(domain.Signal{
		Topic:     domain.TopicAuctionList,
		AuctionID: bid.AuctionID,
		SessionID: el.session.ID,
		UserID:    el.session.UserID,
	})
}

// Closures carry no stable event id and are idempotent by nature, so they are
// not deduplicated; a redelivered closure re-alerts harmlessly.
func (el *EventListener) handleAuctionClosed(event *domain.StreamEvent) {
	closure, err := event.Closure()
	if err != nil {
		metrics.EventsDropped.WithLabelValues("malformed_payload").Inc()
		el.log.Error("Dropping malformed closure payload",
			"session_id", el.session.ID, "error", err)
		return
	}

	el.notifier.NotifyAuctionClosed(el.session, closure.AuctionID)

	el.bus.Publish(domain.Signal{
		Topic:     domain.TopicAuctionList,
		AuctionID: closure.AuctionID,
		SessionID: el.session.ID,
		UserID:    el.session.UserID,
	})
	el.bus.Publish(domain.Signal{
		Topic:     domain.TopicAuctionDetail,
		AuctionID: closure.AuctionID,
		SessionID: el.session.ID,
		UserID:    el.session.UserID,
	})
}
