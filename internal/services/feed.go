package services

import (
	"sync"
	"time"

	"agromarket-notifier/internal/domain"
	"agromarket-notifier/pkg/logger"
)

// FeedManager tracks the downstream subscribers of each session's live feed.
// A session may have several open tabs; each gets its own channel. Pushes are
// non-blocking so a stuck consumer cannot back up the event pipeline.
type FeedManager struct {
	mu     sync.RWMutex
	feeds  map[string]map[int]chan domain.FeedMessage // sessionID -> subscriberID -> channel
	nextID int
	buffer int
	log    logger.Logger
}

func NewFeedManager(buffer int, log logger.Logger) *FeedManager {
	if buffer <= 0 {
		buffer = 16
	}
	return &FeedManager{
		feeds:  make(map[string]map[int]chan domain.FeedMessage),
		buffer: buffer,
		log:    log,
	}
}

// Subscribe registers a downstream consumer for the session's feed. The
// returned cancel removes the subscription and closes the channel.
func (f *FeedManager) Subscribe(sessionID string) (<-chan domain.FeedMessage, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.feeds[sessionID] == nil {
		f.feeds[sessionID] = make(map[int]chan domain.FeedMessage)
	}

	id := f.nextID
	f.nextID++

	ch := make(chan domain.FeedMessage, f.buffer)
	f.feeds[sessionID][id] = ch

	f.log.Info("Feed subscriber registered", "session_id", sessionID, "subscriber", id)

	cancel := func() {
		f.mu.Lock()
		defer f.mu.Unlock()

		if sub, ok := f.feeds[sessionID][id]; ok {
			delete(f.feeds[sessionID], id)
			if len(f.feeds[sessionID]) == 0 {
				delete(f.feeds, sessionID)
			}
			close(sub)
		}
	}

	return ch, cancel
}

// PushAlert delivers an alert to every subscriber of the session's feed.
// Fire-and-forget: no subscribers, no error.
func (f *FeedManager) PushAlert(sessionID string, alert *domain.Alert) {
	f.push(sessionID, domain.FeedMessage{
		Type:      "alert",
		Alert:     alert,
		AuctionID: alert.AuctionID,
		Timestamp: time.Now(),
	})
}

func (f *FeedManager) push(sessionID string, msg domain.FeedMessage) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for id, ch := range f.feeds[sessionID] {
		select {
		case ch <- msg:
		default:
			f.log.Warn("Dropped feed message for slow subscriber",
				"session_id", sessionID, "subscriber", id, "type", msg.Type)
		}
	}
}

// CloseSession drops every subscriber of the session, ending their feeds.
func (f *FeedManager) CloseSession(sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	subs, ok := f.feeds[sessionID]
	if !ok {
		return
	}
	for id, ch := range subs {
		close(ch)
		f.log.Info("Feed subscriber closed", "session_id", sessionID, "subscriber", id)
	}
	delete(f.feeds, sessionID)
}

func (f *FeedManager) SubscriberCount(sessionID string) int {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return len(f.feeds[sessionID])
}
