package services

import (
	"sync"
)

// BidLedger is the per-session set of bid ids already surfaced to the user.
// It has no eviction: sessions are short-lived and bidding is human-paced.
// Only new-bid events carry a stable identifier; closures are not deduplicated.
type BidLedger struct {
	mu   sync.Mutex
	seen map[int64]struct{}
}

func NewBidLedger() *BidLedger {
	return &BidLedger{
		seen: make(map[int64]struct{}),
	}
}

// Admit returns true exactly once per distinct bid id, recording it.
func (l *BidLedger) Admit(bidID int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.seen[bidID]; ok {
		return false
	}
	l.seen[bidID] = struct{}{}
	return true
}

func (l *BidLedger) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.seen)
}
