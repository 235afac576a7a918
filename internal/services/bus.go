package services

import (
	"sync"

	"agromarket-notifier/internal/domain"
	"agromarket-notifier/internal/metrics"
	"agromarket-notifier/pkg/logger"
)

const signalBuffer = 16

// MemoryBus is the in-process broadcast channel between the event pipeline and
// open views. Publish never blocks: a subscriber that cannot keep up loses the
// signal rather than stalling the pipeline.
type MemoryBus struct {
	mu     sync.RWMutex
	subs   map[domain.Topic]map[int]chan domain.Signal
	nextID int
	log    logger.Logger
}

func NewMemoryBus(log logger.Logger) *MemoryBus {
	return &MemoryBus{
		subs: make(map[domain.Topic]map[int]chan domain.Signal),
		log:  log,
	}
}

func (b *MemoryBus) Publish(signal domain.Signal) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	metrics.SignalsPublished.WithLabelValues(string(signal.Topic)).Inc()

	for id, ch := range b.subs[signal.Topic] {
		select {
		case ch <- signal:
		default:
			b.log.Warn("Dropped signal for slow subscriber",
				"topic", signal.Topic, "subscriber", id)
		}
	}
}

func (b *MemoryBus) Subscribe(topic domain.Topic) (<-chan domain.Signal, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs[topic] == nil {
		b.subs[topic] = make(map[int]chan domain.Signal)
	}

	id := b.nextID
	b.nextID++

	ch := make(chan domain.Signal, signalBuffer)
	b.subs[topic][id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		if sub, ok := b.subs[topic][id]; ok {
			delete(b.subs[topic], id)
			close(sub)
		}
	}

	return ch, cancel
}
