package alerts

import (
	"log"
	"sync"

	"github.com/forenx/sentinel/internal/models"
)

// subscriberBuffer is the per-subscriber channel depth. A subscriber
// that falls this far behind starts losing alerts rather than stalling
// the publisher.
const subscriberBuffer = 64

// Feed broadcasts newly persisted alerts to stream subscribers.
// The ingestion pipeline publishes; SSE handlers subscribe.
type Feed struct {
	mu     sync.RWMutex
	subs   map[int]chan *models.AttackAlert
	nextID int
}

// NewFeed creates an empty alert feed.
func NewFeed() *Feed {
	return &Feed{subs: make(map[int]chan *models.AttackAlert)}
}

// Subscribe registers a new subscriber. The returned cancel function
// must be called when the subscriber is done; it closes the channel.
func (f *Feed) Subscribe() (<-chan *models.AttackAlert, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.nextID
	f.nextID++
	ch := make(chan *models.AttackAlert, subscriberBuffer)
	f.subs[id] = ch

	cancel := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if sub, ok := f.subs[id]; ok {
			delete(f.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers alerts to every subscriber. Publish never blocks;
// alerts to a full subscriber channel are dropped.
func (f *Feed) Publish(alerts []models.AttackAlert) {
	if len(alerts) == 0 {
		return
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	dropped := 0
	for i := range alerts {
		alert := alerts[i]
		for _, ch := range f.subs {
			select {
			case ch <- &alert:
			default:
				dropped++
			}
		}
	}
	if dropped > 0 {
		log.Printf("alert feed: dropped %d events to slow subscribers", dropped)
	}
}

// SubscriberCount returns the number of active subscribers.
func (f *Feed) SubscriberCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}
