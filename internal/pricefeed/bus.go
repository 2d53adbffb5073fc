package pricefeed

import "sync"

// Bus fans fresh quotes out to stream subscribers. Delivery is best-effort:
// a subscriber that falls behind its channel buffer loses ticks rather than
// blocking the poller, which is fine for a price stream where only the
// latest value matters.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Quote]struct{}
}

func NewBus() *Bus {
	return &Bus{subs: make(map[chan Quote]struct{})}
}

func (b *Bus) Subscribe() chan Quote {
	ch := make(chan Quote, 16)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Bus) Unsubscribe(ch chan Quote) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}

func (b *Bus) Publish(q Quote) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- q:
		default:
		}
	}
}
