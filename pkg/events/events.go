package events

import (
	"sync"
)

// Bus is an in-process broadcast channel for payload-free signals.
//
// The HTTP layer emits on it when the backend rejects the current token and
// the session owner subscribes once at startup, so neither package imports
// the other. Emit never blocks: each subscriber gets a buffered slot and a
// signal already pending for that subscriber is coalesced.
type Bus struct {
	mu   sync.Mutex
	subs map[int]chan struct{}
	next int
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan struct{})}
}

// Subscribe registers a new listener and returns its channel together with
// a cancel function. The cancel function is idempotent and must be called
// when the listener goes away to avoid leaking the subscription. Cancel
// closes the channel, so a listener ranging over it terminates.
func (b *Bus) Subscribe() (<-chan struct{}, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan struct{}, 1)
	b.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			// Emit sends only under b.mu, so closing under the same
			// mutex cannot race a send on the closed channel.
			b.mu.Lock()
			delete(b.subs, id)
			close(ch)
			b.mu.Unlock()
		})
	}
	return ch, cancel
}

// Emit broadcasts the signal to every subscriber without blocking.
func (b *Bus) Emit() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- struct{}{}:
		default:
			// Subscriber already has a pending signal; coalesce.
		}
	}
}

// Len returns the number of active subscriptions.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
