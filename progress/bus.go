package progress

import (
	"slices"
	"sync"
)

// Bus is a process-wide publish point for Updates. Delivery is synchronous:
// Publish returns after every subscriber has seen the update, so subscribers
// observe updates in publish order and nothing is dropped.
//
// Subscribers must not call Publish from inside their callback.
type Bus struct {
	mu     sync.RWMutex
	subs   map[uint64]func(Update)
	nextID uint64

	// serializes Publish so concurrent producers cannot interleave a single delivery
	publishMu sync.Mutex
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[uint64]func(Update))}
}

// Subscribe registers fn and returns a function that removes it. The returned
// function is safe to call more than once.
func (b *Bus) Subscribe(fn func(Update)) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Publish delivers u to every current subscriber in subscription order.
func (b *Bus) Publish(u Update) {
	b.publishMu.Lock()
	defer b.publishMu.Unlock()

	for _, fn := range b.snapshot() {
		fn(u)
	}
}

// Subscribers returns the current subscriber count.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Bus) snapshot() []func(Update) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ids := make([]uint64, 0, len(b.subs))
	for id := range b.subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	fns := make([]func(Update), len(ids))
	for i, id := range ids {
		fns[i] = b.subs[id]
	}
	return fns
}
