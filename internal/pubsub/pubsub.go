// Package pubsub is an in-process fan-out for map commands and view
// lifecycle events.
package pubsub

import "sync"

// Bus delivers every published value to all current subscribers. Publish
// never blocks: a subscriber whose buffer is full misses the value.
type Bus[T any] struct {
	mu     sync.RWMutex
	subs   map[chan T]struct{}
	buffer int
}

// New creates a bus whose subscriber channels hold buffer values.
func New[T any](buffer int) *Bus[T] {
	return &Bus[T]{subs: make(map[chan T]struct{}), buffer: buffer}
}

// Publish sends v to every subscriber and returns how many received it.
func (b *Bus[T]) Publish(v T) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	sent := 0
	for ch := range b.subs {
		select {
		case ch <- v:
			sent++
		default:
		}
	}
	return sent
}

// Subscribe returns a new buffered channel that receives published values.
func (b *Bus[T]) Subscribe() chan T {
	ch := make(chan T, b.buffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes ch and closes it. Unknown or already closed channels
// are ignored.
func (b *Bus[T]) Unsubscribe(ch chan T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
}

// Close closes every subscriber channel.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
}

// Len returns the number of subscribers.
func (b *Bus[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
