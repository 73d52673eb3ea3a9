package event

import (
	"context"
	"sync"
)

// Bus delivers events to interested parties. Publish must never block the
// emitting pipeline: slow consumers lose events rather than stalling a
// refresh or build.
type Bus interface {
	// Publish delivers an event. Implementations must not block.
	Publish(ctx context.Context, e Event) error
}

// NopBus discards all events. It is the default when no bus is configured.
type NopBus struct{}

// Publish discards the event.
func (NopBus) Publish(ctx context.Context, e Event) error { return nil }

// MemoryBus fans events out to in-process subscriber channels.
type MemoryBus struct {
	mu   sync.RWMutex
	subs []chan Event
}

// NewMemoryBus creates an in-process event bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{}
}

// Subscribe returns a buffered channel receiving all subsequently published
// events. Events are dropped for a subscriber whose buffer is full.
func (b *MemoryBus) Subscribe() <-chan Event {
	ch := make(chan Event, 64)
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()
	return ch
}

// Publish fans the event out to all subscribers without blocking.
func (b *MemoryBus) Publish(ctx context.Context, e Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
	return nil
}

// Close closes all subscriber channels.
func (b *MemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}
