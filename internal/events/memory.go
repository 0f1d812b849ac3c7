package events

import (
	"context"
	"sync"
)

// MemoryBus is an in-process Publisher and Subscriber for development mode and tests.
// Handlers run synchronously inside Publish.
type MemoryBus struct {
	mu        sync.RWMutex
	published []Event
	handlers  map[string][]func(Event)
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{handlers: make(map[string][]func(Event))}
}

func (b *MemoryBus) Publish(_ context.Context, stream string, event Event) error {
	b.mu.Lock()
	b.published = append(b.published, event)
	handlers := append([]func(Event){}, b.handlers[stream]...)
	b.mu.Unlock()

	for _, h := range handlers {
		h(event)
	}
	return nil
}

func (b *MemoryBus) Subscribe(_ context.Context, stream string, handler func(Event)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[stream] = append(b.handlers[stream], handler)
	return nil
}

// Published returns a copy of every event seen so far.
func (b *MemoryBus) Published() []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]Event(nil), b.published...)
}

func (b *MemoryBus) OfType(t string) []Event {
	var out []Event
	for _, e := range b.Published() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
