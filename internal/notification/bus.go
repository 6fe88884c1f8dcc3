package notification

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Handler consumes a published delivery request.
type Handler func(msg Message)

// InMemoryBus implements Publisher by fanning messages out to in-process
// subscribers, typically a transport adapter and a logging observer.
type InMemoryBus struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]Handler // kind -> subscriptionID -> handler
}

// NewInMemoryBus creates a new InMemoryBus.
func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{
		subscribers: make(map[string]map[string]Handler),
	}
}

// Publish delivers the message to every subscriber of its kind.
func (b *InMemoryBus) Publish(ctx context.Context, msg Message) error {
	b.mu.RLock()
	handlers, exists := b.subscribers[msg.Kind]
	if !exists || len(handlers) == 0 {
		b.mu.RUnlock()
		return nil // No subscribers, not an error
	}

	// Copy handlers to avoid holding lock during delivery
	handlersCopy := make([]Handler, 0, len(handlers))
	for _, handler := range handlers {
		handlersCopy = append(handlersCopy, handler)
	}
	b.mu.RUnlock()

	for _, handler := range handlersCopy {
		handler(msg)
	}

	return nil
}

// Subscribe registers a handler for a message kind.
// Returns an unsubscribe function that removes the subscription.
func (b *InMemoryBus) Subscribe(kind string, handler Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subscribers[kind] == nil {
		b.subscribers[kind] = make(map[string]Handler)
	}

	subscriptionID := uuid.New().String()
	b.subscribers[kind][subscriptionID] = handler

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		if handlers, exists := b.subscribers[kind]; exists {
			delete(handlers, subscriptionID)
			if len(handlers) == 0 {
				delete(b.subscribers, kind)
			}
		}
	}
}

// SubscriberCount returns the number of subscribers for a kind.
// Useful for testing and monitoring.
func (b *InMemoryBus) SubscriberCount(kind string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if handlers, exists := b.subscribers[kind]; exists {
		return len(handlers)
	}
	return 0
}
