// Package pubsub provides a minimal generic publish/subscribe broker used to
// fan out control-plane events to interested listeners.
package pubsub

import (
	"context"
	"sync"
)

// EventType categorizes the mutation a published event represents.
type EventType string

const (
	CreatedEvent EventType = "created"
	UpdatedEvent EventType = "updated"
	DeletedEvent EventType = "deleted"
)

// Event is the envelope delivered to subscribers.
type Event[T any] struct {
	Type    EventType
	Payload T
}

const subscriberBuffer = 64

// Broker fans published events out to all active subscribers. Subscribers
// that fall behind by more than their channel buffer have events dropped
// rather than blocking the publisher.
type Broker[T any] struct {
	mu   sync.RWMutex
	subs map[chan Event[T]]struct{}
	done bool
}

// NewBroker creates an empty broker.
func NewBroker[T any]() *Broker[T] {
	return &Broker[T]{subs: make(map[chan Event[T]]struct{})}
}

// Subscribe registers a new subscriber. The returned channel is closed when
// ctx is cancelled or the broker shuts down.
func (b *Broker[T]) Subscribe(ctx context.Context) <-chan Event[T] {
	ch := make(chan Event[T], subscriberBuffer)

	b.mu.Lock()
	if b.done {
		b.mu.Unlock()
		close(ch)
		return ch
	}
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
		b.mu.Unlock()
	}()

	return ch
}

// Publish delivers an event to every subscriber without blocking.
func (b *Broker[T]) Publish(t EventType, payload T) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- Event[T]{Type: t, Payload: payload}:
		default:
			// Slow subscriber: drop instead of stalling session loops.
		}
	}
}

// Shutdown closes all subscriber channels and rejects future subscriptions.
func (b *Broker[T]) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done {
		return
	}
	b.done = true
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
}
