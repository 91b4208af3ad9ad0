package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBroker_PublishReachesSubscriber(t *testing.T) {
	b := NewBroker[string]()
	ch := b.Subscribe(context.Background())

	b.Publish(CreatedEvent, "hello")

	select {
	case ev := <-ch:
		require.Equal(t, CreatedEvent, ev.Type)
		require.Equal(t, "hello", ev.Payload)
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
}

func TestBroker_FansOutToAllSubscribers(t *testing.T) {
	b := NewBroker[int]()
	a := b.Subscribe(context.Background())
	c := b.Subscribe(context.Background())

	b.Publish(UpdatedEvent, 42)

	for _, ch := range []<-chan Event[int]{a, c} {
		select {
		case ev := <-ch:
			require.Equal(t, 42, ev.Payload)
		case <-time.After(time.Second):
			t.Fatal("subscriber missed event")
		}
	}
}

func TestBroker_CancelClosesSubscription(t *testing.T) {
	b := NewBroker[string]()
	ctx, cancel := context.WithCancel(context.Background())
	ch := b.Subscribe(ctx)

	cancel()

	select {
	case _, open := <-ch:
		require.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}

	// Publishing after unsubscribe must not panic or block.
	b.Publish(DeletedEvent, "late")
}

func TestBroker_ShutdownClosesAllSubscribers(t *testing.T) {
	b := NewBroker[string]()
	a := b.Subscribe(context.Background())
	c := b.Subscribe(context.Background())

	b.Shutdown()

	for _, ch := range []<-chan Event[string]{a, c} {
		_, open := <-ch
		require.False(t, open)
	}

	// Subscriptions after shutdown come back already closed.
	late := b.Subscribe(context.Background())
	_, open := <-late
	require.False(t, open)

	// Shutdown is idempotent.
	b.Shutdown()
}

func TestBroker_SlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	b := NewBroker[int]()
	ch := b.Subscribe(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriberBuffer*2; i++ {
			b.Publish(UpdatedEvent, i)
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on slow subscriber")
	}

	// The buffer is full; everything past it was dropped.
	require.Len(t, ch, subscriberBuffer)
}
