package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub1 := b.Subscribe()
	sub2 := b.Subscribe()
	assert.Equal(t, 2, b.SubscriberCount())

	b.Publish(&Event{
		Type:      EventInstanceReady,
		Namespace: "shop",
		Tier:      "backend",
	})

	for _, sub := range []Subscriber{sub1, sub2} {
		select {
		case ev := <-sub:
			assert.Equal(t, EventInstanceReady, ev.Type)
			assert.False(t, ev.Timestamp.IsZero(), "timestamp should be stamped on publish")
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	b.Unsubscribe(sub)
	assert.Equal(t, 0, b.SubscriberCount())

	_, open := <-sub
	assert.False(t, open, "channel should be closed after unsubscribe")

	// Double unsubscribe must not panic.
	b.Unsubscribe(sub)
}

func TestSlowSubscriberDoesNotBlockOthers(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	slow := b.Subscribe() // never drained
	fast := b.Subscribe()

	// Overflow the slow subscriber's buffer.
	for i := 0; i < 60; i++ {
		b.Publish(&Event{Type: EventInstanceCreated})
	}

	received := 0
	timeout := time.After(2 * time.Second)
	for received < 60 {
		select {
		case <-fast:
			received++
		case <-timeout:
			t.Fatalf("fast subscriber stalled after %d events", received)
		}
	}
	require.Equal(t, 60, received)
	_ = slow
}
