package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishReachesSubscriber(t *testing.T) {
	hub := NewHub()
	ch := hub.Subscribe("abc")
	defer hub.Unsubscribe("abc", ch)

	hub.Publish("abc", KindConnected, "")

	select {
	case event := <-ch:
		assert.Equal(t, "abc", event.SessionID)
		assert.Equal(t, KindConnected, event.Kind)
		assert.False(t, event.Time.IsZero())
	case <-time.After(time.Second):
		t.Fatal("expected event")
	}
}

func TestPublishIsScopedPerSession(t *testing.T) {
	hub := NewHub()
	chA := hub.Subscribe("a")
	chB := hub.Subscribe("b")
	defer hub.Unsubscribe("a", chA)
	defer hub.Unsubscribe("b", chB)

	hub.Publish("a", KindChallengeIssued, "payload")

	select {
	case <-chA:
	case <-time.After(time.Second):
		t.Fatal("subscriber of session a should receive the event")
	}

	select {
	case event := <-chB:
		t.Fatalf("subscriber of session b should not receive %v", event)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishWithoutSubscribersDoesNotBlock(t *testing.T) {
	hub := NewHub()

	done := make(chan struct{})
	go func() {
		hub.Publish("nobody", KindFailed, "x")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish must not block")
	}
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	hub := NewHub()
	ch := hub.Subscribe("abc")
	defer hub.Unsubscribe("abc", ch)

	// Fill the buffer and keep publishing; the extra events are dropped.
	for i := 0; i < cap(ch)+10; i++ {
		hub.Publish("abc", KindChallengeIssued, "x")
	}

	assert.Len(t, ch, cap(ch))
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	hub := NewHub()
	ch := hub.Subscribe("abc")

	hub.Unsubscribe("abc", ch)

	_, open := <-ch
	require.False(t, open, "channel should be closed")
	assert.Equal(t, 0, hub.SubscriberCount("abc"))

	// Double unsubscribe must not panic
	hub.Unsubscribe("abc", ch)
}
