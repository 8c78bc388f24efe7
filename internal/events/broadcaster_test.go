// ABOUTME: Tests for the event broadcaster fan-out pub/sub system
// ABOUTME: Covers subscribe, publish, type isolation, wildcard, context cancellation

package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBroadcaster_SingleSubscriberReceivesEvent(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ch, _ := b.Subscribe(t.Context(), ServerStatusChanged)

	b.Publish(Event{Type: ServerStatusChanged, ServerID: "srv-1", Status: "running"})

	select {
	case received := <-ch:
		assert.Equal(t, "srv-1", received.ServerID)
		assert.Equal(t, "running", received.Status)
		assert.False(t, received.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBroadcaster_TypesAreIsolated(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	serverCh, _ := b.Subscribe(t.Context(), ServerStatusChanged)
	approvalCh, _ := b.Subscribe(t.Context(), ApprovalResolved)

	b.Publish(Event{Type: ApprovalResolved, ApprovalID: "appr-1", Status: "approved"})

	select {
	case received := <-approvalCh:
		assert.Equal(t, "appr-1", received.ApprovalID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for approval event")
	}

	select {
	case ev := <-serverCh:
		t.Fatalf("server subscriber received unexpected event: %+v", ev)
	case <-time.After(50 * time.Millisecond):
		// Correctly isolated
	}
}

func TestBroadcaster_WildcardReceivesEverything(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ch, _ := b.Subscribe(t.Context(), "")

	b.Publish(Event{Type: ServerStatusChanged, ServerID: "srv-1", Status: "error"})
	b.Publish(Event{Type: ApprovalCreated, ApprovalID: "appr-1", Status: "pending"})

	var types []Type
	for i := 0; i < 2; i++ {
		select {
		case received := <-ch:
			types = append(types, received.Type)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for events")
		}
	}
	assert.ElementsMatch(t, []Type{ServerStatusChanged, ApprovalCreated}, types)
}

func TestBroadcaster_ContextCancellationUnsubscribes(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ctx, cancel := context.WithCancel(t.Context())

	ch, _ := b.Subscribe(ctx, ServerStatusChanged)
	cancel()

	// The channel is closed once the cleanup goroutine runs
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("channel not closed after context cancellation")
		}
	}
}

func TestBroadcaster_SlowSubscriberDoesNotBlockPublish(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	_, _ = b.Subscribe(t.Context(), ServerStatusChanged)

	done := make(chan struct{})
	go func() {
		// Overflow the subscriber buffer; Publish must never block
		for i := 0; i < subscriberBufferSize*2; i++ {
			b.Publish(Event{Type: ServerStatusChanged, ServerID: "srv-1"})
		}
		close(done)
	}()

	select {
	case <-done:
		// Publish stayed non-blocking
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}
