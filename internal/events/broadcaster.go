// ABOUTME: In-memory fan-out event broadcaster for UI and CLI observers
// ABOUTME: Publishes server status and approval lifecycle events to subscribers

package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// subscriberBufferSize is the channel buffer for each subscriber.
	subscriberBufferSize = 64

	// wildcard is the internal key for subscribers to every event type.
	wildcard = "*"
)

// Type identifies the kind of an event.
type Type string

const (
	ServerStatusChanged Type = "server.status_changed"
	ApprovalCreated     Type = "approval.created"
	ApprovalResolved    Type = "approval.resolved"
)

// Event is one notification published to observers. Exactly one of ServerID
// or ApprovalID is set depending on the type.
type Event struct {
	Type       Type
	ServerID   string
	ApprovalID string
	Status     string
	Detail     map[string]any
	Timestamp  time.Time
}

// Broadcaster provides in-memory pub/sub for router events. Subscribers
// register for one event type (or all of them) and receive events as they
// are published. This enables observers to track the router without polling.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan Event // eventKey -> subID -> ch
	logger      *slog.Logger
}

// NewBroadcaster creates a broadcaster. Pass nil logger for default.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[string]map[string]chan Event),
		logger:      logger.With("component", "events"),
	}
}

// Subscribe registers a subscriber for events of the given type; an empty
// type subscribes to every event. Returns a channel that receives events and
// a subscription ID for later unsubscription. The subscription is
// automatically cleaned up when ctx is cancelled.
func (b *Broadcaster) Subscribe(ctx context.Context, eventType Type) (<-chan Event, string) {
	key := string(eventType)
	if key == "" {
		key = wildcard
	}

	subID := uuid.New().String()
	ch := make(chan Event, subscriberBufferSize)

	b.mu.Lock()
	if _, ok := b.subscribers[key]; !ok {
		b.subscribers[key] = make(map[string]chan Event)
	}
	b.subscribers[key][subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "event_type", key, "sub_id", subID)

	// Auto-cleanup on context cancellation
	go func() {
		<-ctx.Done()
		b.unsubscribe(key, subID)
	}()

	return ch, subID
}

// Publish sends an event to all subscribers of its type and all wildcard
// subscribers. Non-blocking: events are dropped for subscribers whose
// channels are full.
func (b *Broadcaster) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	// Copy subscriber channels under read lock to avoid holding lock during sends
	var targets []chan Event
	for _, key := range []string{string(event.Type), wildcard} {
		for _, ch := range b.subscribers[key] {
			targets = append(targets, ch)
		}
	}
	b.mu.RUnlock()

	for _, ch := range targets {
		select {
		case ch <- event:
			// Sent
		default:
			// Subscriber channel full — drop event for this subscriber
			b.logger.Debug("dropped event for slow subscriber",
				"event_type", event.Type,
				"server_id", event.ServerID,
				"approval_id", event.ApprovalID)
		}
	}
}

// unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) unsubscribe(key, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[key]
	if !ok {
		return
	}

	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)

	// Clean up empty type entries
	if len(subs) == 0 {
		delete(b.subscribers, key)
	}

	b.logger.Debug("subscriber removed", "event_type", key, "sub_id", subID)
}

// Close shuts down the broadcaster and closes all subscriber channels.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for key, subs := range b.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(b.subscribers, key)
	}

	b.logger.Debug("broadcaster closed")
}
