package eventbus

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Kind classifies an outbound chat event.
type Kind string

const (
	KindReply  Kind = "reply"
	KindNotice Kind = "notice"
)

// Event is one outbound message for a user: either the final reply of a turn
// or an interstitial wait notice emitted while an operation runs.
type Event struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Kind      Kind      `json:"kind"`
	Agent     string    `json:"agent,omitempty"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

type subscriber struct {
	userID string
	ch     chan Event
}

// Bus fans outbound events out to subscribers. Subscribers registered for a
// user id receive only that user's events; an empty user id receives all.
type Bus struct {
	mu   sync.RWMutex
	subs map[string]*subscriber
}

func NewBus() *Bus {
	return &Bus{subs: map[string]*subscriber{}}
}

// Publish stamps and broadcasts an event, returning the stored form.
func (b *Bus) Publish(userID string, kind Kind, agent, text string) Event {
	event := Event{
		ID:        ulid.Make().String(),
		UserID:    userID,
		Kind:      kind,
		Agent:     agent,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
	b.broadcast(event)
	return event
}

// Subscribe returns a channel of events for userID (all users when empty).
// The subscription is removed and the channel closed when ctx is done.
func (b *Bus) Subscribe(ctx context.Context, userID string) <-chan Event {
	ch := make(chan Event, 64)
	id := ulid.Make().String()

	b.mu.Lock()
	b.subs[id] = &subscriber{userID: userID, ch: ch}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
		close(ch)
	}()

	return ch
}

func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Bus) broadcast(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if sub.userID != "" && sub.userID != event.UserID {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			// Drop if subscriber is slow.
		}
	}
}
