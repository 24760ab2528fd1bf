package transport

import (
	"context"
	"log"

	"github.com/provisor-ai/deskbot/internal/eventbus"
)

// Sender delivers a message to a user through whatever channel the deployment
// wires up. Implementations must tolerate being called concurrently.
type Sender interface {
	Send(ctx context.Context, userID, text string) error
}

// BusSender publishes outbound messages on the event bus, where websocket
// subscribers (or any other adapter) pick them up.
type BusSender struct {
	Bus   *eventbus.Bus
	Kind  eventbus.Kind
	Agent string
}

func (s *BusSender) Send(ctx context.Context, userID, text string) error {
	if s.Bus == nil {
		log.Printf("transport: no bus wired, dropping message for %s", userID)
		return nil
	}
	kind := s.Kind
	if kind == "" {
		kind = eventbus.KindReply
	}
	s.Bus.Publish(userID, kind, s.Agent, text)
	return nil
}

// LogSender traces messages instead of delivering them. Used when no
// transport is configured, and as the notifier's offline fallback.
type LogSender struct{}

func (LogSender) Send(_ context.Context, userID, text string) error {
	log.Printf("transport (log only) -> %s: %s", userID, text)
	return nil
}
