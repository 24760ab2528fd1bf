package orchestrator

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/provisor-ai/deskbot/internal/convlog"
	"github.com/provisor-ai/deskbot/internal/engine"
	"github.com/provisor-ai/deskbot/internal/notify"
	"github.com/provisor-ai/deskbot/internal/registry"
	"github.com/provisor-ai/deskbot/internal/session"
	"github.com/provisor-ai/deskbot/internal/transport"
)

const (
	apologyReply      = "I apologize, but I encountered an error processing your message. Please try again."
	resetReply        = "Your session has been reset. You're starting fresh with the concierge."
	clearReply        = "Conversation history cleared. You're still talking to the same agent."
	unknownTokenReply = "I don't recognize that command. Try /help."
)

// Persister receives the post-turn state for durable storage. Persist errors
// never fail a turn.
type Persister interface {
	PersistTurn(ctx context.Context, userID string, identity registry.Identity, entries []convlog.Entry) error
}

// Orchestrator runs one turn per inbound message: resolve the active agent,
// hand the conversation to the reasoning engine, persist whoever finished.
// Turns for the same user are serialized; different users run in parallel.
type Orchestrator struct {
	Sessions      *session.Store
	Log           *convlog.Log
	Registry      *registry.Registry
	Engine        engine.Engine
	Notices       transport.Sender
	Replies       transport.Sender
	Persist       Persister
	TurnTimeout   time.Duration
	MaxIterations int

	lockMu    sync.Mutex
	userLocks map[string]*sync.Mutex
}

// HandleMessage processes one inbound message and returns the user-visible
// reply. It never returns an error; failures degrade to a fixed apology.
func (o *Orchestrator) HandleMessage(ctx context.Context, userID, displayName, text string) string {
	lock := o.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	if reply, handled := o.handleControlToken(userID, text); handled {
		return reply
	}

	storedID := o.Sessions.CurrentAgent(userID)
	activeID, desc := o.Registry.ResolveOrDefault(storedID)
	if activeID != storedID {
		log.Printf("orchestrator: stale identity %q for user %s, falling back to %s", storedID, userID, activeID)
	}

	// The user message is appended before the engine runs and is never
	// rolled back: a failed turn still leaves it in history for the retry.
	o.Log.Append(userID, convlog.NewEntry(convlog.RoleUser, text))

	instructions := desc.Instructions(registry.Context{
		UserID:      userID,
		DisplayName: displayName,
	})

	runCtx := ctx
	if o.TurnTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, o.TurnTimeout)
		defer cancel()
	}

	result, err := o.Engine.Run(runCtx, engine.Request{
		UserID:        userID,
		DisplayName:   displayName,
		Identity:      activeID,
		Instructions:  instructions,
		Conversation:  o.Log.History(userID),
		Notifier:      notify.NewForTurn(userID, o.Notices, o.Registry),
		MaxIterations: o.MaxIterations,
	})
	if err != nil {
		log.Printf("orchestrator: turn failed for user %s under %s: %v", userID, activeID, err)
		return apologyReply
	}

	o.Sessions.SetCurrentAgent(userID, result.FinalIdentity)
	o.Log.Replace(userID, result.Transcript)

	if o.Persist != nil {
		if err := o.Persist.PersistTurn(ctx, userID, result.FinalIdentity, result.Transcript); err != nil {
			log.Printf("orchestrator: persist failed for user %s: %v", userID, err)
		}
	}
	if o.Replies != nil {
		if err := o.Replies.Send(ctx, userID, result.Output); err != nil {
			log.Printf("orchestrator: reply delivery failed for user %s: %v", userID, err)
		}
	}
	return result.Output
}

// handleControlToken intercepts reserved slash commands. These are terminal:
// no agent runs, nothing else happens for the turn.
func (o *Orchestrator) handleControlToken(userID, text string) (string, bool) {
	token := strings.ToLower(strings.TrimSpace(text))
	if !strings.HasPrefix(token, "/") {
		return "", false
	}
	switch token {
	case "/reset":
		o.Log.Clear(userID)
		o.Sessions.Clear(userID)
		return resetReply, true
	case "/clear":
		o.Log.Clear(userID)
		return clearReply, true
	case "/status":
		identity := o.Registry.Default()
		if sess, ok := o.Sessions.Get(userID); ok {
			identity, _ = o.Registry.ResolveOrDefault(sess.CurrentAgent)
		}
		return fmt.Sprintf("You're talking to %s. %d messages in your conversation history.",
			identity, o.Log.Len(userID)), true
	case "/help":
		return helpText(), true
	case "/agents":
		return o.agentsText(), true
	default:
		return unknownTokenReply, true
	}
}

func helpText() string {
	return strings.Join([]string{
		"I can provision Azure VMs and manage ServiceNow catalog items.",
		"Commands:",
		"  /reset  - start over with the concierge and forget our conversation",
		"  /clear  - forget the conversation but keep your current agent",
		"  /status - show which agent you're talking to",
		"  /agents - list the available agents",
	}, "\n")
}

func (o *Orchestrator) agentsText() string {
	lines := []string{"Available agents:"}
	for _, id := range o.Registry.Identities() {
		desc, err := o.Registry.Resolve(id)
		if err != nil {
			continue
		}
		lines = append(lines, fmt.Sprintf("  %s - %s", id, desc.Description))
	}
	return strings.Join(lines, "\n")
}

func (o *Orchestrator) userLock(userID string) *sync.Mutex {
	o.lockMu.Lock()
	defer o.lockMu.Unlock()
	if o.userLocks == nil {
		o.userLocks = map[string]*sync.Mutex{}
	}
	lock, ok := o.userLocks[userID]
	if !ok {
		lock = &sync.Mutex{}
		o.userLocks[userID] = lock
	}
	return lock
}
