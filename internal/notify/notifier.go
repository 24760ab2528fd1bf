package notify

import (
	"context"
	"log"
	"strings"

	"github.com/provisor-ai/deskbot/internal/registry"
	"github.com/provisor-ai/deskbot/internal/transport"
)

// Operations whose names start with one of these run long enough that the
// user should hear something before the result lands. Read-only lookups
// (get_, list_, search_) never qualify.
var visibleLatencyPrefixes = []string{
	"create_", "start_", "stop_", "delete_", "publish_", "provision_", "add_",
}

func VisibleLatency(operation string) bool {
	for _, prefix := range visibleLatencyPrefixes {
		if strings.HasPrefix(operation, prefix) {
			return true
		}
	}
	return false
}

// Notifier emits at most one interstitial wait notice per operation per turn.
// Construct a fresh one for every turn; the fired set is turn-scoped state
// and must never outlive the turn.
type Notifier struct {
	userID   string
	sender   transport.Sender
	registry *registry.Registry
	fired    map[string]struct{}
}

func NewForTurn(userID string, sender transport.Sender, reg *registry.Registry) *Notifier {
	return &Notifier{
		userID:   userID,
		sender:   sender,
		registry: reg,
		fired:    map[string]struct{}{},
	}
}

// OnOperationStart is called by the reasoning engine just before it dispatches
// an operation. Delivery failures are swallowed; a notice must never fail the
// operation it announces.
func (n *Notifier) OnOperationStart(ctx context.Context, id registry.Identity, operation string) {
	if n == nil {
		return
	}
	if !VisibleLatency(operation) {
		return
	}
	if n.registry != nil {
		desc, err := n.registry.Resolve(id)
		if err != nil || !desc.PermitsOperation(operation) {
			return
		}
	}
	if _, done := n.fired[operation]; done {
		return
	}
	n.fired[operation] = struct{}{}

	text := noticeText(operation)
	sender := n.sender
	if sender == nil {
		sender = transport.LogSender{}
	}
	if err := sender.Send(ctx, n.userID, text); err != nil {
		log.Printf("notify: dropping wait notice for %s op %s: %v", n.userID, operation, err)
	}
}

func noticeText(operation string) string {
	verb := operation
	if i := strings.Index(verb, "_"); i > 0 {
		verb = verb[:i]
	}
	subject := strings.ReplaceAll(strings.TrimPrefix(operation, verb+"_"), "_", " ")
	if subject == "" {
		return "Please wait, I'm working on it..."
	}
	switch verb {
	case "create", "add":
		return "Please wait, I'm creating the " + subject + "..."
	case "provision":
		return "Please wait, I'm provisioning the " + subject + "..."
	case "publish":
		return "Please wait, I'm publishing the " + subject + "..."
	case "start":
		return "Please wait, I'm starting the " + subject + "..."
	case "stop":
		return "Please wait, I'm stopping the " + subject + "..."
	case "delete":
		return "Please wait, I'm deleting the " + subject + "..."
	default:
		return "Please wait, I'm working on the " + subject + "..."
	}
}
