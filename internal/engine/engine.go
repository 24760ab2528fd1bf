package engine

import (
	"context"
	"encoding/json"

	"github.com/provisor-ai/deskbot/internal/convlog"
	"github.com/provisor-ai/deskbot/internal/notify"
	"github.com/provisor-ai/deskbot/internal/platform"
	"github.com/provisor-ai/deskbot/internal/registry"
)

// Tool is one invocable operation: schema for the model, Invoke for dispatch.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
	Invoke      func(ctx context.Context, args json.RawMessage) platform.Result
}

// Request describes one turn handed to the reasoning engine. Instructions
// cover the starting identity; when a handoff happens mid-run the engine
// rebuilds instructions for the new identity itself.
type Request struct {
	UserID        string
	DisplayName   string
	Identity      registry.Identity
	Instructions  string
	Conversation  []convlog.Entry
	Notifier      *notify.Notifier
	MaxIterations int
}

// Result is what a completed turn produced. Transcript is canonical: it is
// the exact sequence the next turn must be seeded with, including tool
// bookkeeping the orchestrator treats opaquely.
type Result struct {
	FinalIdentity registry.Identity
	Output        string
	Transcript    []convlog.Entry
}

// Engine runs one bounded reasoning turn. Implementations must terminate
// within MaxIterations internal steps; running out of budget is a forced
// completion, not an error.
type Engine interface {
	Run(ctx context.Context, req Request) (Result, error)
}
