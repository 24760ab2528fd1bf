package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/provisor-ai/deskbot/internal/convlog"
	"github.com/provisor-ai/deskbot/internal/llm"
	"github.com/provisor-ai/deskbot/internal/platform"
	"github.com/provisor-ai/deskbot/internal/registry"
)

// fakeProvider replays a scripted sequence of responses and records every
// request it sees.
type fakeProvider struct {
	script   []*llm.Response
	requests []*llm.Request
	err      error
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Generate(_ context.Context, req *llm.Request) (*llm.Response, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.requests = append(f.requests, req)
	if len(f.script) == 0 {
		return &llm.Response{Content: "out of script"}, nil
	}
	resp := f.script[0]
	f.script = f.script[1:]
	return resp, nil
}

func textResponse(content string) *llm.Response {
	return &llm.Response{Content: content, StopReason: llm.StopReasonEndTurn}
}

func toolResponse(content string, calls ...llm.ToolCall) *llm.Response {
	return &llm.Response{Content: content, ToolCalls: calls, StopReason: llm.StopReasonToolUse}
}

func testRegistry() *registry.Registry {
	reg := registry.New(registry.Concierge)
	instructions := func(id registry.Identity) func(registry.Context) string {
		return func(registry.Context) string { return "You are " + string(id) + "." }
	}
	reg.Register(registry.Descriptor{
		Identity:     registry.Concierge,
		Description:  "Routes requests.",
		Instructions: instructions(registry.Concierge),
		Handoffs:     []registry.Identity{registry.AzureVM},
	})
	reg.Register(registry.Descriptor{
		Identity:     registry.AzureVM,
		Description:  "Manages VMs.",
		Instructions: instructions(registry.AzureVM),
		Operations:   []string{"create_vm", "list_vms"},
		Handoffs:     []registry.Identity{registry.Concierge},
	})
	return reg
}

func userConversation(text string) []convlog.Entry {
	return []convlog.Entry{convlog.NewEntry(convlog.RoleUser, text)}
}

func TestRunPlainTextEndsTurn(t *testing.T) {
	provider := &fakeProvider{script: []*llm.Response{textResponse("Hello! How can I help?")}}
	loop := NewLoop(provider, testRegistry(), nil)

	result, err := loop.Run(context.Background(), Request{
		UserID:       "u1",
		Identity:     registry.Concierge,
		Conversation: userConversation("hi"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.FinalIdentity != registry.Concierge {
		t.Fatalf("identity should not change: %s", result.FinalIdentity)
	}
	if result.Output != "Hello! How can I help?" {
		t.Fatalf("unexpected output: %q", result.Output)
	}
	if len(result.Transcript) != 2 {
		t.Fatalf("transcript should be user + agent, got %d entries", len(result.Transcript))
	}
	if result.Transcript[1].Role != convlog.RoleAgent {
		t.Fatalf("final entry should be the agent reply: %+v", result.Transcript[1])
	}
}

func TestRunDispatchesTool(t *testing.T) {
	var invoked json.RawMessage
	tools := map[string]Tool{
		"create_vm": {
			Name: "create_vm",
			Invoke: func(_ context.Context, args json.RawMessage) platform.Result {
				invoked = args
				return platform.OK(map[string]any{"vm": "web-01"})
			},
		},
	}
	provider := &fakeProvider{script: []*llm.Response{
		toolResponse("", llm.ToolCall{ID: "c1", Name: "create_vm", Arguments: `{"name":"web-01"}`}),
		textResponse("Created web-01 for you."),
	}}
	loop := NewLoop(provider, testRegistry(), tools)

	result, err := loop.Run(context.Background(), Request{
		UserID:       "u1",
		Identity:     registry.AzureVM,
		Conversation: userConversation("I need a new VM"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if string(invoked) != `{"name":"web-01"}` {
		t.Fatalf("tool received wrong arguments: %s", invoked)
	}
	if result.Output != "Created web-01 for you." {
		t.Fatalf("unexpected output: %q", result.Output)
	}

	// Transcript carries the call and its result for the next turn.
	var sawCall, sawResult bool
	for _, entry := range result.Transcript {
		switch entry.Role {
		case convlog.RoleToolCall:
			sawCall = entry.ToolName == "create_vm" && entry.ToolCallID == "c1"
		case convlog.RoleTool:
			sawResult = strings.Contains(entry.Content, `"success":true`)
		}
	}
	if !sawCall || !sawResult {
		t.Fatalf("transcript missing tool bookkeeping: call=%v result=%v", sawCall, sawResult)
	}
}

func TestRunHandoffSwitchesIdentity(t *testing.T) {
	provider := &fakeProvider{script: []*llm.Response{
		toolResponse("", llm.ToolCall{ID: "h1", Name: "transfer_to_AzureVMAgent", Arguments: "{}"}),
		textResponse("I can help with VMs."),
	}}
	loop := NewLoop(provider, testRegistry(), nil)

	result, err := loop.Run(context.Background(), Request{
		UserID:       "u1",
		Identity:     registry.Concierge,
		Conversation: userConversation("I need a new VM"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.FinalIdentity != registry.AzureVM {
		t.Fatalf("handoff should switch identity, got %s", result.FinalIdentity)
	}
	// The second request must run under the target's instructions.
	if len(provider.requests) != 2 {
		t.Fatalf("expected 2 reasoning steps, got %d", len(provider.requests))
	}
	if provider.requests[1].SystemPrompt != "You are AzureVMAgent." {
		t.Fatalf("instructions not rebuilt after handoff: %q", provider.requests[1].SystemPrompt)
	}
}

func TestRunRejectsUnpermittedHandoff(t *testing.T) {
	provider := &fakeProvider{script: []*llm.Response{
		toolResponse("", llm.ToolCall{ID: "h1", Name: "transfer_to_CatalogCreationAgent", Arguments: "{}"}),
		textResponse("I can't do that."),
	}}
	loop := NewLoop(provider, testRegistry(), nil)

	result, err := loop.Run(context.Background(), Request{
		UserID:       "u1",
		Identity:     registry.Concierge,
		Conversation: userConversation("make a catalog item"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.FinalIdentity != registry.Concierge {
		t.Fatalf("rejected handoff must not switch identity, got %s", result.FinalIdentity)
	}
	var sawFailure bool
	for _, entry := range result.Transcript {
		if entry.Role == convlog.RoleTool && strings.Contains(entry.Content, "may not hand off") {
			sawFailure = true
		}
	}
	if !sawFailure {
		t.Fatal("transcript should record the refused handoff")
	}
}

func TestRunRejectsUnpermittedOperation(t *testing.T) {
	tools := map[string]Tool{
		"create_vm": {
			Name: "create_vm",
			Invoke: func(context.Context, json.RawMessage) platform.Result {
				t.Fatal("tool must not run for an unpermitted identity")
				return platform.Result{}
			},
		},
	}
	provider := &fakeProvider{script: []*llm.Response{
		toolResponse("", llm.ToolCall{ID: "c1", Name: "create_vm", Arguments: "{}"}),
		textResponse("Sorry, I route requests only."),
	}}
	loop := NewLoop(provider, testRegistry(), tools)

	result, err := loop.Run(context.Background(), Request{
		UserID:       "u1",
		Identity:     registry.Concierge,
		Conversation: userConversation("create a vm directly"),
	})
	if err != nil {
		t.Fatal(err)
	}
	var sawDenial bool
	for _, entry := range result.Transcript {
		if entry.Role == convlog.RoleTool && strings.Contains(entry.Content, "not permitted") {
			sawDenial = true
		}
	}
	if !sawDenial {
		t.Fatal("transcript should record the permission denial")
	}
}

func TestRunMalformedArguments(t *testing.T) {
	tools := map[string]Tool{
		"create_vm": {
			Name: "create_vm",
			Invoke: func(context.Context, json.RawMessage) platform.Result {
				t.Fatal("tool must not run on malformed arguments")
				return platform.Result{}
			},
		},
	}
	provider := &fakeProvider{script: []*llm.Response{
		toolResponse("", llm.ToolCall{ID: "c1", Name: "create_vm", Arguments: `{"name":`}),
		textResponse("Let me try that again."),
	}}
	loop := NewLoop(provider, testRegistry(), tools)

	result, err := loop.Run(context.Background(), Request{
		UserID:       "u1",
		Identity:     registry.AzureVM,
		Conversation: userConversation("create broken"),
	})
	if err != nil {
		t.Fatal(err)
	}
	var sawMalformed bool
	for _, entry := range result.Transcript {
		if entry.Role == convlog.RoleTool && strings.Contains(entry.Content, "malformed") {
			sawMalformed = true
		}
	}
	if !sawMalformed {
		t.Fatal("transcript should record the malformed arguments failure")
	}
}

func TestRunBudgetExhaustion(t *testing.T) {
	// The provider asks for the same tool forever.
	var script []*llm.Response
	for i := 0; i < 20; i++ {
		script = append(script, toolResponse("Still working on it.",
			llm.ToolCall{ID: fmt.Sprintf("c%d", i), Name: "list_vms", Arguments: "{}"}))
	}
	tools := map[string]Tool{
		"list_vms": {
			Name: "list_vms",
			Invoke: func(context.Context, json.RawMessage) platform.Result {
				return platform.OK(nil)
			},
		},
	}
	provider := &fakeProvider{script: script}
	loop := NewLoop(provider, testRegistry(), tools)

	result, err := loop.Run(context.Background(), Request{
		UserID:        "u1",
		Identity:      registry.AzureVM,
		Conversation:  userConversation("list forever"),
		MaxIterations: 3,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(provider.requests) != 3 {
		t.Fatalf("budget of 3 should cap reasoning steps, got %d", len(provider.requests))
	}
	if result.Output != "Still working on it." {
		t.Fatalf("exhaustion should surface the last agent text, got %q", result.Output)
	}
}

func TestRunProviderError(t *testing.T) {
	provider := &fakeProvider{err: fmt.Errorf("provider unavailable")}
	loop := NewLoop(provider, testRegistry(), nil)

	_, err := loop.Run(context.Background(), Request{
		UserID:       "u1",
		Identity:     registry.Concierge,
		Conversation: userConversation("hi"),
	})
	if err == nil {
		t.Fatal("provider failure should surface as an error")
	}
}

func TestToolDefsIncludeTransfers(t *testing.T) {
	tools := map[string]Tool{
		"create_vm": {Name: "create_vm", Description: "Create a VM"},
		"list_vms":  {Name: "list_vms", Description: "List VMs"},
	}
	provider := &fakeProvider{script: []*llm.Response{textResponse("ok")}}
	loop := NewLoop(provider, testRegistry(), tools)

	if _, err := loop.Run(context.Background(), Request{
		UserID:       "u1",
		Identity:     registry.AzureVM,
		Conversation: userConversation("hi"),
	}); err != nil {
		t.Fatal(err)
	}

	names := map[string]bool{}
	for _, def := range provider.requests[0].Tools {
		names[def.Name] = true
	}
	for _, want := range []string{"create_vm", "list_vms", "transfer_to_ConciergeAgent"} {
		if !names[want] {
			t.Fatalf("tool defs missing %s: %v", want, names)
		}
	}
	if names["transfer_to_AzureVMAgent"] {
		t.Fatal("an agent must not advertise a transfer to itself")
	}
}
