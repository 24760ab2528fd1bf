package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/provisor-ai/deskbot/internal/convlog"
	"github.com/provisor-ai/deskbot/internal/llm"
	"github.com/provisor-ai/deskbot/internal/platform"
	"github.com/provisor-ai/deskbot/internal/registry"
)

const handoffToolPrefix = "transfer_to_"

// DefaultMaxIterations bounds the reasoning/tool loop when the caller does
// not set a budget.
const DefaultMaxIterations = 10

const exhaustedBudgetReply = "I wasn't able to finish that in one go. Could you send your request again?"

// Loop is the provider-backed Engine. Each iteration sends the running
// transcript to the LLM; tool calls are dispatched to platform operations,
// handoff calls swap the active identity, and plain text ends the turn.
type Loop struct {
	Provider llm.Provider
	Registry *registry.Registry
	Tools    map[string]Tool
}

func NewLoop(provider llm.Provider, reg *registry.Registry, tools map[string]Tool) *Loop {
	return &Loop{Provider: provider, Registry: reg, Tools: tools}
}

func (l *Loop) Run(ctx context.Context, req Request) (Result, error) {
	if l.Provider == nil {
		return Result{}, fmt.Errorf("no llm provider configured")
	}

	active, desc := l.Registry.ResolveOrDefault(req.Identity)
	instructions := req.Instructions
	if instructions == "" {
		instructions = l.instructionsFor(desc, req)
	}

	transcript := make([]convlog.Entry, len(req.Conversation))
	copy(transcript, req.Conversation)

	maxIterations := req.MaxIterations
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}

	lastText := ""
	for i := 0; i < maxIterations; i++ {
		resp, err := l.Provider.Generate(ctx, &llm.Request{
			SystemPrompt: instructions,
			Messages:     toMessages(transcript),
			Tools:        l.toolDefs(desc),
		})
		if err != nil {
			return Result{}, fmt.Errorf("reasoning step %d under %s: %w", i+1, active, err)
		}

		if len(resp.ToolCalls) == 0 {
			output := resp.Content
			if strings.TrimSpace(output) == "" {
				output = exhaustedBudgetReply
			}
			transcript = append(transcript, convlog.NewEntry(convlog.RoleAgent, output))
			return Result{FinalIdentity: active, Output: output, Transcript: transcript}, nil
		}

		if strings.TrimSpace(resp.Content) != "" {
			lastText = resp.Content
			transcript = append(transcript, convlog.NewEntry(convlog.RoleAgent, resp.Content))
		}

		for _, call := range resp.ToolCalls {
			callEntry := convlog.NewEntry(convlog.RoleToolCall, "")
			callEntry.ToolCallID = call.ID
			callEntry.ToolName = call.Name
			callEntry.ToolArgs = call.Arguments
			transcript = append(transcript, callEntry)

			var result platform.Result
			if target, isHandoff := handoffTarget(call.Name); isHandoff {
				result, active, desc, instructions = l.executeHandoff(active, desc, target, req)
			} else {
				result = l.executeOperation(ctx, active, desc, call, req)
			}

			payload, err := json.Marshal(result)
			if err != nil {
				payload = []byte(`{"success":false,"error":"unencodable result"}`)
			}
			resultEntry := convlog.NewEntry(convlog.RoleTool, string(payload))
			resultEntry.ToolCallID = call.ID
			resultEntry.ToolName = call.Name
			transcript = append(transcript, resultEntry)
		}
	}

	// Budget exhausted: force completion with the last thing the agent said.
	output := lastText
	if strings.TrimSpace(output) == "" {
		output = exhaustedBudgetReply
	}
	log.Printf("engine: turn budget exhausted for user %s under %s", req.UserID, active)
	return Result{FinalIdentity: active, Output: output, Transcript: transcript}, nil
}

func (l *Loop) executeHandoff(active registry.Identity, desc registry.Descriptor, target registry.Identity, req Request) (platform.Result, registry.Identity, registry.Descriptor, string) {
	if !desc.PermitsHandoff(target) {
		return platform.Fail("%s may not hand off to %s", active, target), active, desc, l.instructionsFor(desc, req)
	}
	targetDesc, err := l.Registry.Resolve(target)
	if err != nil {
		return platform.Fail("handoff target %s is not registered", target), active, desc, l.instructionsFor(desc, req)
	}
	log.Printf("engine: handoff %s -> %s for user %s", active, target, req.UserID)
	result := platform.OK(map[string]any{"transferred_to": string(target)})
	return result, target, targetDesc, l.instructionsFor(targetDesc, req)
}

func (l *Loop) executeOperation(ctx context.Context, active registry.Identity, desc registry.Descriptor, call llm.ToolCall, req Request) platform.Result {
	if !desc.PermitsOperation(call.Name) {
		return platform.Fail("operation %s is not permitted for %s", call.Name, active)
	}
	tool, ok := l.Tools[call.Name]
	if !ok || tool.Invoke == nil {
		return platform.Fail("operation %s is not wired", call.Name)
	}
	if args := call.Arguments; strings.TrimSpace(args) != "" && !json.Valid([]byte(args)) {
		return platform.Fail("operation %s received malformed arguments", call.Name)
	}
	req.Notifier.OnOperationStart(ctx, active, call.Name)
	return tool.Invoke(ctx, json.RawMessage(call.Arguments))
}

func (l *Loop) instructionsFor(desc registry.Descriptor, req Request) string {
	if desc.Instructions == nil {
		return ""
	}
	return desc.Instructions(registry.Context{
		UserID:      req.UserID,
		DisplayName: req.DisplayName,
	})
}

// toolDefs advertises the active identity's permitted operations plus one
// synthetic transfer tool per handoff target.
func (l *Loop) toolDefs(desc registry.Descriptor) []llm.Tool {
	defs := make([]llm.Tool, 0, len(desc.Operations)+len(desc.Handoffs))
	for _, name := range desc.Operations {
		tool, ok := l.Tools[name]
		if !ok {
			continue
		}
		defs = append(defs, llm.Tool{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  tool.Parameters,
		})
	}
	for _, target := range desc.Handoffs {
		targetDesc, err := l.Registry.Resolve(target)
		description := "Hand the conversation to " + string(target) + "."
		if err == nil && targetDesc.Description != "" {
			description += " " + targetDesc.Description
		}
		defs = append(defs, llm.Tool{
			Name:        handoffToolPrefix + string(target),
			Description: description,
			Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
		})
	}
	return defs
}

func handoffTarget(toolName string) (registry.Identity, bool) {
	if !strings.HasPrefix(toolName, handoffToolPrefix) {
		return "", false
	}
	return registry.Identity(strings.TrimPrefix(toolName, handoffToolPrefix)), true
}

func toMessages(entries []convlog.Entry) []llm.Message {
	out := make([]llm.Message, 0, len(entries))
	for _, entry := range entries {
		switch entry.Role {
		case convlog.RoleUser:
			out = append(out, llm.Message{Role: llm.RoleUser, Content: entry.Content})
		case convlog.RoleAgent:
			out = append(out, llm.Message{Role: llm.RoleAssistant, Content: entry.Content})
		case convlog.RoleSystem:
			out = append(out, llm.Message{Role: llm.RoleSystem, Content: entry.Content})
		case convlog.RoleToolCall:
			out = append(out, llm.Message{
				Role:    llm.RoleAssistant,
				Content: entry.Content,
				ToolCalls: []llm.ToolCall{{
					ID:        entry.ToolCallID,
					Name:      entry.ToolName,
					Arguments: entry.ToolArgs,
				}},
			})
		case convlog.RoleTool:
			out = append(out, llm.Message{
				Role:       llm.RoleTool,
				Content:    entry.Content,
				ToolCallID: entry.ToolCallID,
			})
		}
	}
	return out
}
