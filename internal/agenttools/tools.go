// Package agenttools binds the platform clients to the operations each agent
// identity may call, and assembles the capability registry.
package agenttools

import (
	"encoding/json"

	"github.com/provisor-ai/deskbot/internal/engine"
	"github.com/provisor-ai/deskbot/internal/platform"
)

func objectSchema(properties map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func stringProp(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

func boolProp(description string) map[string]any {
	return map[string]any{"type": "boolean", "description": description}
}

func intProp(description string) map[string]any {
	return map[string]any{"type": "integer", "description": description}
}

func decodeArgs[T any](args json.RawMessage) (T, bool) {
	var v T
	if len(args) == 0 {
		return v, true
	}
	if err := json.Unmarshal(args, &v); err != nil {
		return v, false
	}
	return v, true
}

func badArgs(operation string) platform.Result {
	return platform.Fail("invalid arguments for %s", operation)
}

// Merge combines tool groups into the single lookup the engine dispatches
// from. Later groups win on name collisions; there should be none.
func Merge(groups ...map[string]engine.Tool) map[string]engine.Tool {
	out := map[string]engine.Tool{}
	for _, group := range groups {
		for name, tool := range group {
			out[name] = tool
		}
	}
	return out
}
