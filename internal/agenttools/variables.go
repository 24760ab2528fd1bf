package agenttools

import (
	"context"
	"encoding/json"

	"github.com/provisor-ai/deskbot/internal/engine"
	"github.com/provisor-ai/deskbot/internal/platform"
	"github.com/provisor-ai/deskbot/internal/platform/servicenow"
)

type searchParams struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

type listParams struct {
	Limit int `json:"limit,omitempty"`
}

type addVariableParams struct {
	Item         string   `json:"item"`
	Name         string   `json:"name"`
	Label        string   `json:"label"`
	DefaultValue string   `json:"default_value,omitempty"`
	Required     bool     `json:"required,omitempty"`
	HelpText     string   `json:"help_text,omitempty"`
	Choices      []string `json:"choices,omitempty"`
}

type batchVariableParams struct {
	Item      string                `json:"item"`
	Variables []servicenow.Variable `json:"variables"`
}

// VariableTools exposes the catalog variable operations.
func VariableTools(client *servicenow.Client) map[string]engine.Tool {
	tools := map[string]engine.Tool{
		"list_catalog_items": {
			Name:        "list_catalog_items",
			Description: "List active catalog items",
			Parameters: objectSchema(map[string]any{
				"limit": intProp("Maximum number of items to return"),
			}),
			Invoke: func(ctx context.Context, args json.RawMessage) platform.Result {
				p, ok := decodeArgs[listParams](args)
				if !ok {
					return badArgs("list_catalog_items")
				}
				return client.ListCatalogItems(ctx, p.Limit)
			},
		},
		"search_catalog_items": {
			Name:        "search_catalog_items",
			Description: "Search catalog items by name",
			Parameters: objectSchema(map[string]any{
				"query": stringProp("Text to match against item names"),
				"limit": intProp("Maximum number of items to return"),
			}, "query"),
			Invoke: func(ctx context.Context, args json.RawMessage) platform.Result {
				p, ok := decodeArgs[searchParams](args)
				if !ok {
					return badArgs("search_catalog_items")
				}
				return client.SearchCatalogItems(ctx, p.Query, p.Limit)
			},
		},
		"get_catalog_details": {
			Name:        "get_catalog_details",
			Description: "Fetch a catalog item with its existing variables",
			Parameters: objectSchema(map[string]any{
				"item": stringProp("Catalog item name or sys_id"),
			}, "item"),
			Invoke: func(ctx context.Context, args json.RawMessage) platform.Result {
				p, ok := decodeArgs[catalogItemRefParams](args)
				if !ok {
					return badArgs("get_catalog_details")
				}
				return client.GetCatalogItem(ctx, p.Item)
			},
		},
		"add_variables_batch": {
			Name:        "add_variables_batch",
			Description: "Add several variables to a catalog item in one call",
			Parameters: objectSchema(map[string]any{
				"item": stringProp("Catalog item name or sys_id"),
				"variables": map[string]any{
					"type":        "array",
					"description": "Variables to create, each with name, label, type, and optional choices",
					"items": objectSchema(map[string]any{
						"name":          stringProp("Variable name"),
						"label":         stringProp("Question text shown to requesters"),
						"type":          stringProp("One of string, boolean, multiple_choice, date"),
						"default_value": stringProp("Optional default value"),
						"required":      boolProp("Whether the variable is mandatory"),
						"choices": map[string]any{
							"type":        "array",
							"description": "Choices for multiple_choice variables",
							"items":       map[string]any{"type": "string"},
						},
					}, "name", "label", "type"),
				},
			}, "item", "variables"),
			Invoke: func(ctx context.Context, args json.RawMessage) platform.Result {
				p, ok := decodeArgs[batchVariableParams](args)
				if !ok {
					return badArgs("add_variables_batch")
				}
				return client.AddVariables(ctx, p.Item, p.Variables)
			},
		},
	}

	for varType, op := range map[string]string{
		"string":          "add_string_variable",
		"boolean":         "add_boolean_variable",
		"multiple_choice": "add_multiple_choice_variable",
		"date":            "add_date_variable",
	} {
		tools[op] = addVariableTool(client, op, varType)
	}
	return tools
}

func addVariableTool(client *servicenow.Client, operation, varType string) engine.Tool {
	properties := map[string]any{
		"item":          stringProp("Catalog item name or sys_id"),
		"name":          stringProp("Variable name"),
		"label":         stringProp("Question text shown to requesters"),
		"default_value": stringProp("Optional default value"),
		"required":      boolProp("Whether the variable is mandatory"),
		"help_text":     stringProp("Optional help text"),
	}
	required := []string{"item", "name", "label"}
	if varType == "multiple_choice" {
		properties["choices"] = map[string]any{
			"type":        "array",
			"description": "The selectable choices",
			"items":       map[string]any{"type": "string"},
		}
		required = append(required, "choices")
	}

	return engine.Tool{
		Name:        operation,
		Description: "Add a " + varType + " variable to a catalog item",
		Parameters:  objectSchema(properties, required...),
		Invoke: func(ctx context.Context, args json.RawMessage) platform.Result {
			p, ok := decodeArgs[addVariableParams](args)
			if !ok {
				return badArgs(operation)
			}
			return client.AddVariable(ctx, p.Item, servicenow.Variable{
				Name:         p.Name,
				Label:        p.Label,
				Type:         varType,
				DefaultValue: p.DefaultValue,
				Required:     p.Required,
				HelpText:     p.HelpText,
				Choices:      p.Choices,
			})
		},
	}
}
