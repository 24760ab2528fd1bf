package agenttools

import (
	"context"
	"encoding/json"

	"github.com/provisor-ai/deskbot/internal/engine"
	"github.com/provisor-ai/deskbot/internal/platform"
	"github.com/provisor-ai/deskbot/internal/platform/servicenow"
)

type createCatalogItemParams struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	CatalogType string `json:"catalog_type,omitempty"`
}

type catalogItemRefParams struct {
	Item string `json:"item"`
}

// CatalogTools exposes the catalog creation operations.
func CatalogTools(client *servicenow.Client) map[string]engine.Tool {
	itemSchema := objectSchema(map[string]any{
		"item": stringProp("Catalog item name or sys_id"),
	}, "item")

	return map[string]engine.Tool{
		"get_servicenow_categories": {
			Name:        "get_servicenow_categories",
			Description: "List the active ServiceNow catalog categories",
			Parameters:  objectSchema(map[string]any{}),
			Invoke: func(ctx context.Context, _ json.RawMessage) platform.Result {
				return client.Categories(ctx)
			},
		},
		"get_servicenow_catalog_types": {
			Name:        "get_servicenow_catalog_types",
			Description: "List the active ServiceNow catalogs an item can belong to",
			Parameters:  objectSchema(map[string]any{}),
			Invoke: func(ctx context.Context, _ json.RawMessage) platform.Result {
				return client.CatalogTypes(ctx)
			},
		},
		"create_catalog_item": {
			Name:        "create_catalog_item",
			Description: "Create a new catalog item (without variables)",
			Parameters: objectSchema(map[string]any{
				"name":         stringProp("Catalog item name"),
				"description":  stringProp("Short description shown to requesters"),
				"category":     stringProp("Category sys_id or name"),
				"catalog_type": stringProp("Catalog sys_id the item belongs to"),
			}, "name", "description", "category"),
			Invoke: func(ctx context.Context, args json.RawMessage) platform.Result {
				p, ok := decodeArgs[createCatalogItemParams](args)
				if !ok {
					return badArgs("create_catalog_item")
				}
				return client.CreateCatalogItem(ctx, p.Name, p.Description, p.Category, p.CatalogType)
			},
		},
		"publish_catalog_item": {
			Name:        "publish_catalog_item",
			Description: "Publish a catalog item so requesters can see it",
			Parameters:  itemSchema,
			Invoke: func(ctx context.Context, args json.RawMessage) platform.Result {
				p, ok := decodeArgs[catalogItemRefParams](args)
				if !ok {
					return badArgs("publish_catalog_item")
				}
				return client.PublishCatalogItem(ctx, p.Item)
			},
		},
	}
}
