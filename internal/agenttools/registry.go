package agenttools

import (
	"github.com/provisor-ai/deskbot/internal/engine"
	"github.com/provisor-ai/deskbot/internal/platform/azure"
	"github.com/provisor-ai/deskbot/internal/platform/servicenow"
	"github.com/provisor-ai/deskbot/internal/prompt"
	"github.com/provisor-ai/deskbot/internal/registry"
)

var vmOperations = []string{
	"list_vms", "get_vm_status", "create_vm", "start_vm", "stop_vm", "delete_vm",
}

var catalogOperations = []string{
	"get_servicenow_categories", "get_servicenow_catalog_types",
	"create_catalog_item", "publish_catalog_item",
}

var variableOperations = []string{
	"list_catalog_items", "search_catalog_items", "get_catalog_details",
	"add_string_variable", "add_boolean_variable", "add_multiple_choice_variable",
	"add_date_variable", "add_variables_batch", "publish_catalog_item",
}

// BuildRegistry assembles the four-agent capability registry. The concierge
// is the default identity; it owns no operations, only handoffs.
func BuildRegistry(p prompt.Platform) *registry.Registry {
	reg := registry.New(registry.Concierge)

	reg.Register(registry.Descriptor{
		Identity:     registry.Concierge,
		Description:  "Routes requests to the right specialist agent.",
		Instructions: prompt.Concierge(p),
		Handoffs: []registry.Identity{
			registry.AzureVM, registry.CatalogCreation, registry.CatalogVariables,
		},
	})
	reg.Register(registry.Descriptor{
		Identity:     registry.AzureVM,
		Description:  "Creates and manages Azure virtual machines.",
		Instructions: prompt.AzureVM(p),
		Operations:   vmOperations,
		Handoffs:     []registry.Identity{registry.Concierge},
	})
	reg.Register(registry.Descriptor{
		Identity:     registry.CatalogCreation,
		Description:  "Creates and publishes ServiceNow catalog items.",
		Instructions: prompt.CatalogCreation(p),
		Operations:   catalogOperations,
		Handoffs: []registry.Identity{
			registry.CatalogVariables, registry.Concierge,
		},
	})
	reg.Register(registry.Descriptor{
		Identity:     registry.CatalogVariables,
		Description:  "Adds and edits variables on existing catalog items.",
		Instructions: prompt.CatalogVariables(p),
		Operations:   variableOperations,
		Handoffs:     []registry.Identity{registry.Concierge},
	})

	return reg
}

// Tools builds the full operation lookup across every agent.
func Tools(sn *servicenow.Client, az *azure.Client) map[string]engine.Tool {
	return Merge(VMTools(az), CatalogTools(sn), VariableTools(sn))
}
