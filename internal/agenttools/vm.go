package agenttools

import (
	"context"
	"encoding/json"

	"github.com/provisor-ai/deskbot/internal/engine"
	"github.com/provisor-ai/deskbot/internal/platform"
	"github.com/provisor-ai/deskbot/internal/platform/azure"
)

type vmNameParams struct {
	Name string `json:"name"`
}

type createVMParams struct {
	Name     string `json:"name"`
	Size     string `json:"size,omitempty"`
	Location string `json:"location,omitempty"`
}

// VMTools exposes the Azure VM operations the VM agent may call.
func VMTools(client *azure.Client) map[string]engine.Tool {
	nameSchema := objectSchema(map[string]any{
		"name": stringProp("Name of the virtual machine"),
	}, "name")

	return map[string]engine.Tool{
		"list_vms": {
			Name:        "list_vms",
			Description: "List the virtual machines in the managed resource group",
			Parameters:  objectSchema(map[string]any{}),
			Invoke: func(ctx context.Context, _ json.RawMessage) platform.Result {
				return client.ListVMs(ctx)
			},
		},
		"get_vm_status": {
			Name:        "get_vm_status",
			Description: "Get the power state of a virtual machine",
			Parameters:  nameSchema,
			Invoke: func(ctx context.Context, args json.RawMessage) platform.Result {
				p, ok := decodeArgs[vmNameParams](args)
				if !ok {
					return badArgs("get_vm_status")
				}
				return client.GetVMStatus(ctx, p.Name)
			},
		},
		"create_vm": {
			Name:        "create_vm",
			Description: "Provision a new Ubuntu virtual machine",
			Parameters: objectSchema(map[string]any{
				"name":     stringProp("Name for the new virtual machine"),
				"size":     stringProp("VM size, e.g. Standard_B2s"),
				"location": stringProp("Azure region, e.g. eastus"),
			}, "name"),
			Invoke: func(ctx context.Context, args json.RawMessage) platform.Result {
				p, ok := decodeArgs[createVMParams](args)
				if !ok {
					return badArgs("create_vm")
				}
				return client.CreateVM(ctx, p.Name, p.Size, p.Location)
			},
		},
		"start_vm": {
			Name:        "start_vm",
			Description: "Start a stopped virtual machine",
			Parameters:  nameSchema,
			Invoke: func(ctx context.Context, args json.RawMessage) platform.Result {
				p, ok := decodeArgs[vmNameParams](args)
				if !ok {
					return badArgs("start_vm")
				}
				return client.StartVM(ctx, p.Name)
			},
		},
		"stop_vm": {
			Name:        "stop_vm",
			Description: "Stop and deallocate a running virtual machine",
			Parameters:  nameSchema,
			Invoke: func(ctx context.Context, args json.RawMessage) platform.Result {
				p, ok := decodeArgs[vmNameParams](args)
				if !ok {
					return badArgs("stop_vm")
				}
				return client.StopVM(ctx, p.Name)
			},
		},
		"delete_vm": {
			Name:        "delete_vm",
			Description: "Delete a virtual machine permanently",
			Parameters:  nameSchema,
			Invoke: func(ctx context.Context, args json.RawMessage) platform.Result {
				p, ok := decodeArgs[vmNameParams](args)
				if !ok {
					return badArgs("delete_vm")
				}
				return client.DeleteVM(ctx, p.Name)
			},
		},
	}
}
