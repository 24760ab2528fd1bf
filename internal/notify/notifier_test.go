package notify

import (
	"context"
	"testing"

	"github.com/provisor-ai/deskbot/internal/registry"
)

type recordingSender struct {
	sent []string
}

func (r *recordingSender) Send(_ context.Context, _ string, text string) error {
	r.sent = append(r.sent, text)
	return nil
}

func vmRegistry() *registry.Registry {
	reg := registry.New(registry.AzureVM)
	reg.Register(registry.Descriptor{
		Identity:     registry.AzureVM,
		Instructions: func(registry.Context) string { return "" },
		Operations:   []string{"create_vm", "delete_vm", "get_vm_status"},
	})
	return reg
}

func TestVisibleLatency(t *testing.T) {
	cases := map[string]bool{
		"create_vm":            true,
		"start_vm":             true,
		"delete_vm":            true,
		"publish_catalog_item": true,
		"add_string_variable":  true,
		"get_vm_status":        false,
		"list_vms":             false,
		"search_catalog_items": false,
	}
	for op, want := range cases {
		if got := VisibleLatency(op); got != want {
			t.Errorf("VisibleLatency(%q) = %v, want %v", op, got, want)
		}
	}
}

func TestNoticeFiresOncePerOperation(t *testing.T) {
	sender := &recordingSender{}
	n := NewForTurn("u1", sender, vmRegistry())

	n.OnOperationStart(context.Background(), registry.AzureVM, "create_vm")
	n.OnOperationStart(context.Background(), registry.AzureVM, "create_vm")
	n.OnOperationStart(context.Background(), registry.AzureVM, "delete_vm")

	if len(sender.sent) != 2 {
		t.Fatalf("expected 2 notices, got %d: %v", len(sender.sent), sender.sent)
	}
	if sender.sent[0] != "Please wait, I'm creating the vm..." {
		t.Fatalf("unexpected notice text: %q", sender.sent[0])
	}
	if sender.sent[1] != "Please wait, I'm deleting the vm..." {
		t.Fatalf("unexpected notice text: %q", sender.sent[1])
	}
}

func TestNoNoticeForQuickOperations(t *testing.T) {
	sender := &recordingSender{}
	n := NewForTurn("u1", sender, vmRegistry())

	n.OnOperationStart(context.Background(), registry.AzureVM, "get_vm_status")

	if len(sender.sent) != 0 {
		t.Fatalf("read-only operation should not notify: %v", sender.sent)
	}
}

func TestNoNoticeForUnpermittedOperation(t *testing.T) {
	sender := &recordingSender{}
	n := NewForTurn("u1", sender, vmRegistry())

	n.OnOperationStart(context.Background(), registry.AzureVM, "create_catalog_item")

	if len(sender.sent) != 0 {
		t.Fatalf("unpermitted operation should not notify: %v", sender.sent)
	}
}

func TestNilNotifierIsSafe(t *testing.T) {
	var n *Notifier
	n.OnOperationStart(context.Background(), registry.AzureVM, "create_vm")
}
