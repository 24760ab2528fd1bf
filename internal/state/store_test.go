package state_test

import (
	"context"
	"testing"

	"github.com/provisor-ai/deskbot/internal/convlog"
	"github.com/provisor-ai/deskbot/internal/registry"
	"github.com/provisor-ai/deskbot/internal/session"
	"github.com/provisor-ai/deskbot/internal/state"
	"github.com/provisor-ai/deskbot/internal/testutil"
)

func toolEntry(name, callID, args string) convlog.Entry {
	entry := convlog.NewEntry(convlog.RoleToolCall, "")
	entry.ToolName = name
	entry.ToolCallID = callID
	entry.ToolArgs = args
	return entry
}

func TestPersistAndRestore(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	store := state.NewStore(db)
	ctx := context.Background()

	entries := []convlog.Entry{
		convlog.NewEntry(convlog.RoleUser, "I need a new VM"),
		toolEntry("create_vm", "c1", `{"name":"web-01"}`),
		convlog.NewEntry(convlog.RoleAgent, "Created web-01."),
	}
	if err := store.PersistTurn(ctx, "u1", registry.AzureVM, entries); err != nil {
		t.Fatal(err)
	}

	sessions := session.NewStore(registry.Concierge)
	logs := convlog.New(50)
	if err := store.Restore(ctx, sessions, logs); err != nil {
		t.Fatal(err)
	}

	if got := sessions.CurrentAgent("u1"); got != registry.AzureVM {
		t.Fatalf("restored identity %s, want %s", got, registry.AzureVM)
	}
	history := logs.History("u1")
	if len(history) != 3 {
		t.Fatalf("expected 3 restored entries, got %d", len(history))
	}
	if history[1].ToolName != "create_vm" || history[1].ToolCallID != "c1" {
		t.Fatalf("tool bookkeeping lost in round trip: %+v", history[1])
	}
	if history[1].ToolArgs != `{"name":"web-01"}` {
		t.Fatalf("tool args lost: %q", history[1].ToolArgs)
	}
}

func TestPersistTurnReplacesEntries(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	store := state.NewStore(db)
	ctx := context.Background()

	first := []convlog.Entry{convlog.NewEntry(convlog.RoleUser, "one")}
	if err := store.PersistTurn(ctx, "u1", registry.Concierge, first); err != nil {
		t.Fatal(err)
	}
	second := []convlog.Entry{
		convlog.NewEntry(convlog.RoleUser, "one"),
		convlog.NewEntry(convlog.RoleAgent, "reply"),
	}
	if err := store.PersistTurn(ctx, "u1", registry.Concierge, second); err != nil {
		t.Fatal(err)
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM conversation_entries WHERE user_id = 'u1'`).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Fatalf("entries should be replaced, not appended: %d", count)
	}

	var turns int
	if err := db.QueryRow(`SELECT turn_count FROM sessions WHERE user_id = 'u1'`).Scan(&turns); err != nil {
		t.Fatal(err)
	}
	if turns != 2 {
		t.Fatalf("turn count should accumulate: %d", turns)
	}
}

func TestDeleteUser(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	store := state.NewStore(db)
	ctx := context.Background()

	entries := []convlog.Entry{convlog.NewEntry(convlog.RoleUser, "hello")}
	if err := store.PersistTurn(ctx, "u1", registry.Concierge, entries); err != nil {
		t.Fatal(err)
	}
	if err := store.DeleteUser(ctx, "u1"); err != nil {
		t.Fatal(err)
	}

	sessions := session.NewStore(registry.Concierge)
	logs := convlog.New(50)
	if err := store.Restore(ctx, sessions, logs); err != nil {
		t.Fatal(err)
	}
	if _, ok := sessions.Get("u1"); ok {
		t.Fatal("deleted user should not be restored")
	}
	if logs.Len("u1") != 0 {
		t.Fatal("deleted conversation should not be restored")
	}
}
