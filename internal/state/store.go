package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/provisor-ai/deskbot/internal/convlog"
	"github.com/provisor-ai/deskbot/internal/registry"
	"github.com/provisor-ai/deskbot/internal/session"
)

// Store persists sessions and conversation logs across restarts. The
// in-memory stores stay authoritative at runtime; this is a write-through
// copy loaded once at startup.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// PersistTurn saves the post-turn session row and replaces the user's
// conversation entries in one transaction.
func (s *Store) PersistTurn(ctx context.Context, userID string, identity registry.Identity, entries []convlog.Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (user_id, current_agent, last_activity, turn_count)
		VALUES (?, ?, ?, 1)
		ON CONFLICT(user_id) DO UPDATE SET
		  current_agent = excluded.current_agent,
		  last_activity = excluded.last_activity,
		  turn_count = turn_count + 1
	`, userID, string(identity), now)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM conversation_entries WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("clear entries: %w", err)
	}
	for seq, entry := range entries {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO conversation_entries (id, user_id, seq, role, content, tool_call_id, tool_name, tool_args, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, entry.ID, userID, seq, string(entry.Role), entry.Content,
			nullString(entry.ToolCallID), nullString(entry.ToolName), nullString(entry.ToolArgs),
			entry.Timestamp.Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("insert entry %d: %w", seq, err)
		}
	}
	return tx.Commit()
}

// DeleteUser drops a user's persisted session and conversation.
func (s *Store) DeleteUser(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM conversation_entries WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete entries: %w", err)
	}
	return nil
}

// Restore warms the in-memory stores from the last persisted state.
func (s *Store) Restore(ctx context.Context, sessions *session.Store, logs *convlog.Log) error {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id, current_agent FROM sessions`)
	if err != nil {
		return fmt.Errorf("load sessions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var userID, agent string
		if err := rows.Scan(&userID, &agent); err != nil {
			return fmt.Errorf("scan session: %w", err)
		}
		sessions.SetCurrentAgent(userID, registry.Identity(agent))
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate sessions: %w", err)
	}

	entryRows, err := s.db.QueryContext(ctx, `
		SELECT user_id, id, role, content, tool_call_id, tool_name, tool_args, created_at
		FROM conversation_entries ORDER BY user_id, seq
	`)
	if err != nil {
		return fmt.Errorf("load entries: %w", err)
	}
	defer entryRows.Close()

	byUser := map[string][]convlog.Entry{}
	for entryRows.Next() {
		var userID, id, role, createdAt string
		var content, toolCallID, toolName, toolArgs sql.NullString
		if err := entryRows.Scan(&userID, &id, &role, &content, &toolCallID, &toolName, &toolArgs, &createdAt); err != nil {
			return fmt.Errorf("scan entry: %w", err)
		}
		entry := convlog.Entry{
			ID:         id,
			Role:       convlog.Role(role),
			Content:    content.String,
			ToolCallID: toolCallID.String,
			ToolName:   toolName.String,
			ToolArgs:   toolArgs.String,
		}
		entry.Timestamp, _ = time.Parse(time.RFC3339Nano, createdAt)
		byUser[userID] = append(byUser[userID], entry)
	}
	if err := entryRows.Err(); err != nil {
		return fmt.Errorf("iterate entries: %w", err)
	}
	for userID, entries := range byUser {
		logs.Replace(userID, entries)
	}
	return nil
}

func nullString(v string) any {
	if v == "" {
		return nil
	}
	return v
}
