package convlog

import (
	"sync"
	"time"

	"github.com/provisor-ai/deskbot/internal/idgen"
)

type Role string

const (
	RoleUser     Role = "user"
	RoleAgent    Role = "agent"
	RoleSystem   Role = "system"
	RoleTool     Role = "tool"
	RoleToolCall Role = "tool_call"
)

// Entry is one element of a user's conversation. Tool bookkeeping entries are
// produced by the reasoning engine and stored verbatim; the orchestrator never
// interprets them.
type Entry struct {
	ID         string    `json:"id"`
	Role       Role      `json:"role"`
	Content    string    `json:"content"`
	ToolCallID string    `json:"tool_call_id,omitempty"`
	ToolName   string    `json:"tool_name,omitempty"`
	ToolArgs   string    `json:"tool_args,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewEntry stamps an id and timestamp onto a role/content pair.
func NewEntry(role Role, content string) Entry {
	return Entry{
		ID:        idgen.New(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
}

// Log stores the per-user conversation sequences. Each sequence is capped;
// once the cap is exceeded the oldest entries are dropped first.
type Log struct {
	maxEntries int

	mu            sync.RWMutex
	conversations map[string][]Entry
}

func New(maxEntries int) *Log {
	if maxEntries <= 0 {
		maxEntries = 100
	}
	return &Log{
		maxEntries:    maxEntries,
		conversations: map[string][]Entry{},
	}
}

// History returns a copy of the stored sequence, empty if none.
func (l *Log) History(userID string) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	stored := l.conversations[userID]
	out := make([]Entry, len(stored))
	copy(out, stored)
	return out
}

// Append adds one entry to the end, evicting from the front past the cap.
func (l *Log) Append(userID string, entry Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entries := append(l.conversations[userID], entry)
	if excess := len(entries) - l.maxEntries; excess > 0 {
		entries = append([]Entry(nil), entries[excess:]...)
	}
	l.conversations[userID] = entries
}

// Replace overwrites the stored sequence wholesale. The reasoning engine's
// returned transcript includes bookkeeping the orchestrator did not construct,
// so the log takes whatever the engine needs to remember next turn.
func (l *Log) Replace(userID string, entries []Entry) {
	trimmed := entries
	if excess := len(trimmed) - l.maxEntries; excess > 0 {
		trimmed = trimmed[excess:]
	}
	stored := make([]Entry, len(trimmed))
	copy(stored, trimmed)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.conversations[userID] = stored
}

func (l *Log) Clear(userID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.conversations, userID)
}

// Len reports the stored entry count for a user.
func (l *Log) Len(userID string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.conversations[userID])
}
