package state

const schemaSQL = `
CREATE TABLE IF NOT EXISTS sessions (
  user_id TEXT PRIMARY KEY,
  current_agent TEXT NOT NULL,
  last_activity TEXT NOT NULL,
  turn_count INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS conversation_entries (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  seq INTEGER NOT NULL,
  role TEXT NOT NULL,
  content TEXT,
  tool_call_id TEXT,
  tool_name TEXT,
  tool_args TEXT,
  created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_conversation_user_seq ON conversation_entries(user_id, seq);
`
