package db

// MigrateSessions creates the sessions.db schema if it does not already
// exist: sessions, session_messages, checkpoints.
func MigrateSessions(d *DB) error {
	_, err := d.Writer.Exec(`
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		model TEXT NOT NULL,
		phase TEXT NOT NULL,
		parent_checkpoint_id TEXT DEFAULT '',
		context_json TEXT DEFAULT '{}',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		terminal_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_phase ON sessions(phase);
	CREATE INDEX IF NOT EXISTS idx_sessions_updated_at ON sessions(updated_at);

	CREATE TABLE IF NOT EXISTS session_messages (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		metadata_json TEXT DEFAULT '{}',
		created_at INTEGER NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_session_messages_session_id ON session_messages(session_id, created_at);

	CREATE TABLE IF NOT EXISTS checkpoints (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		label TEXT DEFAULT '',
		description TEXT DEFAULT '',
		parent_id TEXT DEFAULT '',
		content_hash TEXT NOT NULL,
		size_bytes INTEGER NOT NULL DEFAULT 0,
		compression_ratio REAL NOT NULL DEFAULT 0,
		tags_json TEXT DEFAULT '[]',
		created_at INTEGER NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE,
		FOREIGN KEY (parent_id) REFERENCES checkpoints(id)
	);
	CREATE INDEX IF NOT EXISTS idx_checkpoints_session_id ON checkpoints(session_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_checkpoints_content_hash ON checkpoints(content_hash);
	`)
	return err
}
