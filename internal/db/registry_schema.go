package db

// MigrateProcessRegistry creates the process_registry.db schema if it does
// not already exist: process_registry, pid_audit_trail, validation_results,
// discovery_log.
func MigrateProcessRegistry(d *DB) error {
	_, err := d.Writer.Exec(`
	CREATE TABLE IF NOT EXISTS process_registry (
		id TEXT PRIMARY KEY,
		pid INTEGER NOT NULL,
		parent_pid INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		command_line TEXT DEFAULT '',
		executable_path TEXT DEFAULT '',
		session_id TEXT DEFAULT '',
		status TEXT NOT NULL,
		last_heartbeat INTEGER NOT NULL DEFAULT 0,
		metrics_json TEXT DEFAULT '{}',
		uid INTEGER NOT NULL DEFAULT 0,
		gid INTEGER NOT NULL DEFAULT 0,
		working_dir TEXT DEFAULT '',
		env_json TEXT DEFAULT '[]'
	);
	CREATE INDEX IF NOT EXISTS idx_process_registry_pid ON process_registry(pid);
	CREATE INDEX IF NOT EXISTS idx_process_registry_status ON process_registry(status);
	CREATE INDEX IF NOT EXISTS idx_process_registry_session_id ON process_registry(session_id);

	CREATE TABLE IF NOT EXISTS pid_audit_trail (
		id TEXT PRIMARY KEY,
		pid INTEGER NOT NULL,
		kind TEXT NOT NULL,
		process_id TEXT,
		detail_json TEXT DEFAULT '{}',
		created_at INTEGER NOT NULL,
		FOREIGN KEY (process_id) REFERENCES process_registry(id)
	);
	CREATE INDEX IF NOT EXISTS idx_pid_audit_trail_pid ON pid_audit_trail(pid, created_at);

	CREATE TABLE IF NOT EXISTS validation_results (
		id TEXT PRIMARY KEY,
		process_id TEXT NOT NULL,
		passed INTEGER NOT NULL,
		category TEXT NOT NULL,
		detail_json TEXT DEFAULT '{}',
		created_at INTEGER NOT NULL,
		FOREIGN KEY (process_id) REFERENCES process_registry(id)
	);
	CREATE INDEX IF NOT EXISTS idx_validation_results_process_id ON validation_results(process_id, created_at);

	CREATE TABLE IF NOT EXISTS discovery_log (
		id TEXT PRIMARY KEY,
		method TEXT NOT NULL,
		outcome TEXT NOT NULL,
		detail TEXT DEFAULT '',
		duration_ms INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_discovery_log_created_at ON discovery_log(created_at);
	`)
	return err
}
