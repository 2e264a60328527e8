package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAndMigrateSessions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")

	d, err := Open(path)
	require.NoError(t, err)
	defer d.Close()

	require.NoError(t, MigrateSessions(d))

	_, err = d.Writer.Exec(
		`INSERT INTO sessions (id, model, phase, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		"sess-1", "claude-sonnet-4", "created", 1000, 1000,
	)
	require.NoError(t, err)

	var phase string
	require.NoError(t, d.Reader.Get(&phase, `SELECT phase FROM sessions WHERE id = ?`, "sess-1"))
	assert.Equal(t, "created", phase)
}

func TestMigrateSessionsIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")

	d, err := Open(path)
	require.NoError(t, err)
	defer d.Close()

	require.NoError(t, MigrateSessions(d))
	require.NoError(t, MigrateSessions(d))
}

func TestCheckpointForeignKeyEnforced(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")

	d, err := Open(path)
	require.NoError(t, err)
	defer d.Close()
	require.NoError(t, MigrateSessions(d))

	_, err = d.Writer.Exec(
		`INSERT INTO checkpoints (id, session_id, content_hash, created_at) VALUES (?, ?, ?, ?)`,
		"cp-1", "missing-session", "deadbeef", 1000,
	)
	assert.Error(t, err)
}

func TestOpenAndMigrateProcessRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "process_registry.db")

	d, err := Open(path)
	require.NoError(t, err)
	defer d.Close()

	require.NoError(t, MigrateProcessRegistry(d))

	_, err = d.Writer.Exec(
		`INSERT INTO process_registry (id, pid, created_at, status, last_heartbeat) VALUES (?, ?, ?, ?, ?)`,
		"proc-1", 4242, 1000, "running", 1000,
	)
	require.NoError(t, err)

	var count int
	require.NoError(t, d.Reader.Get(&count, `SELECT COUNT(*) FROM process_registry WHERE pid = ?`, 4242))
	assert.Equal(t, 1, count)
}

func TestReaderRejectsWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "process_registry.db")

	d, err := Open(path)
	require.NoError(t, err)
	defer d.Close()
	require.NoError(t, MigrateProcessRegistry(d))

	_, err = d.Reader.Exec(
		`INSERT INTO discovery_log (id, method, outcome, created_at) VALUES (?, ?, ?, ?)`,
		"disc-1", "path", "found", 1000,
	)
	assert.Error(t, err)
}
