package checkpoint

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shannon-mcp/shannon-mcp/internal/config"
	"github.com/shannon-mcp/shannon-mcp/internal/db"
	"github.com/shannon-mcp/shannon-mcp/internal/event"
	"github.com/shannon-mcp/shannon-mcp/pkg/types"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, cfg config.CheckpointConfig) *Store {
	t.Helper()
	dir := t.TempDir()

	database, err := db.Open(filepath.Join(dir, "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, db.MigrateSessions(database))

	paths := &config.Paths{Root: dir}
	bus := event.NewBus()
	t.Cleanup(func() { bus.Close() })

	return New(database, paths, bus, cfg)
}

func sampleSnapshot(sessionID string) types.Snapshot {
	return types.Snapshot{
		SessionID: sessionID,
		Model:     "claude-sonnet-4",
		Messages: []types.Message{
			{ID: types.NewID(), Role: types.RoleUser, Content: "hello", Timestamp: 1},
			{ID: types.NewID(), Role: types.RoleAssistant, Content: "hi there", Timestamp: 2},
		},
		Metrics: types.SessionMetrics{InputTokens: 10, OutputTokens: 20},
	}
}

func TestCreate_PersistsAndRoundTrips(t *testing.T) {
	s := newTestStore(t, config.CheckpointConfig{MaxPerSession: 10, RetentionDays: 30})
	ctx := context.Background()

	cp, err := s.Create(ctx, "sess-1", sampleSnapshot("sess-1"), "first", "desc", []string{"milestone"})
	require.NoError(t, err)
	require.NotEmpty(t, cp.ID)
	require.NotEmpty(t, cp.ContentHash)

	payload, err := s.Restore(ctx, cp.ID, types.RestoreOverrides{})
	require.NoError(t, err)
	require.Equal(t, "sess-1", payload.Snapshot.SessionID)
	require.Len(t, payload.Snapshot.Messages, 2)
	require.Equal(t, cp.ID, payload.ParentCheckpoint)
}

func TestCreate_IdenticalSnapshotsShareBlob(t *testing.T) {
	s := newTestStore(t, config.CheckpointConfig{MaxPerSession: 10, RetentionDays: 30})
	ctx := context.Background()
	snap := sampleSnapshot("sess-1")

	cp1, err := s.Create(ctx, "sess-1", snap, "a", "", nil)
	require.NoError(t, err)
	cp2, err := s.Create(ctx, "sess-1", snap, "b", "", nil)
	require.NoError(t, err)

	require.NotEqual(t, cp1.ID, cp2.ID)
	require.Equal(t, cp1.ContentHash, cp2.ContentHash)
}

func TestRestore_AppliesOverrides(t *testing.T) {
	s := newTestStore(t, config.CheckpointConfig{MaxPerSession: 10, RetentionDays: 30})
	ctx := context.Background()

	cp, err := s.Create(ctx, "sess-1", sampleSnapshot("sess-1"), "", "", nil)
	require.NoError(t, err)

	payload, err := s.Restore(ctx, cp.ID, types.RestoreOverrides{Model: "claude-opus-4"})
	require.NoError(t, err)
	require.Equal(t, "claude-opus-4", payload.Snapshot.Model)
}

func TestRestore_MissingCheckpoint(t *testing.T) {
	s := newTestStore(t, config.CheckpointConfig{MaxPerSession: 10, RetentionDays: 30})
	_, err := s.Restore(context.Background(), "does-not-exist", types.RestoreOverrides{})
	require.ErrorIs(t, err, types.ErrCheckpointMissing)
}

func TestBranch_CreatesChildWithParentLink(t *testing.T) {
	s := newTestStore(t, config.CheckpointConfig{MaxPerSession: 10, RetentionDays: 30})
	ctx := context.Background()

	origin, err := s.Create(ctx, "sess-1", sampleSnapshot("sess-1"), "origin", "", nil)
	require.NoError(t, err)

	branch, payload, err := s.Branch(ctx, origin.ID, "branch-a", map[string]any{"model": "claude-haiku-4"})
	require.NoError(t, err)
	require.Equal(t, origin.ID, branch.ParentCheckpoint)
	require.Equal(t, "claude-haiku-4", payload.Snapshot.Model)
	require.Equal(t, branch.ID, payload.ParentCheckpoint)

	list, err := s.List(ctx, ListFilter{SessionID: "sess-1"})
	require.NoError(t, err)
	require.Len(t, list, 2)
}

func TestList_FiltersByTag(t *testing.T) {
	s := newTestStore(t, config.CheckpointConfig{MaxPerSession: 10, RetentionDays: 30})
	ctx := context.Background()

	_, err := s.Create(ctx, "sess-1", sampleSnapshot("sess-1"), "a", "", []string{"keep"})
	require.NoError(t, err)
	_, err = s.Create(ctx, "sess-1", sampleSnapshot("sess-1"), "b", "", []string{"other"})
	require.NoError(t, err)

	tagged, err := s.List(ctx, ListFilter{SessionID: "sess-1", Tags: []string{"keep"}})
	require.NoError(t, err)
	require.Len(t, tagged, 1)
	require.Equal(t, "a", tagged[0].Label)
}

func TestDelete_OrphanCollectsUnsharedBlob(t *testing.T) {
	s := newTestStore(t, config.CheckpointConfig{MaxPerSession: 10, RetentionDays: 30})
	ctx := context.Background()

	cp, err := s.Create(ctx, "sess-1", sampleSnapshot("sess-1"), "", "", nil)
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, cp.ID))
	_, err = s.cas.Retrieve(cp.ContentHash)
	require.ErrorIs(t, err, errBlobNotFound)
}

func TestDelete_KeepsBlobWhenSharedByAnotherCheckpoint(t *testing.T) {
	s := newTestStore(t, config.CheckpointConfig{MaxPerSession: 10, RetentionDays: 30})
	ctx := context.Background()
	snap := sampleSnapshot("sess-1")

	cp1, err := s.Create(ctx, "sess-1", snap, "a", "", nil)
	require.NoError(t, err)
	_, err = s.Create(ctx, "sess-1", snap, "b", "", nil)
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, cp1.ID))
	_, err = s.cas.Retrieve(cp1.ContentHash)
	require.NoError(t, err)
}

func TestCreate_EnforcesRetentionCap(t *testing.T) {
	s := newTestStore(t, config.CheckpointConfig{MaxPerSession: 2, RetentionDays: 30})
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		snap := sampleSnapshot("sess-1")
		snap.Metrics.InputTokens = int64(i)
		_, err := s.Create(ctx, "sess-1", snap, "", "", nil)
		require.NoError(t, err)
	}

	list, err := s.List(ctx, ListFilter{SessionID: "sess-1"})
	require.NoError(t, err)
	require.Len(t, list, 2)
}

func TestCleanupOld_DeletesExpiredCheckpoints(t *testing.T) {
	s := newTestStore(t, config.CheckpointConfig{MaxPerSession: 100, RetentionDays: 30})
	ctx := context.Background()

	cp, err := s.Create(ctx, "sess-1", sampleSnapshot("sess-1"), "", "", nil)
	require.NoError(t, err)

	old := time.Now().AddDate(0, 0, -31).Unix()
	_, err = s.db.Writer.ExecContext(ctx, `UPDATE checkpoints SET created_at = ? WHERE id = ?`, old, cp.ID)
	require.NoError(t, err)

	deleted, err := s.CleanupOld(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, deleted)

	list, err := s.List(ctx, ListFilter{SessionID: "sess-1"})
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestAutoCheckpoint_FiresAndReArmsOnInterval(t *testing.T) {
	s := newTestStore(t, config.CheckpointConfig{MaxPerSession: 100, RetentionDays: 30})
	ctx := context.Background()

	fired := make(chan struct{}, 4)
	get := func() (string, types.Snapshot, bool) {
		fired <- struct{}{}
		return "sess-1", sampleSnapshot("sess-1"), true
	}

	s.StartAutoCheckpoint(ctx, "sess-1", 10*time.Millisecond, get)
	defer s.StopAutoCheckpoint("sess-1")

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("auto-checkpoint did not fire")
	}

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("auto-checkpoint did not re-arm")
	}
}

func TestAutoCheckpoint_StopPreventsFurtherFires(t *testing.T) {
	s := newTestStore(t, config.CheckpointConfig{MaxPerSession: 100, RetentionDays: 30})
	ctx := context.Background()

	fired := make(chan struct{}, 4)
	get := func() (string, types.Snapshot, bool) {
		fired <- struct{}{}
		return "sess-1", sampleSnapshot("sess-1"), true
	}

	s.StartAutoCheckpoint(ctx, "sess-1", 10*time.Millisecond, get)
	<-fired
	s.StopAutoCheckpoint("sess-1")

	select {
	case <-fired:
		// one more fire racing with Stop is acceptable; drain and ensure
		// no additional fire follows shortly after.
	case <-time.After(50 * time.Millisecond):
	}

	select {
	case <-fired:
		t.Fatal("auto-checkpoint fired after Stop")
	case <-time.After(100 * time.Millisecond):
	}
}
