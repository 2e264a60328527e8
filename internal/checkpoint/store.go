package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/shannon-mcp/shannon-mcp/internal/config"
	"github.com/shannon-mcp/shannon-mcp/internal/db"
	"github.com/shannon-mcp/shannon-mcp/internal/event"
	"github.com/shannon-mcp/shannon-mcp/pkg/types"
)

var errBlobNotFound = errors.New("checkpoint: blob not found in CAS")

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// SessionPayload is the data-only reconstruction target produced by
// Restore/Branch. The Supervisor turns it into a live Session.
type SessionPayload struct {
	Snapshot         types.Snapshot `json:"snapshot"`
	ParentCheckpoint string         `json:"parentCheckpoint,omitempty"`
}

// Store implements the Checkpoint Store (spec §4.4): create, restore,
// branch, list, delete, cleanup_old, layered over a content-addressed
// blob store and sessions.db's checkpoints table.
type Store struct {
	db    *db.DB
	cas   *cas
	bus   *event.Bus
	cfg   config.CheckpointConfig

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// New creates a Checkpoint Store rooted at paths.CheckpointsDir().
func New(database *db.DB, paths *config.Paths, bus *event.Bus, cfg config.CheckpointConfig) *Store {
	return &Store{
		db:     database,
		cas:    newCAS(paths.CheckpointsDir(), zstd.SpeedDefault),
		bus:    bus,
		cfg:    cfg,
		timers: make(map[string]*time.Timer),
	}
}

type checkpointRow struct {
	ID               string  `db:"id"`
	SessionID        string  `db:"session_id"`
	Label            string  `db:"label"`
	Description      string  `db:"description"`
	ParentID         string  `db:"parent_id"`
	ContentHash      string  `db:"content_hash"`
	SizeBytes        int64   `db:"size_bytes"`
	CompressionRatio float64 `db:"compression_ratio"`
	TagsJSON         string  `db:"tags_json"`
	CreatedAt        int64   `db:"created_at"`
}

func (r checkpointRow) toCheckpoint() *types.Checkpoint {
	var tags []string
	_ = json.Unmarshal([]byte(r.TagsJSON), &tags)
	return &types.Checkpoint{
		ID:               r.ID,
		SessionID:        r.SessionID,
		Label:            r.Label,
		Description:      r.Description,
		ParentCheckpoint: r.ParentID,
		ContentHash:      r.ContentHash,
		StoredSizeBytes:  r.SizeBytes,
		CompressionRatio: r.CompressionRatio,
		Tags:             tags,
		CreatedAt:        r.CreatedAt,
	}
}

// Create snapshots payload, stores it in the CAS, and records a
// checkpoints row. When the session's retention cap is exceeded, the
// oldest checkpoints beyond the cap are deleted.
func (s *Store) Create(ctx context.Context, sessionID string, snapshot types.Snapshot, label, description string, tags []string) (*types.Checkpoint, error) {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return nil, types.NewError(types.KindInternal, "marshal session snapshot", err)
	}

	hash, storedSize, ratio, err := s.cas.Store(data)
	if err != nil {
		return nil, types.NewError(types.KindInternal, "store checkpoint blob", err)
	}

	if label == "" {
		label = fmt.Sprintf("checkpoint-%d", time.Now().Unix())
	}
	tagsJSON, _ := json.Marshal(tags)

	cp := &types.Checkpoint{
		ID:               types.NewID(),
		SessionID:        sessionID,
		Label:            label,
		Description:      description,
		ContentHash:      hash,
		StoredSizeBytes:  storedSize,
		CompressionRatio: ratio,
		Tags:             tags,
		CreatedAt:        time.Now().Unix(),
	}

	_, err = s.db.Writer.ExecContext(ctx, `
		INSERT INTO checkpoints (id, session_id, label, description, parent_id, content_hash, size_bytes, compression_ratio, tags_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cp.ID, cp.SessionID, cp.Label, cp.Description, "", cp.ContentHash, cp.StoredSizeBytes, cp.CompressionRatio, string(tagsJSON), cp.CreatedAt,
	)
	if err != nil {
		return nil, types.NewError(types.KindInternal, "persist checkpoint row", err)
	}

	if s.bus != nil {
		s.bus.Publish(event.Event{Type: event.CheckpointCreated, Data: event.CheckpointCreatedData{Checkpoint: cp}})
	}

	if s.cfg.MaxPerSession > 0 {
		if err := s.enforceRetentionCap(ctx, sessionID); err != nil {
			return cp, err
		}
	}

	return cp, nil
}

// Restore fetches checkpointID's blob, decompresses, deserializes, and
// applies overrides, returning a payload the Supervisor instantiates a
// new session from.
func (s *Store) Restore(ctx context.Context, checkpointID string, overrides types.RestoreOverrides) (*SessionPayload, error) {
	row, err := s.getRow(ctx, checkpointID)
	if err != nil {
		return nil, err
	}

	payload, err := s.loadSnapshot(row)
	if err != nil {
		return nil, err
	}

	if overrides.Model != "" {
		payload.Snapshot.Model = overrides.Model
	}
	if overrides.AgentName != "" {
		payload.Snapshot.AgentName = overrides.AgentName
	}
	payload.ParentCheckpoint = checkpointID

	return payload, nil
}

// Branch restores checkpointID like Restore, then writes a new
// checkpoint whose parent points at the source, applying modifications
// to the restored snapshot before storing. The returned session payload's
// ParentCheckpoint is the newly written branch checkpoint's id; the origin
// checkpoint is the branch checkpoint's own ParentCheckpoint.
func (s *Store) Branch(ctx context.Context, checkpointID, branchLabel string, modifications map[string]any) (*types.Checkpoint, *SessionPayload, error) {
	row, err := s.getRow(ctx, checkpointID)
	if err != nil {
		return nil, nil, err
	}

	payload, err := s.loadSnapshot(row)
	if err != nil {
		return nil, nil, err
	}
	applyModifications(&payload.Snapshot, modifications)

	data, err := json.Marshal(payload.Snapshot)
	if err != nil {
		return nil, nil, types.NewError(types.KindInternal, "marshal branch snapshot", err)
	}
	hash, storedSize, ratio, err := s.cas.Store(data)
	if err != nil {
		return nil, nil, types.NewError(types.KindInternal, "store branch blob", err)
	}

	branch := &types.Checkpoint{
		ID:               types.NewID(),
		SessionID:        row.SessionID,
		Label:            branchLabel,
		ParentCheckpoint: checkpointID,
		ContentHash:      hash,
		StoredSizeBytes:  storedSize,
		CompressionRatio: ratio,
		CreatedAt:        time.Now().Unix(),
	}
	tagsJSON, _ := json.Marshal(branch.Tags)

	_, err = s.db.Writer.ExecContext(ctx, `
		INSERT INTO checkpoints (id, session_id, label, description, parent_id, content_hash, size_bytes, compression_ratio, tags_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		branch.ID, branch.SessionID, branch.Label, branch.Description, branch.ParentCheckpoint,
		branch.ContentHash, branch.StoredSizeBytes, branch.CompressionRatio, string(tagsJSON), branch.CreatedAt,
	)
	if err != nil {
		return nil, nil, types.NewError(types.KindInternal, "persist branch checkpoint row", err)
	}

	if s.bus != nil {
		s.bus.Publish(event.Event{Type: event.CheckpointBranched, Data: event.CheckpointBranchedData{
			ParentCheckpointID: checkpointID, NewCheckpoint: branch,
		}})
	}

	payload.ParentCheckpoint = branch.ID
	return branch, payload, nil
}

// ListFilter narrows List results (spec §4.4 list(session_id?, tags?, offset, limit)).
type ListFilter struct {
	SessionID string
	Tags      []string
	Offset    int
	Limit     int
}

func (s *Store) List(ctx context.Context, f ListFilter) ([]*types.Checkpoint, error) {
	query := `SELECT * FROM checkpoints WHERE 1=1`
	args := []any{}
	if f.SessionID != "" {
		query += ` AND session_id = ?`
		args = append(args, f.SessionID)
	}
	query += ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, f.Limit, f.Offset)
	}

	var rows []checkpointRow
	if err := s.db.Reader.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, types.NewError(types.KindInternal, "list checkpoints", err)
	}

	out := make([]*types.Checkpoint, 0, len(rows))
	for _, r := range rows {
		cp := r.toCheckpoint()
		if len(f.Tags) > 0 && !hasAnyTag(cp.Tags, f.Tags) {
			continue
		}
		out = append(out, cp)
	}
	return out, nil
}

// Delete removes a checkpoint's metadata row, then orphan-collects its
// blob from the CAS if no other row still references the same hash.
func (s *Store) Delete(ctx context.Context, checkpointID string) error {
	row, err := s.getRow(ctx, checkpointID)
	if err != nil {
		return err
	}

	if _, err := s.db.Writer.ExecContext(ctx, `DELETE FROM checkpoints WHERE id = ?`, checkpointID); err != nil {
		return types.NewError(types.KindInternal, "delete checkpoint row", err)
	}

	return s.collectOrphan(ctx, row.ContentHash)
}

// CleanupOld deletes checkpoints older than the configured retention
// window and orphan-collects their blobs, run by the daily maintenance
// task (spec §4.4).
func (s *Store) CleanupOld(ctx context.Context) (int64, error) {
	if s.cfg.RetentionDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().AddDate(0, 0, -s.cfg.RetentionDays).Unix()

	var rows []checkpointRow
	err := s.db.Reader.SelectContext(ctx, &rows, `SELECT * FROM checkpoints WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, types.NewError(types.KindInternal, "select expired checkpoints", err)
	}

	var deleted int64
	for _, r := range rows {
		if err := s.Delete(ctx, r.ID); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}

func (s *Store) enforceRetentionCap(ctx context.Context, sessionID string) error {
	var rows []checkpointRow
	err := s.db.Reader.SelectContext(ctx, &rows, `
		SELECT * FROM checkpoints WHERE session_id = ? ORDER BY created_at DESC`, sessionID)
	if err != nil {
		return types.NewError(types.KindInternal, "list session checkpoints for retention", err)
	}
	if len(rows) <= s.cfg.MaxPerSession {
		return nil
	}
	for _, r := range rows[s.cfg.MaxPerSession:] {
		if err := s.Delete(ctx, r.ID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) collectOrphan(ctx context.Context, hash string) error {
	var count int
	err := s.db.Reader.GetContext(ctx, &count, `SELECT COUNT(*) FROM checkpoints WHERE content_hash = ?`, hash)
	if err != nil {
		return types.NewError(types.KindInternal, "count checkpoint hash references", err)
	}
	if count > 0 {
		return nil
	}
	if err := s.cas.Delete(hash); err != nil {
		return types.NewError(types.KindInternal, "delete orphaned blob", err)
	}
	return nil
}

func (s *Store) getRow(ctx context.Context, checkpointID string) (*checkpointRow, error) {
	var row checkpointRow
	err := s.db.Reader.GetContext(ctx, &row, `SELECT * FROM checkpoints WHERE id = ?`, checkpointID)
	if err != nil {
		if isNoRows(err) {
			return nil, types.ErrCheckpointMissing
		}
		return nil, types.NewError(types.KindInternal, "query checkpoint row", err)
	}
	return &row, nil
}

func (s *Store) loadSnapshot(row *checkpointRow) (*SessionPayload, error) {
	data, err := s.cas.Retrieve(row.ContentHash)
	if err != nil {
		if errors.Is(err, errBlobNotFound) {
			return nil, types.ErrCheckpointCorrupt.WithDetails(map[string]any{"hash": row.ContentHash})
		}
		return nil, types.NewError(types.KindCheckpointCorrupt, "retrieve checkpoint blob", err)
	}

	var snapshot types.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, types.NewError(types.KindCheckpointCorrupt, "decode checkpoint payload", err)
	}

	return &SessionPayload{Snapshot: snapshot}, nil
}

func applyModifications(snapshot *types.Snapshot, modifications map[string]any) {
	if modifications == nil {
		return
	}
	if model, ok := modifications["model"].(string); ok && model != "" {
		snapshot.Model = model
	}
	if agent, ok := modifications["agentName"].(string); ok && agent != "" {
		snapshot.AgentName = agent
	}
	if ctxPatch, ok := modifications["context"].(map[string]any); ok {
		if snapshot.Context == nil {
			snapshot.Context = make(map[string]any)
		}
		for k, v := range ctxPatch {
			snapshot.Context[k] = v
		}
	}
}

func hasAnyTag(have, want []string) bool {
	set := make(map[string]struct{}, len(have))
	for _, t := range have {
		set[t] = struct{}{}
	}
	for _, w := range want {
		if _, ok := set[w]; ok {
			return true
		}
	}
	return false
}
