package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/shannon-mcp/shannon-mcp/pkg/types"
)

// processRow is the sqlx scan target for process_registry rows (grounded
// on kdlbs-kandev's secretRow/secretListRow `db:"..."` convention).
type processRow struct {
	ID             string `db:"id"`
	PID            int    `db:"pid"`
	ParentPID      int    `db:"parent_pid"`
	CreatedAt      int64  `db:"created_at"`
	CommandLine    string `db:"command_line"`
	ExecutablePath string `db:"executable_path"`
	SessionID      string `db:"session_id"`
	Status         string `db:"status"`
	LastHeartbeat  int64  `db:"last_heartbeat"`
	MetricsJSON    string `db:"metrics_json"`
	UID            int    `db:"uid"`
	GID            int    `db:"gid"`
	WorkingDir     string `db:"working_dir"`
	EnvJSON        string `db:"env_json"`
}

func (r processRow) toChildProcess() *types.ChildProcess {
	cp := &types.ChildProcess{
		ProcessID:      r.ID,
		PID:            r.PID,
		ParentPID:      r.ParentPID,
		CreatedAt:      r.CreatedAt,
		CommandLine:    r.CommandLine,
		ExecutablePath: r.ExecutablePath,
		SessionID:      r.SessionID,
		Status:         types.ProcessStatus(r.Status),
		LastHeartbeat:  r.LastHeartbeat,
		UID:            r.UID,
		GID:            r.GID,
		WorkingDir:     r.WorkingDir,
	}
	_ = json.Unmarshal([]byte(r.MetricsJSON), &cp.Metrics)
	_ = json.Unmarshal([]byte(r.EnvJSON), &cp.Env)
	return cp
}

func (s *Registry) insertProcess(ctx context.Context, cp *types.ChildProcess) error {
	metrics, _ := json.Marshal(cp.Metrics)
	env, _ := json.Marshal(cp.Env)
	_, err := s.db.Writer.ExecContext(ctx, `
		INSERT INTO process_registry
			(id, pid, parent_pid, created_at, command_line, executable_path, session_id, status, last_heartbeat, metrics_json, uid, gid, working_dir, env_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cp.ProcessID, cp.PID, cp.ParentPID, cp.CreatedAt, cp.CommandLine, cp.ExecutablePath,
		cp.SessionID, string(cp.Status), cp.LastHeartbeat, string(metrics),
		cp.UID, cp.GID, cp.WorkingDir, string(env),
	)
	return err
}

func (s *Registry) updateStatus(ctx context.Context, processID string, status types.ProcessStatus) error {
	_, err := s.db.Writer.ExecContext(ctx,
		`UPDATE process_registry SET status = ? WHERE id = ?`, string(status), processID)
	return err
}

func (s *Registry) updateHeartbeat(ctx context.Context, processID string, at int64, metrics types.ResourceMetrics) error {
	data, _ := json.Marshal(metrics)
	_, err := s.db.Writer.ExecContext(ctx,
		`UPDATE process_registry SET last_heartbeat = ?, metrics_json = ? WHERE id = ?`,
		at, string(data), processID)
	return err
}

func (s *Registry) getByID(ctx context.Context, processID string) (*types.ChildProcess, bool, error) {
	var row processRow
	err := s.db.Reader.GetContext(ctx, &row, `SELECT * FROM process_registry WHERE id = ?`, processID)
	if err != nil {
		if isNoRows(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return row.toChildProcess(), true, nil
}

func (s *Registry) getLiveByPID(ctx context.Context, pid int) (*types.ChildProcess, bool, error) {
	var row processRow
	err := s.db.Reader.GetContext(ctx, &row, `
		SELECT * FROM process_registry
		WHERE pid = ? AND status NOT IN (?, ?, ?)
		ORDER BY created_at DESC LIMIT 1`,
		pid, string(types.ProcessStopped), string(types.ProcessOrphaned), string(types.ProcessFailed))
	if err != nil {
		if isNoRows(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return row.toChildProcess(), true, nil
}

// ListFilter narrows List results (spec §4.2 list(filter)).
type ListFilter struct {
	Status    types.ProcessStatus
	SessionID string
	Limit     int
	Offset    int
}

func (s *Registry) listRows(ctx context.Context, f ListFilter) ([]*types.ChildProcess, error) {
	query := `SELECT * FROM process_registry WHERE 1=1`
	args := []any{}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	if f.SessionID != "" {
		query += ` AND session_id = ?`
		args = append(args, f.SessionID)
	}
	query += ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, f.Limit, f.Offset)
	}

	var rows []processRow
	if err := s.db.Reader.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	out := make([]*types.ChildProcess, len(rows))
	for i, r := range rows {
		out[i] = r.toChildProcess()
	}
	return out, nil
}

func (s *Registry) listAllRunning(ctx context.Context) ([]*types.ChildProcess, error) {
	var rows []processRow
	err := s.db.Reader.SelectContext(ctx, &rows, `
		SELECT * FROM process_registry WHERE status IN (?, ?, ?)`,
		string(types.ProcessStarting), string(types.ProcessRunning), string(types.ProcessStopping))
	if err != nil {
		return nil, err
	}
	out := make([]*types.ChildProcess, len(rows))
	for i, r := range rows {
		out[i] = r.toChildProcess()
	}
	return out, nil
}

func (s *Registry) insertAudit(ctx context.Context, ev types.PIDAuditEvent) error {
	detail, _ := json.Marshal(ev.Detail)
	var processID any
	if ev.ProcessID != "" {
		processID = ev.ProcessID
	}
	_, err := s.db.Writer.ExecContext(ctx, `
		INSERT INTO pid_audit_trail (id, pid, kind, process_id, detail_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ev.EventID, ev.PID, string(ev.Kind), processID, string(detail), ev.Timestamp)
	return err
}

func (s *Registry) insertValidationCategory(ctx context.Context, processID string, result types.CategoryResult, at int64) error {
	detail := map[string]any{"warnings": result.Warnings}
	for k, v := range result.Detail {
		detail[k] = v
	}
	data, _ := json.Marshal(detail)
	id := types.NewID()
	_, err := s.db.Writer.ExecContext(ctx, `
		INSERT INTO validation_results (id, process_id, passed, category, detail_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, processID, boolToInt(result.Passed), string(result.Category), string(data), at)
	return err
}

func (s *Registry) pruneTerminalOlderThan(ctx context.Context, cutoff int64) (int64, error) {
	res, err := s.db.Writer.ExecContext(ctx, `
		DELETE FROM process_registry
		WHERE status IN (?, ?, ?) AND last_heartbeat < ?`,
		string(types.ProcessStopped), string(types.ProcessOrphaned), string(types.ProcessFailed), cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Registry) pruneValidationOlderThan(ctx context.Context, cutoff int64) (int64, error) {
	res, err := s.db.Writer.ExecContext(ctx, `DELETE FROM validation_results WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Registry) pruneAuditOlderThan(ctx context.Context, cutoff int64) (int64, error) {
	res, err := s.db.Writer.ExecContext(ctx, `DELETE FROM pid_audit_trail WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Registry) compact(ctx context.Context) error {
	_, err := s.db.Writer.ExecContext(ctx, `ANALYZE`)
	return err
}

// discoveryRow mirrors the discovery_log schema (internal/db's
// MigrateProcessRegistry), used both by Registry.RecordDiscovery and the
// Binary Resolver's discoveryRecorder interface it implements.
type discoveryRow struct {
	ID         string `db:"id"`
	Method     string `db:"method"`
	Outcome    string `db:"outcome"`
	Detail     string `db:"detail"`
	DurationMs int64  `db:"duration_ms"`
	CreatedAt  int64  `db:"created_at"`
}

// RecordDiscovery implements binaryresolver's discoveryRecorder interface.
func (s *Registry) RecordDiscovery(ctx context.Context, method, outcome, detail string, duration time.Duration) error {
	_, err := s.db.Writer.ExecContext(ctx, `
		INSERT INTO discovery_log (id, method, outcome, detail, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		types.NewID(), method, outcome, detail, duration.Milliseconds(), time.Now().Unix())
	return err
}

// LastSuccessfulDiscovery implements binaryresolver's discoveryRecorder
// interface: the most recent "found" outcome, regardless of method.
func (s *Registry) LastSuccessfulDiscovery(ctx context.Context) (string, bool, error) {
	var row discoveryRow
	err := s.db.Reader.GetContext(ctx, &row, `
		SELECT * FROM discovery_log WHERE outcome = 'found' ORDER BY created_at DESC LIMIT 1`)
	if err != nil {
		if isNoRows(err) {
			return "", false, nil
		}
		return "", false, err
	}
	return row.Detail, true, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
