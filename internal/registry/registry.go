package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shannon-mcp/shannon-mcp/internal/config"
	"github.com/shannon-mcp/shannon-mcp/internal/db"
	"github.com/shannon-mcp/shannon-mcp/internal/event"
	"github.com/shannon-mcp/shannon-mcp/internal/logging"
	"github.com/shannon-mcp/shannon-mcp/pkg/types"
)

// Registry is the authoritative record of every CLI child the daemon has
// spawned (spec §4.2). It owns ChildProcess records exclusively; Sessions
// hold only a non-owning ProcessID reference.
type Registry struct {
	db    *db.DB
	paths *config.Paths
	bus   *event.Bus
	cfg   config.RegistryConfig

	mu      sync.Mutex
	pidLive map[int]string // pid -> live processID, mirrors the durable store

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New constructs a Registry. Call Start to reconcile sidecars against the
// OS and launch the monitoring/maintenance background loops.
func New(database *db.DB, paths *config.Paths, bus *event.Bus, cfg config.RegistryConfig) *Registry {
	return &Registry{
		db:      database,
		paths:   paths,
		bus:     bus,
		cfg:     cfg,
		pidLive: make(map[int]string),
	}
}

// Start reconciles persisted sidecars against OS-reported liveness (spec
// §4.2 durability: stale sidecars reconciled, non-terminal records
// revalidated, vanished PIDs promoted to orphaned) and starts the monitor
// and maintenance loops.
func (r *Registry) Start(ctx context.Context) error {
	if err := r.reconcile(ctx); err != nil {
		return fmt.Errorf("registry: startup reconciliation: %w", err)
	}

	r.stopCh = make(chan struct{})
	r.wg.Add(2)
	go r.monitorLoop()
	go r.maintenanceLoop()
	return nil
}

// Stop halts the background loops and waits for them to exit.
func (r *Registry) Stop() {
	if r.stopCh == nil {
		return
	}
	close(r.stopCh)
	r.wg.Wait()
}

func (r *Registry) reconcile(ctx context.Context) error {
	records, err := r.listAllRunning(ctx)
	if err != nil {
		return err
	}
	r.mu.Lock()
	for _, rec := range records {
		r.pidLive[rec.PID] = rec.ProcessID
	}
	r.mu.Unlock()

	for _, rec := range records {
		if isProcessAlive(rec.PID) {
			continue
		}
		if err := r.updateStatus(ctx, rec.ProcessID, types.ProcessOrphaned); err != nil {
			logging.Warn().Err(err).Str("processID", rec.ProcessID).Msg("registry: failed to mark vanished process orphaned")
			continue
		}
		r.mu.Lock()
		delete(r.pidLive, rec.PID)
		r.mu.Unlock()
		r.audit(ctx, rec.PID, types.AuditOrphaned, rec.ProcessID, nil)
		r.bus.Publish(event.Event{Type: event.ProcessOrphaned, Data: event.ProcessOrphanedData{ProcessID: rec.ProcessID, PID: rec.PID}})
	}

	sidecars, err := listSidecars(r.paths)
	if err != nil {
		return err
	}
	for _, sc := range sidecars {
		if _, _, err := r.getByID(ctx, sc.ProcessID); err != nil {
			continue
		}
		if isProcessAlive(sc.PID) {
			continue
		}
		_ = removeSidecar(r.paths, sc.ProcessID)
	}
	return nil
}

// SpawnAttrs carries the OS-level attributes the Supervisor spawned a child
// with, captured at Register time so later Security validation (spec §4.2)
// has something to check beyond the executable path.
type SpawnAttrs struct {
	UID        int
	GID        int
	WorkingDir string
	Env        []string
}

// Register implements spec §4.2's register operation, including the
// identity/reuse rules: same (pid, created_at) is idempotent; same pid with
// a different created_at is reuse, and the stale record is retired first.
func (r *Registry) Register(ctx context.Context, pid, parentPID int, commandLine, executablePath, sessionID string, attrs SpawnAttrs) (string, error) {
	createdAt, ok := processCreationTime(pid)
	if !ok {
		createdAt = time.Now().Unix()
	}

	if existing, found, err := r.getLiveByPID(ctx, pid); err != nil {
		return "", err
	} else if found {
		if existing.CreatedAt == createdAt {
			return existing.ProcessID, nil
		}
		if err := r.retireReused(ctx, existing); err != nil {
			return "", err
		}
	}

	cp := &types.ChildProcess{
		ProcessID:      types.NewID(),
		PID:            pid,
		ParentPID:      parentPID,
		CreatedAt:      createdAt,
		CommandLine:    commandLine,
		ExecutablePath: executablePath,
		SessionID:      sessionID,
		Status:         types.ProcessRunning,
		LastHeartbeat:  time.Now().Unix(),
		UID:            attrs.UID,
		GID:            attrs.GID,
		WorkingDir:     attrs.WorkingDir,
		Env:            attrs.Env,
	}
	if err := r.insertProcess(ctx, cp); err != nil {
		return "", fmt.Errorf("registry: insert process: %w", err)
	}

	if err := writeSidecar(r.paths, sidecar{
		ProcessID:      cp.ProcessID,
		PID:            cp.PID,
		CreatedAt:      cp.CreatedAt,
		CommandLine:    cp.CommandLine,
		ExecutablePath: cp.ExecutablePath,
		SessionID:      cp.SessionID,
	}); err != nil {
		logging.Warn().Err(err).Str("processID", cp.ProcessID).Msg("registry: failed to write PID sidecar")
	}

	r.mu.Lock()
	r.pidLive[pid] = cp.ProcessID
	r.mu.Unlock()

	r.audit(ctx, pid, types.AuditCreated, cp.ProcessID, nil)
	r.bus.Publish(event.Event{Type: event.ProcessRegistered, Data: event.ProcessRegisteredData{Process: cp}})
	return cp.ProcessID, nil
}

func (r *Registry) retireReused(ctx context.Context, stale *types.ChildProcess) error {
	if err := r.updateStatus(ctx, stale.ProcessID, types.ProcessStopped); err != nil {
		return err
	}
	r.mu.Lock()
	delete(r.pidLive, stale.PID)
	r.mu.Unlock()
	_ = removeSidecar(r.paths, stale.ProcessID)

	r.audit(ctx, stale.PID, types.AuditReused, stale.ProcessID, map[string]any{"reason": "pid_reused"})
	r.bus.Publish(event.Event{Type: event.RegistryPIDReused, Data: event.RegistryPIDReusedData{
		PID:             stale.PID,
		PreviousProcess: stale.ProcessID,
	}})
	return nil
}

// Unregister marks a process stopped and removes its sidecar (spec §4.2).
func (r *Registry) Unregister(ctx context.Context, processID string) error {
	rec, found, err := r.getByID(ctx, processID)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	if err := r.updateStatus(ctx, processID, types.ProcessStopped); err != nil {
		return err
	}
	r.mu.Lock()
	delete(r.pidLive, rec.PID)
	r.mu.Unlock()
	_ = removeSidecar(r.paths, processID)

	r.audit(ctx, rec.PID, types.AuditTerminated, processID, nil)
	r.bus.Publish(event.Event{Type: event.ProcessTerminated, Data: event.ProcessTerminatedData{ProcessID: processID, PID: rec.PID}})
	return nil
}

// Heartbeat updates last-seen and the latest resource snapshot; a no-op if
// the process is unknown (spec §4.2).
func (r *Registry) Heartbeat(ctx context.Context, processID string) error {
	rec, found, err := r.getByID(ctx, processID)
	if err != nil || !found {
		return err
	}
	metrics := collectResourceMetrics(rec.PID)
	return r.updateHeartbeat(ctx, processID, time.Now().Unix(), metrics)
}

// GetByPID returns the live record for pid, if any.
func (r *Registry) GetByPID(ctx context.Context, pid int) (*types.ChildProcess, bool, error) {
	return r.getLiveByPID(ctx, pid)
}

// List returns process records matching filter (spec §4.2).
func (r *Registry) List(ctx context.Context, filter ListFilter) ([]*types.ChildProcess, error) {
	return r.listRows(ctx, filter)
}

// Terminate sends a graceful signal, waits up to timeout, then escalates to
// a forceful kill (spec §4.2).
func (r *Registry) Terminate(ctx context.Context, processID string, graceful bool, timeout time.Duration) error {
	rec, found, err := r.getByID(ctx, processID)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	if err := r.updateStatus(ctx, processID, types.ProcessStopping); err != nil {
		return err
	}

	if graceful {
		_ = sendGraceful(rec.PID)
		deadline := time.Now().Add(timeout)
		for time.Now().Before(deadline) {
			if !isProcessAlive(rec.PID) {
				break
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(100 * time.Millisecond):
			}
		}
	}
	if isProcessAlive(rec.PID) {
		_ = sendForceful(rec.PID)
	}

	return r.Unregister(ctx, processID)
}

// Validate runs the four validation categories from spec §4.2 and persists
// the result, emitting an event on overall failure.
func (r *Registry) Validate(ctx context.Context, processID string, constraints types.Constraints) (*types.ValidationResult, error) {
	rec, found, err := r.getByID(ctx, processID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, types.ErrSessionNotFound.WithDetails(map[string]any{"processID": processID})
	}

	now := time.Now().Unix()
	results := []types.CategoryResult{
		r.validateIntegrity(rec),
		r.validateResource(rec, constraints.Resource, now),
		r.validateSecurity(rec, constraints.Security),
		r.validateLifecycle(rec),
	}

	passed := true
	for _, c := range results {
		if !c.Passed {
			passed = false
		}
		if err := r.insertValidationCategory(ctx, processID, c, now); err != nil {
			logging.Warn().Err(err).Msg("registry: failed to persist validation category")
		}
	}

	vr := &types.ValidationResult{ProcessID: processID, Passed: passed, Results: results, Timestamp: now}
	if !passed {
		r.audit(ctx, rec.PID, types.AuditValidated, processID, map[string]any{"passed": false})
		r.bus.Publish(event.Event{Type: event.ProcessValidationFailed, Data: event.ProcessValidationFailedData{Result: vr}})
	}
	return vr, nil
}

func (r *Registry) validateIntegrity(rec *types.ChildProcess) types.CategoryResult {
	res := types.CategoryResult{Category: types.CategoryIntegrity, Passed: true}
	if !isProcessAlive(rec.PID) {
		res.Passed = false
		res.Warnings = append(res.Warnings, "process no longer exists")
		return res
	}
	if createdAt, ok := processCreationTime(rec.PID); ok && createdAt != rec.CreatedAt {
		res.Passed = false
		res.Warnings = append(res.Warnings, "creation time changed since registration")
	}
	if rec.ParentPID != 0 && !isProcessAlive(rec.ParentPID) {
		res.Warnings = append(res.Warnings, "parent process no longer exists")
	}
	return res
}

func (r *Registry) validateResource(rec *types.ChildProcess, c types.ResourceConstraints, now int64) types.CategoryResult {
	res := types.CategoryResult{Category: types.CategoryResource, Passed: true}
	m := collectResourceMetrics(rec.PID)

	if c.MaxRSSBytes > 0 && m.RSSBytes > c.MaxRSSBytes {
		res.Passed = false
		res.Warnings = append(res.Warnings, "RSS exceeds configured maximum")
	}
	if c.MaxFDCount > 0 && m.FDCount > c.MaxFDCount {
		res.Passed = false
		res.Warnings = append(res.Warnings, "file descriptor count exceeds configured maximum")
	}
	if c.MaxConnections > 0 && m.OpenConnections > c.MaxConnections {
		res.Passed = false
		res.Warnings = append(res.Warnings, "open connection count exceeds configured maximum")
	}
	if c.MaxUptimeSeconds > 0 && now-rec.CreatedAt > c.MaxUptimeSeconds {
		res.Passed = false
		res.Warnings = append(res.Warnings, "uptime exceeds configured maximum")
	}
	res.Detail = map[string]any{"rssBytes": m.RSSBytes, "fdCount": m.FDCount, "uptimeSeconds": now - rec.CreatedAt}
	return res
}

func (r *Registry) validateSecurity(rec *types.ChildProcess, c types.SecurityConstraints) types.CategoryResult {
	res := types.CategoryResult{Category: types.CategorySecurity, Passed: true}

	for _, blocked := range c.BlockedExecutables {
		if blocked != "" && blocked == rec.ExecutablePath {
			res.Passed = false
			res.Warnings = append(res.Warnings, "executable is on the block-list")
		}
	}

	if len(c.AllowedUsers) > 0 {
		if name, ok := lookupUserName(rec.UID); !ok || !containsString(c.AllowedUsers, name) {
			res.Passed = false
			res.Warnings = append(res.Warnings, "process user is not on the allow-list")
		}
	}
	if len(c.AllowedGroups) > 0 {
		if name, ok := lookupGroupName(rec.GID); !ok || !containsString(c.AllowedGroups, name) {
			res.Passed = false
			res.Warnings = append(res.Warnings, "process group is not on the allow-list")
		}
	}

	if len(c.PermittedRoots) > 0 {
		if rec.WorkingDir == "" || !underAnyRoot(rec.WorkingDir, c.PermittedRoots) {
			res.Passed = false
			res.Warnings = append(res.Warnings, "working directory is outside the permitted roots")
		}
	}

	if len(c.FlaggedEnvVars) > 0 {
		if hit, ok := firstFlaggedEnvVar(rec.Env, c.FlaggedEnvVars); ok {
			res.Passed = false
			res.Warnings = append(res.Warnings, "flagged environment variable present: "+hit)
		}
	}

	return res
}

func (r *Registry) validateLifecycle(rec *types.ChildProcess) types.CategoryResult {
	res := types.CategoryResult{Category: types.CategoryLifecycle, Passed: true}
	alive := isProcessAlive(rec.PID)
	if !alive && rec.Status == types.ProcessRunning {
		res.Passed = false
		res.Warnings = append(res.Warnings, "registry phase is running but process is gone")
	}
	return res
}

// DefaultConstraints builds types.Constraints from the registry's own
// config, used by the monitor loop's periodic validation pass.
func (r *Registry) DefaultConstraints() types.Constraints {
	return types.Constraints{
		Resource: types.ResourceConstraints{
			MaxRSSBytes:      r.cfg.MaxRSSBytes,
			MaxFDCount:       r.cfg.MaxFDCount,
			MaxUptimeSeconds: r.cfg.MaxUptimeSeconds,
		},
	}
}

func (r *Registry) audit(ctx context.Context, pid int, kind types.AuditEventKind, processID string, detail map[string]any) {
	ev := types.PIDAuditEvent{
		EventID:   types.NewID(),
		PID:       pid,
		Kind:      kind,
		Timestamp: time.Now().Unix(),
		ProcessID: processID,
		Detail:    detail,
	}
	if err := r.insertAudit(ctx, ev); err != nil {
		logging.Warn().Err(err).Str("kind", string(kind)).Msg("registry: failed to persist audit event")
	}
}

// monitorLoop runs at RegistryConfig.HeartbeatIntervalSeconds, checking
// liveness, computing resource deltas and promoting vanished processes to
// orphaned (spec §4.2 Monitoring).
func (r *Registry) monitorLoop() {
	defer r.wg.Done()
	interval := time.Duration(r.cfg.HeartbeatIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.monitorTick()
		}
	}
}

func (r *Registry) monitorTick() {
	ctx := context.Background()
	records, err := r.listAllRunning(ctx)
	if err != nil {
		logging.Warn().Err(err).Msg("registry: monitor tick failed to list running processes")
		return
	}
	for _, rec := range records {
		if isProcessAlive(rec.PID) {
			metrics := collectResourceMetrics(rec.PID)
			_ = r.updateHeartbeat(ctx, rec.ProcessID, rec.LastHeartbeat, metrics)
			continue
		}
		if err := r.updateStatus(ctx, rec.ProcessID, types.ProcessOrphaned); err != nil {
			continue
		}
		r.mu.Lock()
		delete(r.pidLive, rec.PID)
		r.mu.Unlock()
		r.audit(ctx, rec.PID, types.AuditOrphaned, rec.ProcessID, nil)
		r.bus.Publish(event.Event{Type: event.ProcessOrphaned, Data: event.ProcessOrphanedData{ProcessID: rec.ProcessID, PID: rec.PID}})
	}
}

// maintenanceLoop runs hourly, pruning terminal records, stale validation
// results and old audit events past their retention windows (spec §4.2
// Periodic maintenance).
func (r *Registry) maintenanceLoop() {
	defer r.wg.Done()
	interval := time.Duration(r.cfg.MaintenanceIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.maintenanceTick()
		}
	}
}

const (
	terminalRetention   = 30 * 24 * time.Hour
	validationRetention = 7 * 24 * time.Hour
	auditRetention      = 90 * 24 * time.Hour
)

func (r *Registry) maintenanceTick() {
	ctx := context.Background()
	now := time.Now()

	if n, err := r.pruneTerminalOlderThan(ctx, now.Add(-terminalRetention).Unix()); err != nil {
		logging.Warn().Err(err).Msg("registry: failed to prune terminal records")
	} else if n > 0 {
		logging.Info().Int64("count", n).Msg("registry: pruned terminal records")
	}

	if n, err := r.pruneValidationOlderThan(ctx, now.Add(-validationRetention).Unix()); err != nil {
		logging.Warn().Err(err).Msg("registry: failed to prune validation results")
	} else if n > 0 {
		logging.Info().Int64("count", n).Msg("registry: pruned validation results")
	}

	if n, err := r.pruneAuditOlderThan(ctx, now.Add(-auditRetention).Unix()); err != nil {
		logging.Warn().Err(err).Msg("registry: failed to prune audit events")
	} else if n > 0 {
		logging.Info().Int64("count", n).Msg("registry: pruned audit events")
	}

	if err := r.compact(ctx); err != nil {
		logging.Warn().Err(err).Msg("registry: failed to compact store")
	}
}
