package registry

import (
	"context"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/shannon-mcp/shannon-mcp/internal/config"
	"github.com/shannon-mcp/shannon-mcp/internal/db"
	"github.com/shannon-mcp/shannon-mcp/internal/event"
	"github.com/shannon-mcp/shannon-mcp/pkg/types"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	dir := t.TempDir()

	database, err := db.Open(filepath.Join(dir, "process_registry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, db.MigrateProcessRegistry(database))

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "pids"), 0755))
	paths := &config.Paths{Root: dir}
	bus := event.NewBus()
	t.Cleanup(func() { bus.Close() })

	return New(database, paths, bus, config.RegistryConfig{
		HeartbeatIntervalSeconds:   30,
		MaintenanceIntervalSeconds: 3600,
		MaxRSSBytes:                1 << 30,
		MaxFDCount:                 1024,
		MaxUptimeSeconds:           86400,
	})
}

// spawnSleeper starts a short-lived real child so isProcessAlive has a
// genuine PID to probe, and returns the *exec.Cmd so the caller can wait
// on its exit to simulate termination/orphaning.
func spawnSleeper(t *testing.T) *exec.Cmd {
	t.Helper()
	cmd := exec.Command("sleep", "30")
	require.NoError(t, cmd.Start())
	t.Cleanup(func() { _ = cmd.Process.Kill() })
	return cmd
}

func TestRegister_NewProcess(t *testing.T) {
	r := newTestRegistry(t)
	cmd := spawnSleeper(t)
	ctx := context.Background()

	processID, err := r.Register(ctx, cmd.Process.Pid, os.Getpid(), "sleep 30", "/bin/sleep", "sess-1", SpawnAttrs{})
	require.NoError(t, err)
	require.NotEmpty(t, processID)

	rec, found, err := r.GetByPID(ctx, cmd.Process.Pid)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, processID, rec.ProcessID)
	require.Equal(t, types.ProcessRunning, rec.Status)

	_, err = os.Stat(filepath.Join(r.paths.PIDsDir(), processID+".pid"))
	require.NoError(t, err)
}

func TestRegister_IsIdempotentForSameIdentity(t *testing.T) {
	r := newTestRegistry(t)
	cmd := spawnSleeper(t)
	ctx := context.Background()

	first, err := r.Register(ctx, cmd.Process.Pid, os.Getpid(), "sleep 30", "/bin/sleep", "sess-1", SpawnAttrs{})
	require.NoError(t, err)

	second, err := r.Register(ctx, cmd.Process.Pid, os.Getpid(), "sleep 30", "/bin/sleep", "sess-1", SpawnAttrs{})
	require.NoError(t, err)

	require.Equal(t, first, second)
}

func TestRegister_DetectsPIDReuse(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()
	const pid = 999999

	first, err := r.insertFakeLiveProcess(ctx, pid, 1000)
	require.NoError(t, err)

	cmd := spawnSleeper(t)
	createdAt, ok := processCreationTime(cmd.Process.Pid)
	if !ok {
		createdAt = time.Now().Unix()
	}

	// Simulate the OS reusing `pid` for the new process by registering the
	// sleeper under that same numeric PID with a different creation time.
	second, err := r.registerWithIdentity(ctx, pid, createdAt, os.Getpid(), "sleep 30", "/bin/sleep", "sess-2")
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	staleRec, found, err := r.getByID(ctx, first)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, types.ProcessStopped, staleRec.Status)
}

func TestUnregister(t *testing.T) {
	r := newTestRegistry(t)
	cmd := spawnSleeper(t)
	ctx := context.Background()

	processID, err := r.Register(ctx, cmd.Process.Pid, os.Getpid(), "sleep 30", "/bin/sleep", "", SpawnAttrs{})
	require.NoError(t, err)

	require.NoError(t, r.Unregister(ctx, processID))

	rec, found, err := r.getByID(ctx, processID)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, types.ProcessStopped, rec.Status)

	_, err = os.Stat(filepath.Join(r.paths.PIDsDir(), processID+".pid"))
	require.True(t, os.IsNotExist(err))
}

func TestHeartbeat_NoopOnUnknownProcess(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.Heartbeat(context.Background(), "does-not-exist"))
}

func TestList_FiltersByStatus(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()
	cmd := spawnSleeper(t)

	processID, err := r.Register(ctx, cmd.Process.Pid, os.Getpid(), "sleep 30", "/bin/sleep", "", SpawnAttrs{})
	require.NoError(t, err)

	running, err := r.List(ctx, ListFilter{Status: types.ProcessRunning})
	require.NoError(t, err)
	require.Len(t, running, 1)
	require.Equal(t, processID, running[0].ProcessID)

	stopped, err := r.List(ctx, ListFilter{Status: types.ProcessStopped})
	require.NoError(t, err)
	require.Empty(t, stopped)
}

func TestTerminate_Graceful(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()
	cmd := spawnSleeper(t)

	processID, err := r.Register(ctx, cmd.Process.Pid, os.Getpid(), "sleep 30", "/bin/sleep", "", SpawnAttrs{})
	require.NoError(t, err)

	require.NoError(t, r.Terminate(ctx, processID, true, 2*time.Second))

	require.False(t, isProcessAlive(cmd.Process.Pid))
	rec, found, err := r.getByID(ctx, processID)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, types.ProcessStopped, rec.Status)
}

func TestValidate_FailsWhenProcessGone(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()
	cmd := spawnSleeper(t)

	processID, err := r.Register(ctx, cmd.Process.Pid, os.Getpid(), "sleep 30", "/bin/sleep", "", SpawnAttrs{})
	require.NoError(t, err)

	require.NoError(t, cmd.Process.Kill())
	_, _ = cmd.Process.Wait()

	result, err := r.Validate(ctx, processID, r.DefaultConstraints())
	require.NoError(t, err)
	require.False(t, result.Passed)
}

func TestValidate_PassesForLiveProcess(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()
	cmd := spawnSleeper(t)

	processID, err := r.Register(ctx, cmd.Process.Pid, os.Getpid(), "sleep 30", "/bin/sleep", "", SpawnAttrs{})
	require.NoError(t, err)

	result, err := r.Validate(ctx, processID, r.DefaultConstraints())
	require.NoError(t, err)
	require.True(t, result.Passed)
}

func TestValidate_SecurityChecksUserGroupRootAndEnv(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()
	cmd := spawnSleeper(t)

	self, err := user.LookupId(strconv.Itoa(os.Getuid()))
	require.NoError(t, err)

	processID, err := r.Register(ctx, cmd.Process.Pid, os.Getpid(), "sleep 30", "/bin/sleep", "", SpawnAttrs{
		UID:        os.Getuid(),
		GID:        os.Getgid(),
		WorkingDir: "/var/lib/shannon-mcp/sessions",
		Env:        []string{"PATH=/usr/bin", "LD_PRELOAD=/tmp/evil.so"},
	})
	require.NoError(t, err)

	constraints := r.DefaultConstraints()
	constraints.Security = types.SecurityConstraints{
		AllowedUsers:   []string{self.Username},
		PermittedRoots: []string{"/var/lib/shannon-mcp"},
		FlaggedEnvVars: []string{"LD_PRELOAD"},
	}
	result, err := r.Validate(ctx, processID, constraints)
	require.NoError(t, err)
	require.False(t, result.Passed)

	var security types.CategoryResult
	for _, c := range result.Results {
		if c.Category == types.CategorySecurity {
			security = c
		}
	}
	require.Contains(t, security.Warnings, "flagged environment variable present: LD_PRELOAD")

	constraints.Security.FlaggedEnvVars = nil
	constraints.Security.PermittedRoots = nil
	result, err = r.Validate(ctx, processID, constraints)
	require.NoError(t, err)
	require.True(t, result.Passed)
}

func TestDiscoveryRecorder_RoundTrip(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	_, ok, err := r.LastSuccessfulDiscovery(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, r.RecordDiscovery(ctx, "path", "failed", "not found", time.Millisecond))
	require.NoError(t, r.RecordDiscovery(ctx, "path", "found", "/usr/local/bin/claude", 2*time.Millisecond))

	path, ok, err := r.LastSuccessfulDiscovery(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "/usr/local/bin/claude", path)
}

func TestStartReconcilesOrphanedProcess(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	// A record pointing at a PID that does not exist simulates a daemon
	// restart after its previously-registered child vanished.
	_, err := r.insertFakeLiveProcess(ctx, 999998, time.Now().Unix())
	require.NoError(t, err)

	require.NoError(t, r.Start(ctx))
	defer r.Stop()

	records, err := r.List(ctx, ListFilter{Status: types.ProcessOrphaned})
	require.NoError(t, err)
	require.Len(t, records, 1)
}

// insertFakeLiveProcess and registerWithIdentity are small test-only seams
// that bypass processCreationTime's dependency on a real OS process, so PID
// reuse and reconciliation can be exercised deterministically.

func (r *Registry) insertFakeLiveProcess(ctx context.Context, pid int, createdAt int64) (string, error) {
	cp := &types.ChildProcess{
		ProcessID: types.NewID(),
		PID:       pid,
		CreatedAt: createdAt,
		Status:    types.ProcessRunning,
	}
	if err := r.insertProcess(ctx, cp); err != nil {
		return "", err
	}
	return cp.ProcessID, nil
}

func (r *Registry) registerWithIdentity(ctx context.Context, pid int, createdAt int64, parentPID int, commandLine, executablePath, sessionID string) (string, error) {
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
	}
	if err := r.insertProcess(ctx, cp); err != nil {
		return "", err
	}
	r.mu.Lock()
	r.pidLive[pid] = cp.ProcessID
	r.mu.Unlock()
	return cp.ProcessID, nil
}
