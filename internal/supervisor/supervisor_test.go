package supervisor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shannon-mcp/shannon-mcp/internal/binaryresolver"
	"github.com/shannon-mcp/shannon-mcp/internal/checkpoint"
	"github.com/shannon-mcp/shannon-mcp/internal/config"
	"github.com/shannon-mcp/shannon-mcp/internal/db"
	"github.com/shannon-mcp/shannon-mcp/internal/event"
	"github.com/shannon-mcp/shannon-mcp/internal/registry"
	"github.com/shannon-mcp/shannon-mcp/pkg/types"
	"github.com/stretchr/testify/require"
)

// fakeCLIScript writes a stand-in for the Claude Code CLI child (spec §6
// child contract) that responds to --version for Binary Resolver probing,
// and otherwise echoes one line per byte string in lines to stdout.
func fakeCLIScript(t *testing.T, dir string, lines []string, hang bool) string {
	t.Helper()
	path := filepath.Join(dir, "claude")
	body := "#!/bin/sh\n" +
		"for a in \"$@\"; do\n" +
		"  if [ \"$a\" = \"--version\" ]; then echo \"1.0.0\"; exit 0; fi\n" +
		"done\n" +
		"read -r _ignored_prompt\n"
	for _, l := range lines {
		body += "printf '%s\\n' '" + l + "'\n"
	}
	if hang {
		body += "sleep 600\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(body), 0o755))
	return path
}

type testHarness struct {
	sup     *Supervisor
	cleanup func()
}

func newHarness(t *testing.T, binDir string, cfg config.ConcurrencyConfig) *testHarness {
	t.Helper()
	dir := t.TempDir()

	origPath := os.Getenv("PATH")
	require.NoError(t, os.Setenv("PATH", binDir+string(os.PathListSeparator)+origPath))

	regDB, err := db.Open(filepath.Join(dir, "process_registry.db"))
	require.NoError(t, err)
	require.NoError(t, db.MigrateProcessRegistry(regDB))

	sessDB, err := db.Open(filepath.Join(dir, "sessions.db"))
	require.NoError(t, err)
	require.NoError(t, db.MigrateSessions(sessDB))

	paths := &config.Paths{Root: dir}
	require.NoError(t, paths.EnsurePaths())
	bus := event.NewBus()

	reg := registry.New(regDB, paths, bus, config.RegistryConfig{})
	require.NoError(t, reg.Start(context.Background()))

	resolver := binaryresolver.New(config.BinaryConfig{Names: []string{"claude"}}, reg)
	cps := checkpoint.New(sessDB, paths, bus, config.CheckpointConfig{MaxPerSession: 10, RetentionDays: 30})

	sup := New(cfg, config.DecoderConfig{MaxPartialAgeSeconds: 1, MaxLineBytes: 1 << 20},
		config.CheckpointConfig{}, map[string]config.AgentConfig{}, paths, resolver, reg, cps, bus)
	ctx, cancel := context.WithCancel(context.Background())
	sup.Start(ctx)

	return &testHarness{
		sup: sup,
		cleanup: func() {
			cancel()
			reg.Stop()
			regDB.Close()
			sessDB.Close()
			bus.Close()
			os.Setenv("PATH", origPath)
		},
	}
}

func waitForPhase(t *testing.T, sup *Supervisor, sessionID string, phase types.Phase, timeout time.Duration) *types.Session {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		sess, err := sup.Get(sessionID)
		if err == nil && sess.Phase == phase {
			return sess
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("session %s did not reach phase %s in time", sessionID, phase)
	return nil
}

func TestCreateSession_HappyPath(t *testing.T) {
	binDir := t.TempDir()
	fakeCLIScript(t, binDir, []string{
		`{"type":"partial","content":"hi"}`,
		`{"type":"partial","content":" there"}`,
		`{"type":"response","content":"hi there"}`,
	}, false)

	h := newHarness(t, binDir, config.ConcurrencyConfig{MaxConcurrentSessions: 2, SessionTimeoutSeconds: 30, GracefulStopSeconds: 1})
	defer h.cleanup()

	sess, err := h.sup.CreateSession(context.Background(), CreateSessionRequest{Prompt: "hello", Model: "m"})
	require.NoError(t, err)
	require.NotEmpty(t, sess.ID)

	final := waitForPhase(t, h.sup, sess.ID, types.PhaseCompleted, 5*time.Second)
	require.Len(t, final.Messages, 2)
	require.Equal(t, types.RoleAssistant, final.Messages[1].Role)
	require.Equal(t, "hi there", final.Messages[1].Content)
}

func TestCancelSession_DuringStreaming(t *testing.T) {
	binDir := t.TempDir()
	fakeCLIScript(t, binDir, []string{
		`{"type":"partial","content":"working"}`,
	}, true)

	h := newHarness(t, binDir, config.ConcurrencyConfig{MaxConcurrentSessions: 2, SessionTimeoutSeconds: 30, GracefulStopSeconds: 1})
	defer h.cleanup()

	sess, err := h.sup.CreateSession(context.Background(), CreateSessionRequest{Prompt: "hello", Model: "m"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		s, err := h.sup.Get(sess.ID)
		return err == nil && s.PendingResponse != "" || (err == nil && len(s.Messages) > 1)
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, h.sup.CancelSession(context.Background(), sess.ID, "test cancel"))

	final := waitForPhase(t, h.sup, sess.ID, types.PhaseCancelled, 5*time.Second)
	require.Equal(t, types.RoleAssistant, final.Messages[len(final.Messages)-1].Role)
	require.Equal(t, "working", final.Messages[len(final.Messages)-1].Content)
}

func TestCreateSession_CapacityExceeded(t *testing.T) {
	binDir := t.TempDir()
	fakeCLIScript(t, binDir, []string{`{"type":"partial","content":"x"}`}, true)

	h := newHarness(t, binDir, config.ConcurrencyConfig{MaxConcurrentSessions: 2, SessionTimeoutSeconds: 30, GracefulStopSeconds: 1})
	defer h.cleanup()

	ctx := context.Background()
	s1, err := h.sup.CreateSession(ctx, CreateSessionRequest{Prompt: "a", Model: "m"})
	require.NoError(t, err)
	_, err = h.sup.CreateSession(ctx, CreateSessionRequest{Prompt: "b", Model: "m"})
	require.NoError(t, err)

	_, err = h.sup.CreateSession(ctx, CreateSessionRequest{Prompt: "c", Model: "m"})
	require.True(t, errors.Is(err, types.ErrCapacityExceeded))

	require.NoError(t, h.sup.CancelSession(ctx, s1.ID, "freeing capacity"))
	waitForPhase(t, h.sup, s1.ID, types.PhaseCancelled, 5*time.Second)

	_, err = h.sup.CreateSession(ctx, CreateSessionRequest{Prompt: "d", Model: "m"})
	require.NoError(t, err)
}

func TestSendMessage_RequiresRunningPhase(t *testing.T) {
	binDir := t.TempDir()
	fakeCLIScript(t, binDir, []string{`{"type":"response","content":"ok"}`}, false)

	h := newHarness(t, binDir, config.ConcurrencyConfig{MaxConcurrentSessions: 2, SessionTimeoutSeconds: 30, GracefulStopSeconds: 1})
	defer h.cleanup()

	err := h.sup.SendMessage(context.Background(), "does-not-exist", "hi", 0)
	require.True(t, errors.Is(err, types.ErrSessionNotFound))
}

func TestListSessions_FiltersAndPaginates(t *testing.T) {
	binDir := t.TempDir()
	fakeCLIScript(t, binDir, []string{`{"type":"partial","content":"x"}`}, true)

	h := newHarness(t, binDir, config.ConcurrencyConfig{MaxConcurrentSessions: 3, SessionTimeoutSeconds: 30, GracefulStopSeconds: 1})
	defer h.cleanup()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := h.sup.CreateSession(ctx, CreateSessionRequest{Prompt: "p", Model: "m"})
		require.NoError(t, err)
	}

	sessions, total := h.sup.ListSessions(ListFilter{Status: string(types.PhaseRunning)})
	require.Equal(t, 3, total)
	require.Len(t, sessions, 3)

	limited, total := h.sup.ListSessions(ListFilter{Limit: 1})
	require.Equal(t, 3, total)
	require.Len(t, limited, 1)
}
