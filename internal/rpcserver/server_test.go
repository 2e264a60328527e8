package rpcserver

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/require"

	"github.com/shannon-mcp/shannon-mcp/internal/binaryresolver"
	"github.com/shannon-mcp/shannon-mcp/internal/checkpoint"
	"github.com/shannon-mcp/shannon-mcp/internal/config"
	"github.com/shannon-mcp/shannon-mcp/internal/db"
	"github.com/shannon-mcp/shannon-mcp/internal/event"
	"github.com/shannon-mcp/shannon-mcp/internal/registry"
	"github.com/shannon-mcp/shannon-mcp/internal/supervisor"
	"github.com/shannon-mcp/shannon-mcp/pkg/types"
)

func fakeCLIScript(t *testing.T, dir string, lines []string) string {
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
	require.NoError(t, os.WriteFile(path, []byte(body), 0o755))
	return path
}

type harness struct {
	mcp     *mcpserver.MCPServer
	cleanup func()
}

func newHarness(t *testing.T, binDir string) *harness {
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

	sup := supervisor.New(config.ConcurrencyConfig{MaxConcurrentSessions: 4, SessionTimeoutSeconds: 30, GracefulStopSeconds: 1},
		config.DecoderConfig{MaxPartialAgeSeconds: 1, MaxLineBytes: 1 << 20},
		config.CheckpointConfig{}, map[string]config.AgentConfig{}, paths, resolver, reg, cps, bus)
	ctx, cancel := context.WithCancel(context.Background())
	sup.Start(ctx)

	return &harness{
		mcp: NewServer(sup, cps, resolver),
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

func callTool(t *testing.T, h *harness, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	tool := h.mcp.GetTool(name)
	require.NotNil(t, tool, "tool %s should be registered", name)

	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args

	result, err := tool.Handler(context.Background(), req)
	require.NoError(t, err)
	return result
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestCreateSession_ReturnsSession(t *testing.T) {
	binDir := t.TempDir()
	fakeCLIScript(t, binDir, []string{`{"type":"response","content":"ok"}`})
	h := newHarness(t, binDir)
	defer h.cleanup()

	result := callTool(t, h, "create_session", map[string]any{"prompt": "hello", "model": "m"})
	require.False(t, result.IsError)

	var sess types.Session
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &sess))
	require.NotEmpty(t, sess.ID)
}

func TestCancelSession_ReturnsCancelledPhase(t *testing.T) {
	binDir := t.TempDir()
	fakeCLIScript(t, binDir, []string{`{"type":"partial","content":"working"}`})
	h := newHarness(t, binDir)
	defer h.cleanup()

	created := callTool(t, h, "create_session", map[string]any{"prompt": "hello", "model": "m"})
	var sess types.Session
	require.NoError(t, json.Unmarshal([]byte(resultText(t, created)), &sess))

	require.Eventually(t, func() bool {
		result := callTool(t, h, "cancel_session", map[string]any{"session_id": sess.ID, "reason": "test"})
		if result.IsError {
			return false
		}
		var cancelled types.Session
		if err := json.Unmarshal([]byte(resultText(t, result)), &cancelled); err != nil {
			return false
		}
		return cancelled.Phase == types.PhaseCancelled
	}, 5*time.Second, 20*time.Millisecond)
}

func TestListSessions_ReturnsTotal(t *testing.T) {
	binDir := t.TempDir()
	fakeCLIScript(t, binDir, []string{`{"type":"partial","content":"x"}`})
	h := newHarness(t, binDir)
	defer h.cleanup()

	callTool(t, h, "create_session", map[string]any{"prompt": "a", "model": "m"})
	callTool(t, h, "create_session", map[string]any{"prompt": "b", "model": "m"})

	result := callTool(t, h, "list_sessions", map[string]any{"status": "running"})
	require.False(t, result.IsError)

	var payload struct {
		Sessions []types.Session `json:"sessions"`
		Total    int             `json:"total"`
	}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &payload))
	require.Equal(t, 2, payload.Total)
}

func TestFindBinary_Found(t *testing.T) {
	binDir := t.TempDir()
	fakeCLIScript(t, binDir, nil)
	h := newHarness(t, binDir)
	defer h.cleanup()

	result := callTool(t, h, "find_binary", map[string]any{})
	require.False(t, result.IsError)

	var payload struct {
		Status string `json:"status"`
		Binary struct {
			Path string `json:"path"`
		} `json:"binary"`
	}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &payload))
	require.Equal(t, "found", payload.Status)
	require.NotEmpty(t, payload.Binary.Path)
}

func TestCheckpointLifecycle_CreateAndRestore(t *testing.T) {
	binDir := t.TempDir()
	fakeCLIScript(t, binDir, []string{`{"type":"response","content":"ok"}`})
	h := newHarness(t, binDir)
	defer h.cleanup()

	created := callTool(t, h, "create_session", map[string]any{"prompt": "hello", "model": "m"})
	var sess types.Session
	require.NoError(t, json.Unmarshal([]byte(resultText(t, created)), &sess))

	cpResult := callTool(t, h, "create_checkpoint", map[string]any{"session_id": sess.ID, "label": "first"})
	require.False(t, cpResult.IsError)

	var cpPayload struct {
		Checkpoint types.Checkpoint `json:"checkpoint"`
	}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, cpResult)), &cpPayload))
	require.NotEmpty(t, cpPayload.Checkpoint.ID)

	restoreResult := callTool(t, h, "restore_checkpoint", map[string]any{"checkpoint_id": cpPayload.Checkpoint.ID})
	require.False(t, restoreResult.IsError)

	var restorePayload struct {
		Session types.Session `json:"session"`
	}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, restoreResult)), &restorePayload))
	require.Equal(t, cpPayload.Checkpoint.ID, restorePayload.Session.ParentCheckpoint)
}
