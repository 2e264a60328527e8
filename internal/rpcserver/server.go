package rpcserver

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/shannon-mcp/shannon-mcp/internal/binaryresolver"
	"github.com/shannon-mcp/shannon-mcp/internal/checkpoint"
	"github.com/shannon-mcp/shannon-mcp/internal/supervisor"
)

// Server wires the Supervisor, Checkpoint Store, and Binary Resolver to
// an MCP tool surface, grounded on the teacher's
// pkg/mcpserver/calculator.NewServer shape: one server.NewMCPServer plus
// one mcp.NewTool/AddTool pair per RPC surface entry (spec §6).
type Server struct {
	sup         *supervisor.Supervisor
	checkpoints *checkpoint.Store
	binary      *binaryresolver.Resolver
}

// NewServer constructs the MCP server and registers every tool in spec
// §6's table.
func NewServer(sup *supervisor.Supervisor, checkpoints *checkpoint.Store, binary *binaryresolver.Resolver) *server.MCPServer {
	h := &Server{sup: sup, checkpoints: checkpoints, binary: binary}

	s := server.NewMCPServer(
		"shannon-mcp",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	s.AddTool(mcp.NewTool("find_binary",
		mcp.WithDescription("Resolve the Claude Code CLI binary this daemon will spawn sessions against"),
	), h.findBinary)

	s.AddTool(mcp.NewTool("create_session",
		mcp.WithDescription("Spawn a new Claude Code CLI session"),
		mcp.WithString("prompt", mcp.Required(), mcp.Description("Initial user prompt")),
		mcp.WithString("model", mcp.Description("Model identifier; defaults to the daemon's configured default")),
		mcp.WithString("agent_name", mcp.Description("Named agent launch profile")),
		mcp.WithString("parent_checkpoint", mcp.Description("Checkpoint id to resume from")),
		mcp.WithObject("context", mcp.Description("Arbitrary session context carried through to checkpoints")),
	), h.createSession)

	s.AddTool(mcp.NewTool("send_message",
		mcp.WithDescription("Send a follow-up message to a running session"),
		mcp.WithString("session_id", mcp.Required()),
		mcp.WithString("content", mcp.Required()),
		mcp.WithNumber("timeout", mcp.Description("Write timeout in seconds")),
	), h.sendMessage)

	s.AddTool(mcp.NewTool("cancel_session",
		mcp.WithDescription("Cancel a session, gracefully then forcefully stopping its child"),
		mcp.WithString("session_id", mcp.Required()),
		mcp.WithString("reason", mcp.Description("Recorded cancellation reason")),
	), h.cancelSession)

	s.AddTool(mcp.NewTool("list_sessions",
		mcp.WithDescription("List live sessions, optionally filtered and paginated"),
		mcp.WithString("status", mcp.Description("Phase filter")),
		mcp.WithNumber("limit"),
		mcp.WithNumber("offset"),
		mcp.WithString("sort_by", mcp.Description("\"created\" or \"updated\"")),
		mcp.WithString("order", mcp.Description("\"asc\" or \"desc\"")),
	), h.listSessions)

	s.AddTool(mcp.NewTool("get_session_stream",
		mcp.WithDescription("Fetch the decoded messages a live session emits during a short window (about 100ms) after the call; messages emitted between calls are not returned"),
		mcp.WithString("session_id", mcp.Required()),
	), h.getSessionStream)

	s.AddTool(mcp.NewTool("create_checkpoint",
		mcp.WithDescription("Snapshot a session into an immutable checkpoint"),
		mcp.WithString("session_id", mcp.Required()),
		mcp.WithString("label"),
		mcp.WithString("description"),
		mcp.WithArray("tags", mcp.Items(map[string]any{"type": "string"})),
	), h.createCheckpoint)

	s.AddTool(mcp.NewTool("restore_checkpoint",
		mcp.WithDescription("Instantiate a new session from a checkpoint"),
		mcp.WithString("checkpoint_id", mcp.Required()),
		mcp.WithObject("overrides", mcp.Description("{model?, agentName?}")),
	), h.restoreCheckpoint)

	s.AddTool(mcp.NewTool("branch_checkpoint",
		mcp.WithDescription("Fork a checkpoint into a new labeled checkpoint and session"),
		mcp.WithString("checkpoint_id", mcp.Required()),
		mcp.WithString("label", mcp.Required()),
		mcp.WithObject("modifications"),
	), h.branchCheckpoint)

	s.AddTool(mcp.NewTool("list_checkpoints",
		mcp.WithDescription("List checkpoints, optionally filtered by session or tags"),
		mcp.WithString("session_id"),
		mcp.WithArray("tags", mcp.Items(map[string]any{"type": "string"})),
		mcp.WithNumber("limit"),
		mcp.WithNumber("offset"),
	), h.listCheckpoints)

	return s
}

// Serve runs the server over stdio, matching the teacher's
// cmd/calculator-mcp entrypoint (server.ServeStdio).
func Serve(sup *supervisor.Supervisor, checkpoints *checkpoint.Store, binary *binaryresolver.Resolver) error {
	return server.ServeStdio(NewServer(sup, checkpoints, binary))
}
