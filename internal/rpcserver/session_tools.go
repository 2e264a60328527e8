package rpcserver

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/shannon-mcp/shannon-mcp/internal/supervisor"
)

func (h *Server) createSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	sess, err := h.sup.CreateSession(ctx, supervisor.CreateSessionRequest{
		Prompt:           argString(args, "prompt"),
		Model:            argString(args, "model"),
		AgentName:        argString(args, "agent_name"),
		ParentCheckpoint: argString(args, "parent_checkpoint"),
		Context:          argMap(args, "context"),
	})
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(sess)
}

func (h *Server) sendMessage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	timeout := time.Duration(argInt(args, "timeout")) * time.Second
	if err := h.sup.SendMessage(ctx, argString(args, "session_id"), argString(args, "content"), timeout); err != nil {
		return errorResult(err), nil
	}
	return jsonResult(map[string]bool{"ok": true})
}

func (h *Server) cancelSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	sessionID := argString(args, "session_id")
	if err := h.sup.CancelSession(ctx, sessionID, argString(args, "reason")); err != nil {
		return errorResult(err), nil
	}
	sess, err := h.sup.Get(sessionID)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(sess)
}

func (h *Server) listSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	sessions, total := h.sup.ListSessions(supervisor.ListFilter{
		Status: argString(args, "status"),
		Limit:  argInt(args, "limit"),
		Offset: argInt(args, "offset"),
		SortBy: argString(args, "sort_by"),
		Desc:   argString(args, "order") == "desc",
	})
	return jsonResult(map[string]any{"sessions": sessions, "total": total})
}

// streamEnvelope is the wire shape for one decoded message in
// get_session_stream's response array.
type streamEnvelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// getSessionStream subscribes to the session's fan-out for the duration of
// the call and collects what arrives within 100ms; messages emitted before
// the call or between calls are not returned. MCP tool calls are
// request/response, not a push stream, so this RPC is a polling snapshot:
// callers re-invoke it to keep reading (spec §6 "ordered sequence of
// decoded messages" is satisfied per-call, not across calls).
func (h *Server) getSessionStream(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	ch, unsub, err := h.sup.Stream(argString(args, "session_id"))
	if err != nil {
		return errorResult(err), nil
	}
	defer unsub()

	var out []streamEnvelope
	deadline := time.After(100 * time.Millisecond)
drain:
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				break drain
			}
			out = append(out, streamEnvelope{Type: msg.DecodedType(), Payload: msg})
		case <-deadline:
			break drain
		case <-ctx.Done():
			break drain
		}
	}

	stats, err := h.sup.DecoderStats(argString(args, "session_id"))
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(map[string]any{"messages": out, "backpressure": stats.Backpressure})
}
