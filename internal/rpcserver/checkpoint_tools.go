package rpcserver

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/shannon-mcp/shannon-mcp/internal/checkpoint"
	"github.com/shannon-mcp/shannon-mcp/internal/supervisor"
)

func (h *Server) createCheckpoint(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	sessionID := argString(args, "session_id")
	sess, err := h.sup.Get(sessionID)
	if err != nil {
		return errorResult(err), nil
	}
	cp, err := h.checkpoints.Create(ctx, sessionID, sess.ToSnapshot(), argString(args, "label"), argString(args, "description"), argStringSlice(args, "tags"))
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(map[string]any{"checkpoint": cp})
}

func (h *Server) restoreCheckpoint(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	overrides := argMap(args, "overrides")
	sess, err := h.sup.CreateSession(ctx, supervisor.CreateSessionRequest{
		ParentCheckpoint: argString(args, "checkpoint_id"),
		Model:            argString(overrides, "model"),
		AgentName:        argString(overrides, "agentName"),
	})
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(map[string]any{"session": sess})
}

func (h *Server) branchCheckpoint(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	cp, payload, err := h.checkpoints.Branch(ctx, argString(args, "checkpoint_id"), argString(args, "label"), argMap(args, "modifications"))
	if err != nil {
		return errorResult(err), nil
	}

	sess, err := h.sup.CreateSession(ctx, supervisor.CreateSessionRequest{
		ParentCheckpoint: payload.ParentCheckpoint,
		Model:            payload.Snapshot.Model,
		AgentName:        payload.Snapshot.AgentName,
		Context:          payload.Snapshot.Context,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(map[string]any{"session": sess, "checkpoint": cp})
}

func (h *Server) listCheckpoints(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	checkpoints, err := h.checkpoints.List(ctx, checkpoint.ListFilter{
		SessionID: argString(args, "session_id"),
		Tags:      argStringSlice(args, "tags"),
		Limit:     argInt(args, "limit"),
		Offset:    argInt(args, "offset"),
	})
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(map[string]any{"checkpoints": checkpoints, "total": len(checkpoints)})
}
