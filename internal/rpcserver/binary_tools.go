package rpcserver

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/shannon-mcp/shannon-mcp/pkg/types"
)

func (h *Server) findBinary(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, err := h.binary.Resolve(ctx, false)
	if err != nil {
		if errors.Is(err, types.ErrBinaryUnavailable) {
			return jsonResult(map[string]any{
				"status":      "not_found",
				"suggestions": h.binary.Suggestions(),
			})
		}
		return errorResult(err), nil
	}
	return jsonResult(map[string]any{
		"status": "found",
		"binary": ref,
	})
}
