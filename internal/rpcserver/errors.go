package rpcserver

import (
	"encoding/json"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/shannon-mcp/shannon-mcp/pkg/types"
)

// errorResult maps the error taxonomy (spec §7) onto an MCP tool error
// result: {code, message, details}. Anything not already a *types.Error
// is wrapped as Internal, generalizing the teacher's single
// storage.ErrNotFound-to-string mapping into the full taxonomy.
func errorResult(err error) *mcp.CallToolResult {
	var te *types.Error
	if !errors.As(err, &te) {
		te = types.NewError(types.KindInternal, err.Error(), err)
	}
	envelope := map[string]any{
		"code":    string(te.Kind),
		"message": te.Message,
	}
	if te.Details != nil {
		envelope["details"] = te.Details
	}
	raw, mErr := json.Marshal(envelope)
	if mErr != nil {
		return mcp.NewToolResultError(te.Error())
	}
	return mcp.NewToolResultError(string(raw))
}

// jsonResult marshals v as the tool's success payload.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(raw)), nil
}
