// Package rpcserver exposes the daemon's session and checkpoint lifecycle
// as an MCP tool surface over stdio, built with mark3labs/mcp-go (spec
// §4.7, §6). Each tool handler is a thin adapter from the wire arguments
// to the Supervisor, Checkpoint Store, or Binary Resolver call that does
// the actual work — no business logic lives here.
package rpcserver
