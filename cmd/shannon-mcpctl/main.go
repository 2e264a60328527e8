// Command shannon-mcpctl is a companion CLI for shannon-mcpd: it spawns the
// daemon as a subprocess, speaks MCP to it over stdio, and prints tool
// results as JSON.
package main

import (
	"fmt"
	"os"

	"github.com/shannon-mcp/shannon-mcp/cmd/shannon-mcpctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
