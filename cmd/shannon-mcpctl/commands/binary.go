package commands

import (
	"github.com/spf13/cobra"
)

var findBinaryCmd = &cobra.Command{
	Use:   "find-binary",
	Short: "Resolve the Claude Code CLI binary the daemon will spawn sessions against",
	RunE: func(cmd *cobra.Command, args []string) error {
		return callTool(cmd.Context(), "find_binary", map[string]any{})
	},
}
