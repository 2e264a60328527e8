// Package commands provides the shannon-mcpctl CLI commands.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

const version = "1.0.0"

var (
	daemonPath string
	workDir    string
)

var rootCmd = &cobra.Command{
	Use:     "shannon-mcpctl",
	Short:   "Control a shannon-mcpd session supervisor daemon",
	Version: version,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&daemonPath, "daemon", "shannon-mcpd", "path to the shannon-mcpd binary")
	rootCmd.PersistentFlags().StringVar(&workDir, "directory", "", "project directory passed through to the daemon")
	rootCmd.SetVersionTemplate(fmt.Sprintf("shannon-mcpctl %s\n", version))

	rootCmd.AddCommand(createSessionCmd)
	rootCmd.AddCommand(sendMessageCmd)
	rootCmd.AddCommand(cancelSessionCmd)
	rootCmd.AddCommand(listSessionsCmd)
	rootCmd.AddCommand(getSessionStreamCmd)
	rootCmd.AddCommand(findBinaryCmd)
	rootCmd.AddCommand(createCheckpointCmd)
	rootCmd.AddCommand(restoreCheckpointCmd)
	rootCmd.AddCommand(branchCheckpointCmd)
	rootCmd.AddCommand(listCheckpointsCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
