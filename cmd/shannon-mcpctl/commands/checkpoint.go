package commands

import (
	"github.com/spf13/cobra"
)

var (
	checkpointSessionID string
	checkpointLabel     string
	checkpointDesc      string
	checkpointTags      []string

	restoreCheckpointID string
	restoreModel        string
	restoreAgentName    string

	branchCheckpointID string
	branchLabel        string

	listCheckpointSession string
	listCheckpointTags    []string
	listCheckpointLimit   int
	listCheckpointOffset  int
)

var createCheckpointCmd = &cobra.Command{
	Use:   "create-checkpoint",
	Short: "Snapshot a session into an immutable checkpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		return callTool(cmd.Context(), "create_checkpoint", map[string]any{
			"session_id":  checkpointSessionID,
			"label":       checkpointLabel,
			"description": checkpointDesc,
			"tags":        checkpointTags,
		})
	},
}

var restoreCheckpointCmd = &cobra.Command{
	Use:   "restore-checkpoint",
	Short: "Instantiate a new session from a checkpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		overrides := map[string]any{}
		if restoreModel != "" {
			overrides["model"] = restoreModel
		}
		if restoreAgentName != "" {
			overrides["agentName"] = restoreAgentName
		}
		return callTool(cmd.Context(), "restore_checkpoint", map[string]any{
			"checkpoint_id": restoreCheckpointID,
			"overrides":     overrides,
		})
	},
}

var branchCheckpointCmd = &cobra.Command{
	Use:   "branch-checkpoint",
	Short: "Fork a checkpoint into a new labeled checkpoint and session",
	RunE: func(cmd *cobra.Command, args []string) error {
		return callTool(cmd.Context(), "branch_checkpoint", map[string]any{
			"checkpoint_id": branchCheckpointID,
			"label":         branchLabel,
		})
	},
}

var listCheckpointsCmd = &cobra.Command{
	Use:   "list-checkpoints",
	Short: "List checkpoints, optionally filtered by session or tags",
	RunE: func(cmd *cobra.Command, args []string) error {
		return callTool(cmd.Context(), "list_checkpoints", map[string]any{
			"session_id": listCheckpointSession,
			"tags":       listCheckpointTags,
			"limit":      listCheckpointLimit,
			"offset":     listCheckpointOffset,
		})
	},
}

func init() {
	createCheckpointCmd.Flags().StringVar(&checkpointSessionID, "session", "", "session id")
	createCheckpointCmd.Flags().StringVar(&checkpointLabel, "label", "", "checkpoint label")
	createCheckpointCmd.Flags().StringVar(&checkpointDesc, "description", "", "checkpoint description")
	createCheckpointCmd.Flags().StringSliceVar(&checkpointTags, "tag", nil, "tag, repeatable")
	_ = createCheckpointCmd.MarkFlagRequired("session")

	restoreCheckpointCmd.Flags().StringVar(&restoreCheckpointID, "checkpoint", "", "checkpoint id")
	restoreCheckpointCmd.Flags().StringVar(&restoreModel, "model", "", "override model")
	restoreCheckpointCmd.Flags().StringVar(&restoreAgentName, "agent", "", "override agent launch profile")
	_ = restoreCheckpointCmd.MarkFlagRequired("checkpoint")

	branchCheckpointCmd.Flags().StringVar(&branchCheckpointID, "checkpoint", "", "checkpoint id")
	branchCheckpointCmd.Flags().StringVar(&branchLabel, "label", "", "label for the new branch checkpoint")
	_ = branchCheckpointCmd.MarkFlagRequired("checkpoint")
	_ = branchCheckpointCmd.MarkFlagRequired("label")

	listCheckpointsCmd.Flags().StringVar(&listCheckpointSession, "session", "", "session id filter")
	listCheckpointsCmd.Flags().StringSliceVar(&listCheckpointTags, "tag", nil, "tag filter, repeatable")
	listCheckpointsCmd.Flags().IntVar(&listCheckpointLimit, "limit", 0, "page size")
	listCheckpointsCmd.Flags().IntVar(&listCheckpointOffset, "offset", 0, "page offset")
}
