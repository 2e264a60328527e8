package commands

import (
	"strings"

	"github.com/spf13/cobra"
)

var (
	createPrompt           string
	createModel            string
	createAgentName        string
	createParentCheckpoint string

	sendSessionID string
	sendContent   string
	sendTimeout   int

	cancelSessionID string
	cancelReason    string

	listStatus string
	listLimit  int
	listOffset int
	listSortBy string
	listOrder  string

	streamSessionID string
)

var createSessionCmd = &cobra.Command{
	Use:   "create-session",
	Short: "Spawn a new Claude Code CLI session",
	RunE: func(cmd *cobra.Command, args []string) error {
		return callTool(cmd.Context(), "create_session", map[string]any{
			"prompt":            createPrompt,
			"model":             createModel,
			"agent_name":        createAgentName,
			"parent_checkpoint": createParentCheckpoint,
		})
	},
}

var sendMessageCmd = &cobra.Command{
	Use:   "send-message",
	Short: "Send a follow-up message to a running session",
	RunE: func(cmd *cobra.Command, args []string) error {
		return callTool(cmd.Context(), "send_message", map[string]any{
			"session_id": sendSessionID,
			"content":    sendContent,
			"timeout":    sendTimeout,
		})
	},
}

var cancelSessionCmd = &cobra.Command{
	Use:   "cancel-session",
	Short: "Cancel a session",
	RunE: func(cmd *cobra.Command, args []string) error {
		return callTool(cmd.Context(), "cancel_session", map[string]any{
			"session_id": cancelSessionID,
			"reason":     cancelReason,
		})
	},
}

var listSessionsCmd = &cobra.Command{
	Use:   "list-sessions",
	Short: "List live sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		return callTool(cmd.Context(), "list_sessions", map[string]any{
			"status":  listStatus,
			"limit":   listLimit,
			"offset":  listOffset,
			"sort_by": listSortBy,
			"order":   listOrder,
		})
	},
}

var getSessionStreamCmd = &cobra.Command{
	Use:   "get-session-stream",
	Short: "Fetch decoded messages a session has emitted since the last call",
	RunE: func(cmd *cobra.Command, args []string) error {
		return callTool(cmd.Context(), "get_session_stream", map[string]any{
			"session_id": streamSessionID,
		})
	},
}

func init() {
	createSessionCmd.Flags().StringVar(&createPrompt, "prompt", "", "initial user prompt")
	createSessionCmd.Flags().StringVar(&createModel, "model", "", "model identifier")
	createSessionCmd.Flags().StringVar(&createAgentName, "agent", "", "named agent launch profile")
	createSessionCmd.Flags().StringVar(&createParentCheckpoint, "parent-checkpoint", "", "checkpoint id to resume from")
	_ = createSessionCmd.MarkFlagRequired("prompt")

	sendMessageCmd.Flags().StringVar(&sendSessionID, "session", "", "session id")
	sendMessageCmd.Flags().StringVar(&sendContent, "content", "", "message content")
	sendMessageCmd.Flags().IntVar(&sendTimeout, "timeout", 0, "write timeout in seconds")
	_ = sendMessageCmd.MarkFlagRequired("session")
	_ = sendMessageCmd.MarkFlagRequired("content")

	cancelSessionCmd.Flags().StringVar(&cancelSessionID, "session", "", "session id")
	cancelSessionCmd.Flags().StringVar(&cancelReason, "reason", "", "recorded cancellation reason")
	_ = cancelSessionCmd.MarkFlagRequired("session")

	listSessionsCmd.Flags().StringVar(&listStatus, "status", "", "phase filter")
	listSessionsCmd.Flags().IntVar(&listLimit, "limit", 0, "page size")
	listSessionsCmd.Flags().IntVar(&listOffset, "offset", 0, "page offset")
	listSessionsCmd.Flags().StringVar(&listSortBy, "sort-by", "", strings.Join([]string{"created", "updated"}, " or "))
	listSessionsCmd.Flags().StringVar(&listOrder, "order", "", "asc or desc")

	getSessionStreamCmd.Flags().StringVar(&streamSessionID, "session", "", "session id")
	_ = getSessionStreamCmd.MarkFlagRequired("session")
}
