package event

import "github.com/shannon-mcp/shannon-mcp/pkg/types"

// SessionCreatedData is the data for session.created events.
type SessionCreatedData struct {
	Session *types.Session `json:"session"`
}

// SessionPhaseChangedData is the data for session.phase_changed events.
type SessionPhaseChangedData struct {
	SessionID string      `json:"sessionID"`
	OldPhase  types.Phase `json:"oldPhase"`
	NewPhase  types.Phase `json:"newPhase"`
}

// SessionMessageAppendedData is the data for session.message_appended events.
type SessionMessageAppendedData struct {
	SessionID string         `json:"sessionID"`
	Message   *types.Message `json:"message"`
}

// SessionErrorData is the data for session.error events.
type SessionErrorData struct {
	SessionID string       `json:"sessionID"`
	Error     *types.Error `json:"error"`
}

// CheckpointCreatedData is the data for checkpoint.created events.
type CheckpointCreatedData struct {
	Checkpoint *types.Checkpoint `json:"checkpoint"`
}

// CheckpointBranchedData is the data for checkpoint.branched events.
type CheckpointBranchedData struct {
	ParentCheckpointID string            `json:"parentCheckpointID"`
	NewCheckpoint      *types.Checkpoint `json:"newCheckpoint"`
}

// ProcessRegisteredData is the data for process.registered events.
type ProcessRegisteredData struct {
	Process *types.ChildProcess `json:"process"`
}

// ProcessTerminatedData is the data for process.terminated events.
type ProcessTerminatedData struct {
	ProcessID string `json:"processID"`
	PID       int    `json:"pid"`
	Reason    string `json:"reason,omitempty"`
}

// ProcessOrphanedData is the data for process.orphaned events.
type ProcessOrphanedData struct {
	ProcessID string `json:"processID"`
	PID       int    `json:"pid"`
}

// ProcessValidationFailedData is the data for process.validation_failed events.
type ProcessValidationFailedData struct {
	Result *types.ValidationResult `json:"result"`
}

// RegistryPIDReusedData is the data for registry.pid_reused events.
type RegistryPIDReusedData struct {
	PID             int    `json:"pid"`
	PreviousProcess string `json:"previousProcessID"`
	NewProcess      string `json:"newProcessID"`
}
