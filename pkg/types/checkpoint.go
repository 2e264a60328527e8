package types

// Checkpoint is an immutable snapshot of a session (spec §3, §4.4).
// Once written, its payload is immutable; the payload hash uniquely
// identifies content so two checkpoints with identical content share one
// CAS blob (single-instance storage, testable property 4).
type Checkpoint struct {
	ID                string         `json:"id"`
	SessionID         string         `json:"sessionID"`
	Label             string         `json:"label,omitempty"`
	Description       string         `json:"description,omitempty"`
	CreatedAt         int64          `json:"createdAt"`
	ContentHash       string         `json:"contentHash"`
	StoredSizeBytes   int64          `json:"storedSizeBytes"`
	CompressionRatio  float64        `json:"compressionRatio"`
	Tags              []string       `json:"tags,omitempty"`
	ParentCheckpoint  string         `json:"parentCheckpoint,omitempty"`
}

// RestoreOverrides are applied by CheckpointStore.Restore before the
// supervisor instantiates a new session from a restored payload.
type RestoreOverrides struct {
	Model     string
	AgentName string
}
