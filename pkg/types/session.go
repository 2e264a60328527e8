package types

// Phase is the session lifecycle phase (spec §4.5).
type Phase string

const (
	PhaseCreated    Phase = "created"
	PhaseStarting   Phase = "starting"
	PhaseRunning    Phase = "running"
	PhaseCompleting Phase = "completing"
	PhaseCompleted  Phase = "completed"
	PhaseCancelling Phase = "cancelling"
	PhaseCancelled  Phase = "cancelled"
	PhaseTimedOut   Phase = "timed_out"
	PhaseFailed     Phase = "failed"
)

// Terminal reports whether the phase accepts no further transitions.
func (p Phase) Terminal() bool {
	switch p {
	case PhaseCompleted, PhaseCancelled, PhaseTimedOut, PhaseFailed:
		return true
	default:
		return false
	}
}

// SessionTime contains the timestamps tracked across a session's lifecycle.
type SessionTime struct {
	Created  int64  `json:"created"`
	Updated  int64  `json:"updated"`
	Started  *int64 `json:"started,omitempty"`
	Terminal *int64 `json:"terminal,omitempty"`
}

// SessionMetrics accumulates per-session usage reported by `metric`
// messages from the CLI child (spec §4.3).
type SessionMetrics struct {
	InputTokens  int64   `json:"inputTokens"`
	OutputTokens int64   `json:"outputTokens"`
	CostUSD      float64 `json:"costUSD"`
}

// Session is one conversation with one CLI child (spec §3).
//
// Invariants enforced by the supervisor, not by this struct:
//  1. at most one live child per session at a time;
//  2. the message log is append-only while Phase is non-terminal;
//  3. once Phase.Terminal(), no field but retention metadata may mutate;
//  4. if ParentCheckpoint is set, Messages[0] is derived from that
//     checkpoint's snapshot, not from user input.
type Session struct {
	ID               string         `json:"id"`
	Model            string         `json:"model"`
	Phase            Phase          `json:"phase"`
	ParentCheckpoint string         `json:"parentCheckpoint,omitempty"`
	AgentName        string         `json:"agentName,omitempty"`
	Context          map[string]any `json:"context,omitempty"`
	Messages         []Message      `json:"messages"`
	Metrics          SessionMetrics `json:"metrics"`
	Error            string         `json:"error,omitempty"`
	Time             SessionTime    `json:"time"`

	// PendingResponse accumulates `partial` chunks until a `response`
	// message commits them as an assistant message (spec §4.3). Mutated
	// exclusively by the session's decoder task (spec §5).
	PendingResponse string `json:"-"`

	// ProcessID is a non-owning reference to the live ChildProcess record
	// in the Process Registry, empty once the child has been reaped.
	ProcessID string `json:"processID,omitempty"`
}

// Snapshot is the data-only projection of a Session used by the LRU
// session cache and by checkpoint payloads. It deliberately carries no
// live child-process handle (Open Question 3, DESIGN.md): a cached or
// restored session is reconstructed by the supervisor, never resurrected
// with a live process attached.
type Snapshot struct {
	SessionID string         `json:"sessionID"`
	Model     string         `json:"model"`
	AgentName string         `json:"agentName,omitempty"`
	Context   map[string]any `json:"context,omitempty"`
	Messages  []Message      `json:"messages"`
	Metrics   SessionMetrics `json:"metrics"`
}

// ToSnapshot projects a live Session into its persisted/cacheable form.
func (s *Session) ToSnapshot() Snapshot {
	msgs := make([]Message, len(s.Messages))
	copy(msgs, s.Messages)
	return Snapshot{
		SessionID: s.ID,
		Model:     s.Model,
		AgentName: s.AgentName,
		Context:   s.Context,
		Messages:  msgs,
		Metrics:   s.Metrics,
	}
}
