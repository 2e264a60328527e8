package types

// ProcessStatus is a ChildProcess's lifecycle status (spec §3).
type ProcessStatus string

const (
	ProcessStarting  ProcessStatus = "starting"
	ProcessRunning   ProcessStatus = "running"
	ProcessStopping  ProcessStatus = "stopping"
	ProcessStopped   ProcessStatus = "stopped"
	ProcessOrphaned  ProcessStatus = "orphaned"
	ProcessFailed    ProcessStatus = "failed"
)

// ResourceMetrics is the rolling resource snapshot collected for a
// registered child by the registry's monitoring loop (spec §3, §4.2).
type ResourceMetrics struct {
	CPUPercent           float64 `json:"cpuPercent"`
	RSSBytes             int64   `json:"rssBytes"`
	FDCount              int     `json:"fdCount"`
	ThreadCount          int     `json:"threadCount"`
	VoluntaryCtxSwitches int64   `json:"voluntaryCtxSwitches"`
	InvoluntaryCtxSwitches int64 `json:"involuntaryCtxSwitches"`
	DiskIOBytesPerSec    int64   `json:"diskIOBytesPerSec"`
	OpenConnections      int     `json:"openConnections"`
}

// ChildProcess is a spawned CLI instance tracked by the Process Registry
// (spec §3). Its identity is the pair (PID, CreatedAt): two records with
// the same PID and different CreatedAt are distinct children.
type ChildProcess struct {
	ProcessID      string          `json:"processID"`
	PID            int             `json:"pid"`
	ParentPID      int             `json:"parentPID"`
	CreatedAt      int64           `json:"createdAt"`
	CommandLine    string          `json:"commandLine"`
	ExecutablePath string          `json:"executablePath"`
	SessionID      string          `json:"sessionID,omitempty"`
	Status         ProcessStatus   `json:"status"`
	LastHeartbeat  int64           `json:"lastHeartbeat"`
	Metrics        ResourceMetrics `json:"metrics"`

	// UID, GID, WorkingDir and Env are captured at Register time from the
	// spawn attributes and are inputs to the Security validation category
	// (spec §4.2): user/group allow-lists, permitted-roots, and flagged
	// (library-injection) environment variables.
	UID        int      `json:"uid"`
	GID        int      `json:"gid"`
	WorkingDir string   `json:"workingDir"`
	Env        []string `json:"env,omitempty"`
}

// Identity returns the (pid, created_at) pair that uniquely keys a child
// across its lifetime (spec §3 identity invariant, testable property 3).
func (c ChildProcess) Identity() (pid int, createdAt int64) {
	return c.PID, c.CreatedAt
}

// AuditEventKind enumerates PIDAuditEvent kinds (spec §3).
type AuditEventKind string

const (
	AuditCreated   AuditEventKind = "created"
	AuditTerminated AuditEventKind = "terminated"
	AuditOrphaned  AuditEventKind = "orphaned"
	AuditReused    AuditEventKind = "reused"
	AuditCollision AuditEventKind = "collision"
	AuditValidated AuditEventKind = "validated"
	AuditCleanup   AuditEventKind = "cleanup"
)

// PIDAuditEvent is one append-only entry in the registry's audit log
// (spec §3). It is never rewritten and survives daemon restart.
type PIDAuditEvent struct {
	EventID   string         `json:"eventID"`
	PID       int            `json:"pid"`
	Kind      AuditEventKind `json:"kind"`
	Timestamp int64          `json:"timestamp"`
	ProcessID string         `json:"processID,omitempty"`
	Detail    map[string]any `json:"detail,omitempty"`
}

// ValidationCategory is one of the four checks performed by
// Registry.Validate (spec §4.2).
type ValidationCategory string

const (
	CategoryIntegrity ValidationCategory = "integrity"
	CategoryResource  ValidationCategory = "resource"
	CategorySecurity  ValidationCategory = "security"
	CategoryLifecycle ValidationCategory = "lifecycle"
)

// CategoryResult is the pass/fail/warnings outcome for one validation
// category.
type CategoryResult struct {
	Category ValidationCategory `json:"category"`
	Passed   bool               `json:"passed"`
	Warnings []string           `json:"warnings,omitempty"`
	Detail   map[string]any     `json:"detail,omitempty"`
}

// ValidationResult is the overall outcome of Registry.Validate: it fails
// overall if any category fails.
type ValidationResult struct {
	ProcessID string           `json:"processID"`
	Passed    bool             `json:"passed"`
	Results   []CategoryResult `json:"results"`
	Timestamp int64            `json:"timestamp"`
}

// ResourceConstraints bounds the Resource validation category.
type ResourceConstraints struct {
	MaxRSSBytes       int64
	MaxCPUPercent     float64
	MaxFDCount        int
	MaxConnections    int
	MaxChildren       int
	MaxUptimeSeconds  int64
}

// SecurityConstraints bounds the Security validation category.
type SecurityConstraints struct {
	AllowedUsers       []string
	AllowedGroups      []string
	PermittedRoots     []string
	BlockedExecutables []string
	FlaggedEnvVars     []string
}

// Constraints bundles every validation category's configuration.
type Constraints struct {
	Resource ResourceConstraints
	Security SecurityConstraints
}
