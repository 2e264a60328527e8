package supervisor

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/shannon-mcp/shannon-mcp/internal/binaryresolver"
	"github.com/shannon-mcp/shannon-mcp/internal/checkpoint"
	"github.com/shannon-mcp/shannon-mcp/internal/config"
	"github.com/shannon-mcp/shannon-mcp/internal/decoder"
	"github.com/shannon-mcp/shannon-mcp/internal/event"
	"github.com/shannon-mcp/shannon-mcp/internal/registry"
	"github.com/shannon-mcp/shannon-mcp/pkg/types"
)

// Supervisor is the Session Supervisor (spec §4.5): it owns every live
// session's child process, stdio pipes, and decoder task, and drives the
// Binary Resolver, Process Registry, and Checkpoint Store it is handed at
// construction time.
type Supervisor struct {
	cfg    config.ConcurrencyConfig
	agents map[string]config.AgentConfig
	decCfg config.DecoderConfig

	binary      *binaryresolver.Resolver
	registry    *registry.Registry
	checkpoints *checkpoint.Store
	bus         *event.Bus
	cache       *sessionCache

	autoCheckpointInterval time.Duration

	sem chan struct{}

	mu       sync.RWMutex
	sessions map[string]*liveSession

	shutdownCh chan struct{}
	shutdownMu sync.Mutex
	shutdown   bool
	monitorWG  sync.WaitGroup
}

// New constructs a Supervisor. agents maps agent name to its launch
// profile (spec §4.5 "Agent assignment"); an empty or missing name resolves
// to DefaultAgentName.
func New(
	cfg config.ConcurrencyConfig,
	decCfg config.DecoderConfig,
	checkpointCfg config.CheckpointConfig,
	agents map[string]config.AgentConfig,
	paths *config.Paths,
	binary *binaryresolver.Resolver,
	reg *registry.Registry,
	checkpoints *checkpoint.Store,
	bus *event.Bus,
) *Supervisor {
	max := cfg.MaxConcurrentSessions
	if max <= 0 {
		max = 8
	}
	return &Supervisor{
		cfg:                    cfg,
		agents:                 agents,
		decCfg:                 decCfg,
		binary:                 binary,
		registry:               reg,
		checkpoints:            checkpoints,
		bus:                    bus,
		cache:                  newSessionCache(paths, 256, 64<<20),
		sem:                    make(chan struct{}, max),
		sessions:               make(map[string]*liveSession),
		shutdownCh:             make(chan struct{}),
		autoCheckpointInterval: time.Duration(checkpointCfg.AutoIntervalSeconds) * time.Second,
	}
}

// DefaultAgentName is used when CreateSessionRequest.AgentName is empty.
const DefaultAgentName = "default"

// Start launches the monitor loop (timeout detection and terminal-session
// eviction, spec §4.5 "Monitor loop"). Call once after construction.
func (s *Supervisor) Start(ctx context.Context) {
	s.monitorWG.Add(1)
	go s.monitorLoop(ctx)
}

// CreateSessionRequest is the input to CreateSession (spec §6 create_session).
type CreateSessionRequest struct {
	Prompt           string
	Model            string
	AgentName        string
	ParentCheckpoint string
	Context          map[string]any
}

// CreateSession implements the create protocol (spec §4.5).
func (s *Supervisor) CreateSession(ctx context.Context, req CreateSessionRequest) (*types.Session, error) {
	if s.isShuttingDown() {
		return nil, types.ErrShutdownInProgress
	}

	select {
	case s.sem <- struct{}{}:
	default:
		return nil, types.ErrCapacityExceeded
	}
	released := false
	release := func() {
		if !released {
			released = true
			<-s.sem
		}
	}
	defer release()

	ref, err := s.binary.Resolve(ctx, false)
	if err != nil {
		return nil, types.NewError(types.KindBinaryUnavailable, "no usable CLI binary", err)
	}

	now := time.Now().Unix()
	sess := &types.Session{
		ID:        types.NewID(),
		Model:     req.Model,
		Phase:     types.PhaseCreated,
		AgentName: req.AgentName,
		Context:   req.Context,
		Time:      types.SessionTime{Created: now, Updated: now},
	}
	if sess.AgentName == "" {
		sess.AgentName = DefaultAgentName
	}

	if req.ParentCheckpoint != "" {
		payload, err := s.checkpoints.Restore(ctx, req.ParentCheckpoint, types.RestoreOverrides{Model: req.Model})
		if err != nil {
			return nil, err
		}
		sess.Messages = append(sess.Messages, payload.Snapshot.Messages...)
		if sess.Context == nil {
			sess.Context = payload.Snapshot.Context
		}
		if sess.Model == "" {
			sess.Model = payload.Snapshot.Model
		}
		sess.ParentCheckpoint = req.ParentCheckpoint
	}
	if req.Prompt != "" {
		sess.Messages = append(sess.Messages, types.Message{
			ID: types.NewID(), Role: types.RoleUser, Content: req.Prompt, Timestamp: now,
		})
	}

	ls := newLiveSession(sess)

	agentCfg := s.agents[sess.AgentName]
	args := buildArgs(sess.Model, req.ParentCheckpoint, agentCfg.ExtraArgs)

	ls.transition(types.PhaseStarting)

	spawnCtx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(spawnCtx, ref.Path, args...)
	cmd.Env = append(os.Environ(), "CLAUDE_SESSION_ID="+sess.ID)
	cmd.SysProcAttr = buildSysProcAttr()

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		ls.transition(types.PhaseFailed)
		return nil, types.NewError(types.KindSpawnFailed, "failed to attach stdin", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		ls.transition(types.PhaseFailed)
		return nil, types.NewError(types.KindSpawnFailed, "failed to attach stdout", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		ls.transition(types.PhaseFailed)
		return nil, types.NewError(types.KindSpawnFailed, "failed to attach stderr", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		ls.transition(types.PhaseFailed)
		return nil, types.NewError(types.KindSpawnFailed, "failed to spawn CLI child", err)
	}

	workDir := cmd.Dir
	if workDir == "" {
		if wd, err := os.Getwd(); err == nil {
			workDir = wd
		}
	}
	processID, err := s.registry.Register(ctx, cmd.Process.Pid, os.Getpid(), cmdLine(ref.Path, args), ref.Path, sess.ID, registry.SpawnAttrs{
		UID:        os.Getuid(),
		GID:        os.Getgid(),
		WorkingDir: workDir,
		Env:        cmd.Env,
	})
	if err != nil {
		cancel()
		_ = cmd.Process.Kill()
		ls.transition(types.PhaseFailed)
		return nil, fmt.Errorf("registering child process: %w", err)
	}
	sess.ProcessID = processID

	if _, err := io.WriteString(stdin, req.Prompt+"\n"); err != nil {
		cancel()
		_ = cmd.Process.Kill()
		_ = s.registry.Unregister(ctx, processID)
		ls.transition(types.PhaseFailed)
		return nil, types.NewError(types.KindSpawnFailed, "failed to write initial prompt", err)
	}

	ls.cmd = cmd
	ls.stdin = stdin
	ls.cancel = cancel
	ls.release = func() { <-s.sem }
	ls.transition(types.PhaseRunning)

	dec := decoder.New(sess.ID, time.Duration(s.decCfg.MaxPartialAgeSeconds)*time.Second, s.decCfg.MaxLineBytes)
	ls.dec = dec

	go discardStderr(stderr)
	go s.runDecoder(spawnCtx, ls, dec, stdout)
	go s.reapChild(ls, cmd)

	s.mu.Lock()
	s.sessions[sess.ID] = ls
	s.mu.Unlock()

	if s.autoCheckpointInterval > 0 {
		s.checkpoints.StartAutoCheckpoint(spawnCtx, sess.ID, s.autoCheckpointInterval, s.snapshotFuncFor(sess.ID))
	}

	released = true
	s.bus.Publish(event.Event{Type: event.SessionCreated, Data: event.SessionCreatedData{Session: ls.clone()}})
	return ls.clone(), nil
}

func cmdLine(path string, args []string) string {
	out := path
	for _, a := range args {
		out += " " + a
	}
	return out
}

func discardStderr(r io.Reader) {
	_, _ = io.Copy(io.Discard, r)
}

func (s *Supervisor) isShuttingDown() bool {
	s.shutdownMu.Lock()
	defer s.shutdownMu.Unlock()
	return s.shutdown
}
