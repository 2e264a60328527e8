package supervisor

import (
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/shannon-mcp/shannon-mcp/internal/decoder"
	"github.com/shannon-mcp/shannon-mcp/pkg/types"
)

// liveSession bundles a Session's in-memory state with the live resources
// attached to its child: the spawned process, its stdin pipe, and the
// decoder task reading its stdout. Everything here is non-cacheable (Open
// Question 3, DESIGN.md) and is discarded, not serialized, on eviction.
type liveSession struct {
	mu      sync.Mutex
	session *types.Session

	cmd      *exec.Cmd
	stdin    io.WriteCloser
	writeMu  sync.Mutex
	cancel   func()
	reaped   chan struct{}
	decDone  chan struct{}
	dec      *decoder.Decoder

	subMu  sync.Mutex
	subs   []chan types.DecodedMessage

	releaseOnce sync.Once
	release     func()
}

func newLiveSession(s *types.Session) *liveSession {
	return &liveSession{
		session: s,
		reaped:  make(chan struct{}),
		decDone: make(chan struct{}),
	}
}

// releasePermit runs the session-semaphore release exactly once, called
// when the session reaches a terminal phase.
func (ls *liveSession) releasePermit() {
	ls.releaseOnce.Do(func() {
		if ls.release != nil {
			ls.release()
		}
	})
}

// clone takes ls.mu and returns a deep-enough copy of the Session for
// callers outside the owning goroutine; the message slice is copied, but
// the Context map is shared with the live session.
func (ls *liveSession) clone() *types.Session {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	cp := *ls.session
	cp.Messages = append([]types.Message(nil), ls.session.Messages...)
	return &cp
}

// transition moves the session to a new phase, recording the wall-clock at
// terminal transitions. It is a no-op (returns false) if the session is
// already terminal, matching the idempotent-cancel invariant (spec §5).
func (ls *liveSession) transition(to types.Phase) bool {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if ls.session.Phase.Terminal() {
		return false
	}
	now := time.Now().Unix()
	ls.session.Phase = to
	ls.session.Time.Updated = now
	if to == types.PhaseRunning && ls.session.Time.Started == nil {
		started := now
		ls.session.Time.Started = &started
	}
	if to.Terminal() {
		terminal := now
		ls.session.Time.Terminal = &terminal
	}
	return true
}

func (ls *liveSession) appendMessage(role types.Role, content string) types.Message {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	msg := types.Message{
		ID:        types.NewID(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now().Unix(),
	}
	ls.session.Messages = append(ls.session.Messages, msg)
	ls.session.Time.Updated = msg.Timestamp
	return msg
}

// phase returns the session's current phase under lock, used by the
// decoder routing loop to stop mutating a session that has moved past
// "running" (spec §3 invariants (ii)/(iii), §8 property 2).
func (ls *liveSession) phase() types.Phase {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.session.Phase
}

func (ls *liveSession) appendPartial(chunk string) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.session.PendingResponse += chunk
}

// commitPending turns any buffered partial content into an assistant
// message, used both when a `response` line arrives and when a session is
// cancelled mid-stream (spec §4.5 scenario 2).
func (ls *liveSession) commitPending(final string) {
	ls.mu.Lock()
	content := final
	if content == "" {
		content = ls.session.PendingResponse
	}
	ls.session.PendingResponse = ""
	ls.mu.Unlock()
	if content != "" {
		ls.appendMessage(types.RoleAssistant, content)
	}
}

func (ls *liveSession) addMetrics(m types.SessionMetrics) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.session.Metrics.InputTokens += m.InputTokens
	ls.session.Metrics.OutputTokens += m.OutputTokens
	ls.session.Metrics.CostUSD += m.CostUSD
}

func (ls *liveSession) setError(msg string) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.session.Error = msg
}

// subscribe registers a fan-out channel for get_session_stream callers.
// Sends are non-blocking: a slow subscriber drops messages rather than
// stalling the decoder (spec §5 backpressure is between child and decoder,
// not decoder and RPC subscriber).
func (ls *liveSession) subscribe(buf int) (<-chan types.DecodedMessage, func()) {
	ch := make(chan types.DecodedMessage, buf)
	ls.subMu.Lock()
	ls.subs = append(ls.subs, ch)
	ls.subMu.Unlock()
	unsub := func() {
		ls.subMu.Lock()
		defer ls.subMu.Unlock()
		for i, c := range ls.subs {
			if c == ch {
				ls.subs = append(ls.subs[:i], ls.subs[i+1:]...)
				close(c)
				return
			}
		}
	}
	return ch, unsub
}

func (ls *liveSession) broadcast(msg types.DecodedMessage) {
	ls.subMu.Lock()
	defer ls.subMu.Unlock()
	for _, c := range ls.subs {
		select {
		case c <- msg:
		default:
		}
	}
}
