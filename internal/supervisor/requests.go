package supervisor

import (
	"context"
	"io"
	"sort"
	"time"

	"github.com/shannon-mcp/shannon-mcp/internal/decoder"
	"github.com/shannon-mcp/shannon-mcp/internal/event"
	"github.com/shannon-mcp/shannon-mcp/pkg/types"
)

// Get returns the current (cloned) state of a session, checking the live
// map first and falling back to the cache (spec §4.5 "Session caching").
func (s *Supervisor) Get(sessionID string) (*types.Session, error) {
	s.mu.RLock()
	ls, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if ok {
		return ls.clone(), nil
	}
	if entry, ok := s.cache.Get(sessionID); ok {
		return &types.Session{
			ID:        entry.ID,
			Phase:     entry.Phase,
			Model:     entry.Snapshot.Model,
			AgentName: entry.Snapshot.AgentName,
			Context:   entry.Snapshot.Context,
			Messages:  entry.Snapshot.Messages,
			Metrics:   entry.Snapshot.Metrics,
		}, nil
	}
	return nil, types.ErrSessionNotFound
}

// ListFilter narrows ListSessions (spec §6 list_sessions).
type ListFilter struct {
	Status string
	Offset int
	Limit  int
	SortBy string // "created" (default) or "updated"
	Desc   bool
}

// ListSessions returns live sessions (cached/terminal sessions are reached
// individually via Get, not enumerated here, since the cache is not an
// index of record).
func (s *Supervisor) ListSessions(f ListFilter) ([]*types.Session, int) {
	s.mu.RLock()
	all := make([]*types.Session, 0, len(s.sessions))
	for _, ls := range s.sessions {
		all = append(all, ls.clone())
	}
	s.mu.RUnlock()

	if f.Status != "" {
		filtered := all[:0:0]
		for _, sess := range all {
			if string(sess.Phase) == f.Status {
				filtered = append(filtered, sess)
			}
		}
		all = filtered
	}

	sort.Slice(all, func(i, j int) bool {
		var less bool
		if f.SortBy == "updated" {
			less = all[i].Time.Updated < all[j].Time.Updated
		} else {
			less = all[i].Time.Created < all[j].Time.Created
		}
		if f.Desc {
			return !less
		}
		return less
	})

	total := len(all)
	if f.Offset > 0 {
		if f.Offset >= len(all) {
			return nil, total
		}
		all = all[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(all) {
		all = all[:f.Limit]
	}
	return all, total
}

// SendMessage implements the send-message protocol (spec §4.5).
func (s *Supervisor) SendMessage(ctx context.Context, sessionID, content string, timeout time.Duration) error {
	s.mu.RLock()
	ls, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return types.ErrSessionNotFound
	}

	ls.mu.Lock()
	running := ls.session.Phase == types.PhaseRunning
	ls.mu.Unlock()
	if !running {
		return types.ErrSessionNotRunning
	}

	if timeout <= 0 {
		timeout = time.Duration(s.cfg.SessionTimeoutSeconds) * time.Second
	}

	done := make(chan error, 1)
	go func() {
		ls.writeMu.Lock()
		defer ls.writeMu.Unlock()
		_, err := io.WriteString(ls.stdin, content+"\n")
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return types.NewError(types.KindInternal, "failed to write message to child stdin", err)
		}
	case <-time.After(timeout):
		return types.ErrTimeout
	case <-ctx.Done():
		return ctx.Err()
	}

	ls.appendMessage(types.RoleUser, content)
	s.publishMessageAppended(ls)
	return nil
}

// Stream implements get_session_stream: an ordered feed of decoded
// messages for a live session. The returned cancel func must be called
// once the caller stops reading.
func (s *Supervisor) Stream(sessionID string) (<-chan types.DecodedMessage, func(), error) {
	s.mu.RLock()
	ls, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, nil, types.ErrSessionNotFound
	}
	ch, unsub := ls.subscribe(64)
	return ch, unsub, nil
}

// DecoderStats returns the live session's Stream Decoder diagnostics,
// including the backpressure controller's metrics (spec §5), for the RPC
// surface to consult via get_session_stream.
func (s *Supervisor) DecoderStats(sessionID string) (decoder.Stats, error) {
	s.mu.RLock()
	ls, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return decoder.Stats{}, types.ErrSessionNotFound
	}
	ls.mu.Lock()
	dec := ls.dec
	ls.mu.Unlock()
	if dec == nil {
		return decoder.Stats{}, nil
	}
	return dec.Stats(), nil
}

// CancelSession implements the cancel protocol (spec §4.5). Its body,
// terminate, is shared with monitor-driven timeout eviction, which calls
// terminate directly with its own terminalPhase and reason.
func (s *Supervisor) CancelSession(ctx context.Context, sessionID, reason string) error {
	return s.terminate(ctx, sessionID, types.PhaseCancelled, reason)
}

func (s *Supervisor) terminate(ctx context.Context, sessionID string, terminalPhase types.Phase, reason string) error {
	s.mu.RLock()
	ls, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return types.ErrSessionNotFound
	}

	ls.mu.Lock()
	alreadyTerminal := ls.session.Phase.Terminal()
	ls.mu.Unlock()
	if alreadyTerminal {
		return nil
	}

	intermediate := types.PhaseCancelling
	old := ls.clone().Phase
	ls.mu.Lock()
	ls.session.Phase = intermediate
	ls.mu.Unlock()
	s.bus.Publish(event.Event{Type: event.SessionPhaseChanged, Data: event.SessionPhaseChangedData{
		SessionID: sessionID, OldPhase: old, NewPhase: intermediate,
	}})

	// Signal the process group directly through the registry first, so the
	// child gets a genuine graceful-then-forceful escalation; only once it
	// is down (or we give up waiting) do we cancel the spawn context, which
	// would otherwise make exec.CommandContext SIGKILL the child outright
	// and skip the grace period entirely.
	grace := time.Duration(s.cfg.GracefulStopSeconds) * time.Second
	if grace <= 0 {
		grace = 5 * time.Second
	}
	if ls.session.ProcessID != "" {
		if err := s.registry.Terminate(ctx, ls.session.ProcessID, true, grace); err != nil {
			return types.NewError(types.KindInternal, "failed to terminate child process", err)
		}
	}

	select {
	case <-ls.reaped:
	case <-time.After(grace + 5*time.Second):
	}
	if ls.cancel != nil {
		ls.cancel()
	}

	ls.commitPending("")
	ls.setError(reason)

	// terminate overrides the phase-machine's normal Terminal() guard
	// path: force the final phase directly, since the intermediate
	// "cancelling" state already consumed the one allowed transition.
	ls.mu.Lock()
	ls.session.Phase = terminalPhase
	now := time.Now().Unix()
	ls.session.Time.Updated = now
	ls.session.Time.Terminal = &now
	ls.mu.Unlock()

	ls.releasePermit()
	s.checkpoints.StopAutoCheckpoint(sessionID)
	s.cache.Put(sessionID, terminalPhase, ls.clone().ToSnapshot(), 5*time.Minute)
	s.bus.Publish(event.Event{Type: event.SessionPhaseChanged, Data: event.SessionPhaseChangedData{
		SessionID: sessionID, OldPhase: intermediate, NewPhase: terminalPhase,
	}})
	return nil
}
