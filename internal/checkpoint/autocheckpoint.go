package checkpoint

import (
	"context"
	"fmt"
	"time"

	"github.com/shannon-mcp/shannon-mcp/pkg/types"
)

// SnapshotFunc returns the current state to checkpoint for a session,
// supplied by the Supervisor so the Checkpoint Store never needs a
// reference to live session state.
type SnapshotFunc func() (sessionID string, snapshot types.Snapshot, ok bool)

// StartAutoCheckpoint arms a per-session timer that calls Create with an
// auto-generated label every interval, re-arming itself after each fire
// (spec §4.4 "Auto-checkpoint"). Calling it again for the same session
// replaces the existing timer.
func (s *Store) StartAutoCheckpoint(ctx context.Context, sessionID string, interval time.Duration, get SnapshotFunc) {
	if interval <= 0 {
		return
	}

	s.mu.Lock()
	if existing, ok := s.timers[sessionID]; ok {
		existing.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(interval, func() {
		s.fireAutoCheckpoint(ctx, sessionID, interval, get, timer)
	})
	s.timers[sessionID] = timer
	s.mu.Unlock()
}

func (s *Store) fireAutoCheckpoint(ctx context.Context, sessionID string, interval time.Duration, get SnapshotFunc, self *time.Timer) {
	if ctx.Err() != nil {
		return
	}

	if id, snapshot, ok := get(); ok {
		label := fmt.Sprintf("auto-%d", time.Now().Unix())
		_, _ = s.Create(ctx, id, snapshot, label, "automatic checkpoint", nil)
	}

	s.mu.Lock()
	if s.timers[sessionID] == self {
		self.Reset(interval)
	}
	s.mu.Unlock()
}

// StopAutoCheckpoint stops and forgets sessionID's timer, called when a
// session reaches a terminal phase.
func (s *Store) StopAutoCheckpoint(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if timer, ok := s.timers[sessionID]; ok {
		timer.Stop()
		delete(s.timers, sessionID)
	}
}
