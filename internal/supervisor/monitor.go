package supervisor

import (
	"context"
	"time"

	"github.com/shannon-mcp/shannon-mcp/pkg/types"
)

// postMortemRetention is how long a terminal session stays in the live map
// before being evicted to the cache-only tier (spec §4.5 "Monitor loop",
// default 5 min; not exposed as config since no source in the retrieval
// pack ties it to an existing tunable).
const postMortemRetention = 5 * time.Minute

const monitorTick = 10 * time.Second

// monitorLoop is the single background task that detects session timeouts
// and evicts stale terminal sessions from the live map (spec §4.5).
func (s *Supervisor) monitorLoop(ctx context.Context) {
	defer s.monitorWG.Done()
	ticker := time.NewTicker(monitorTick)
	defer ticker.Stop()

	timeout := time.Duration(s.cfg.SessionTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.shutdownCh:
			return
		case <-ticker.C:
			s.monitorTick(ctx, timeout)
		}
	}
}

func (s *Supervisor) monitorTick(ctx context.Context, timeout time.Duration) {
	s.mu.RLock()
	snapshot := make(map[string]*liveSession, len(s.sessions))
	for id, ls := range s.sessions {
		snapshot[id] = ls
	}
	s.mu.RUnlock()

	now := time.Now()
	var evict []string
	for id, ls := range snapshot {
		sess := ls.clone()
		switch {
		case sess.Phase == types.PhaseRunning && sess.Time.Started != nil:
			if now.Sub(time.Unix(*sess.Time.Started, 0)) > timeout {
				go s.terminate(ctx, id, types.PhaseTimedOut, "session exceeded configured wall-clock timeout")
			}
		case sess.Phase.Terminal() && sess.Time.Terminal != nil:
			if now.Sub(time.Unix(*sess.Time.Terminal, 0)) > postMortemRetention {
				evict = append(evict, id)
			}
		}
	}

	if len(evict) == 0 {
		return
	}
	s.mu.Lock()
	for _, id := range evict {
		delete(s.sessions, id)
	}
	s.mu.Unlock()
}

// Shutdown cancels every non-terminal session in parallel with a bounded
// per-session timeout, awaiting all of them before returning (spec §4.5
// "Shutdown", spec §5 shutdown envelope).
func (s *Supervisor) Shutdown(ctx context.Context) {
	s.shutdownMu.Lock()
	if s.shutdown {
		s.shutdownMu.Unlock()
		return
	}
	s.shutdown = true
	s.shutdownMu.Unlock()
	close(s.shutdownCh)

	s.mu.RLock()
	ids := make([]string, 0, len(s.sessions))
	for id, ls := range s.sessions {
		if !ls.clone().Phase.Terminal() {
			ids = append(ids, id)
		}
	}
	s.mu.RUnlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		wg := make(chan struct{}, len(ids))
		for _, id := range ids {
			id := id
			go func() {
				_ = s.CancelSession(ctx, id, "daemon shutdown")
				wg <- struct{}{}
			}()
		}
		for range ids {
			<-wg
		}
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}
	s.monitorWG.Wait()
}
