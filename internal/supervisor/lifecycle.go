package supervisor

import (
	"context"
	"io"
	"time"

	"github.com/shannon-mcp/shannon-mcp/internal/event"
	"github.com/shannon-mcp/shannon-mcp/internal/logging"
	"github.com/shannon-mcp/shannon-mcp/pkg/types"
)

// snapshotFuncFor builds the checkpoint.SnapshotFunc the auto-checkpoint
// timer calls, reading the live session under its own lock each tick so
// the Checkpoint Store never needs a reference to liveSession itself.
func (s *Supervisor) snapshotFuncFor(sessionID string) func() (string, types.Snapshot, bool) {
	return func() (string, types.Snapshot, bool) {
		s.mu.RLock()
		ls, ok := s.sessions[sessionID]
		s.mu.RUnlock()
		if !ok {
			return "", types.Snapshot{}, false
		}
		sess := ls.clone()
		if sess.Phase.Terminal() {
			return "", types.Snapshot{}, false
		}
		return sessionID, sess.ToSnapshot(), true
	}
}

// runDecoder pumps stdout through the Stream Decoder, updating the
// session's log and metrics per message kind (spec §4.3, §4.5) until the
// child's stdout is closed or the context is cancelled.
func (s *Supervisor) runDecoder(ctx context.Context, ls *liveSession, dec interface {
	Run(context.Context, io.Reader) error
	Messages() <-chan types.DecodedMessage
}, stdout io.Reader) {
	go func() {
		if err := dec.Run(ctx, stdout); err != nil && err != context.Canceled {
			logging.Component("supervisor").Warn().Err(err).Str("sessionID", ls.session.ID).Msg("decoder run ended with error")
		}
	}()

	for msg := range dec.Messages() {
		ls.broadcast(msg)
		if ls.phase() != types.PhaseRunning {
			// The session has left "running" (completing, cancelling, or
			// already terminal): stop mutating it. Every subscriber still
			// sees the message via broadcast above.
			continue
		}
		switch m := msg.(type) {
		case types.PartialMessage:
			ls.appendPartial(m.Content)
		case types.ResponseMessage:
			ls.commitPending(m.Content)
			s.publishMessageAppended(ls)
			// Move to the non-terminal "completing" phase rather than
			// completing outright: the child may still be alive, and only
			// reapChild (after cmd.Wait returns) knows it is actually gone.
			ls.transition(types.PhaseCompleting)
		case types.ErrorMessage:
			ls.setError(m.Error)
			s.bus.Publish(event.Event{Type: event.SessionError, Data: event.SessionErrorData{
				SessionID: ls.session.ID,
				Error:     types.NewError(types.KindInternal, m.Error, nil),
			}})
		case types.MetricMessage:
			ls.addMetrics(types.SessionMetrics{InputTokens: m.InputTokens, OutputTokens: m.OutputTokens, CostUSD: m.CostUSD})
		case types.PlainTextMessage:
			ls.appendPartial(m.Text)
		case types.CheckpointRequestMessage:
			// Surfaced to callers via the stream subscriber; the RPC layer
			// decides whether to act on an inline checkpoint request.
		default:
			// Notification, Debug, Status, Unknown, ParseError: forwarded to
			// stream subscribers only, no session-state effect.
		}
	}
	close(ls.decDone)
}

// reapChild waits for the decoder to finish reading stdout before calling
// Wait, matching the documented os/exec contract (all reads from a pipe
// must complete before Wait closes it) — the same ordering the teacher's
// StdioTransport relies on by never calling Wait until its readLoop has
// observed EOF.
func (s *Supervisor) reapChild(ls *liveSession, cmd interface{ Wait() error }) {
	<-ls.decDone
	err := cmd.Wait()
	close(ls.reaped)

	phase := ls.phase()
	if phase.Terminal() {
		return
	}

	// A response already committed the session to "completing" before the
	// child exited: that response is authoritative, so the child's exit
	// status no longer decides success/failure. Only a child that exits
	// without ever emitting a response can still fail here.
	if err != nil && phase != types.PhaseCompleting {
		ls.setError(err.Error())
		s.completeSession(ls, types.PhaseFailed)
		return
	}
	s.completeSession(ls, types.PhaseCompleted)
}

// completeSession transitions ls to a terminal phase exactly once, stops
// its auto-checkpoint timer, caches its snapshot, and publishes the phase
// change.
func (s *Supervisor) completeSession(ls *liveSession, to types.Phase) {
	old := ls.clone().Phase
	if !ls.transition(to) {
		return
	}
	ls.releasePermit()
	s.checkpoints.StopAutoCheckpoint(ls.session.ID)
	s.cache.Put(ls.session.ID, to, ls.clone().ToSnapshot(), 5*time.Minute)

	s.bus.Publish(event.Event{Type: event.SessionPhaseChanged, Data: event.SessionPhaseChangedData{
		SessionID: ls.session.ID, OldPhase: old, NewPhase: to,
	}})
}

func (s *Supervisor) publishMessageAppended(ls *liveSession) {
	sess := ls.clone()
	if len(sess.Messages) == 0 {
		return
	}
	last := sess.Messages[len(sess.Messages)-1]
	s.bus.Publish(event.Event{Type: event.SessionMessageAppended, Data: event.SessionMessageAppendedData{
		SessionID: sess.ID, Message: &last,
	}})
}
