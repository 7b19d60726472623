// Package session holds the process-wide recording state: the
// tri-state stopped flag that the signal supervisor, producer, and
// consumer all read at their respective checkpoints, the active
// file's sequence number and byte counters, and the --Start/--End/
// --duration deadline bookkeeping. Modeled on the teacher's
// self-pipe-free signal handling style (os/signal.Notify's channel
// read on an ordinary goroutine stands in for the self-pipe the
// design notes call for in languages where mutating state from a
// real signal handler is unsafe).
package session

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/user/stationrec/internal/ring"
)

// State is the shared stopped tri-state.
type State int

const (
	Running        State = 0
	EndCurrentFile State = 1
	Terminate      State = 2
	SplitNow       State = -1
)

// Session is the process-wide control and file-lifecycle state.
// Producer and consumer hold a shared reference; stopped is guarded
// by an internal mutex (the "S" lock of the concurrency model), while
// the file-lifecycle fields below are touched exclusively by the
// consumer and therefore need none (same reasoning the design notes
// give for the per-port counters).
type Session struct {
	// RunID is a unique value for this process, attached to the
	// session's "stopped status changed" log lines.
	RunID string

	stateMu sync.Mutex
	stopped State

	ring *ring.Ring
	log  zerolog.Logger

	// StartedAt/EndsAt bookkeep --Start/--End/--duration. EndsAt is
	// the zero Time when no deadline is configured.
	StartedAt time.Time
	EndsAt    time.Time

	// File lifecycle: owned exclusively by the consumer.
	CurrentFilename string
	FileNumber      int // -1 means "no numbering"
	FileBytes       int64
	TotalBytes      int64
}

// New creates a Session wired to the ring buffer it wakes on every
// stopped transition.
func New(r *ring.Ring, log zerolog.Logger) *Session {
	return &Session{
		RunID:      uuid.NewString(),
		ring:       r,
		log:        log,
		FileNumber: -1,
	}
}

// Stopped returns the current tri-state value.
func (s *Session) Stopped() State {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.stopped
}

// StoppedNonZero adapts Stopped for ring.Ring.WaitData's predicate.
func (s *Session) StoppedNonZero() bool {
	return s.Stopped() != Running
}

// SetStopped unconditionally applies the transition (the signal
// table's "always" rows: SIGINT, SIGTERM, SIGALRM) and wakes the
// consumer. Logged at info level per spec's "session transitions are
// logged at info level", unless the value is unchanged.
func (s *Session) SetStopped(v State) {
	s.stateMu.Lock()
	old := s.stopped
	s.stopped = v
	s.stateMu.Unlock()

	if old != v {
		s.log.Info().
			Str("run_id", s.RunID).
			Int("from", int(old)).
			Int("to", int(v)).
			Msg("stopped status changed")
	}
	s.ring.WakeConsumer()
}

// transitionFromRunning applies v only when stopped is currently
// Running (the signal table's "stopped == 0" precondition rows:
// SIGHUP, idle-timeout with a file open). Reports whether it applied.
func (s *Session) transitionFromRunning(v State) bool {
	s.stateMu.Lock()
	applied := s.stopped == Running
	if applied {
		s.stopped = v
	}
	s.stateMu.Unlock()

	if applied {
		s.log.Info().
			Str("run_id", s.RunID).
			Int("from", int(Running)).
			Int("to", int(v)).
			Msg("stopped status changed")
		s.ring.WakeConsumer()
	}
	return applied
}

// ClearIfUnchanged implements the consumer's step 5 ("Clear"): if
// stopped has not been mutated by another goroutine since old was
// snapshotted, and old != Terminate, reset it to Running to rearm the
// session for the next file. Returns the value observed after the
// attempt, so the caller can log the race when it lost.
func (s *Session) ClearIfUnchanged(old State) State {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.stopped == old && old != Terminate {
		s.stopped = Running
	}
	return s.stopped
}

// HandleSignal applies one row of the session controller's signal
// table for a delivered OS signal. The idle-timeout row is instead
// driven directly by the producer via OnIdleTimeout, and byte-progress
// milestones by the producer's OnProgress callback, since those are
// synthetic events rather than delivered OS signals.
func (s *Session) HandleSignal(sig os.Signal) {
	switch sig {
	case sigInt, sigTerm, sigAlrm:
		s.SetStopped(Terminate)
	case sigHup:
		s.transitionFromRunning(EndCurrentFile)
	}
}

// Supervise reads signals off sigCh until ctx is canceled. sigCh must
// be registered with signal.Notify for SIGINT, SIGTERM, SIGALRM, and
// SIGHUP; this goroutine is the only writer of stopped on the
// signal-delivery path, matching the self-pipe pattern the design
// notes recommend.
func (s *Session) Supervise(ctx context.Context, sigCh <-chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigCh:
			s.HandleSignal(sig)
		}
	}
}

// OnIdleTimeout applies the idle-timeout rows of the signal table,
// called by the producer when its socket readiness wait (or stdin
// read) times out / hits EOF. stdinMode selects the "always
// terminate" row; otherwise the transition only fires once a file is
// open, per "idle-timeout, no file open: no-op (still waiting for
// first packet)".
func (s *Session) OnIdleTimeout(stdinMode, fileOpen bool) {
	if stdinMode {
		s.SetStopped(Terminate)
		return
	}
	if !fileOpen {
		return
	}
	s.transitionFromRunning(EndCurrentFile)
}

// ArmDeadline schedules a Terminate transition at end, standing in
// for a real SIGALRM: Go has no portable, signal-safe way to deliver
// an actual alarm(2) without syscall-level plumbing, and routing the
// timer through the same SetStopped path the real signal handler uses
// produces identical externally observable behavior. A zero end
// disarms nothing and returns nil.
func (s *Session) ArmDeadline(end time.Time) *time.Timer {
	if end.IsZero() {
		return nil
	}
	d := time.Until(end)
	if d < 0 {
		d = 0
	}
	return time.AfterFunc(d, func() { s.SetStopped(Terminate) })
}

// WaitForStart honors --Start: if start is in the future, blocks
// until then and returns start as the session's anchor instant;
// otherwise returns now immediately, so a duration configured
// alongside a past --Start anchors to wall-clock now rather than the
// missed start time.
func WaitForStart(start time.Time) time.Time {
	now := time.Now()
	if start.IsZero() || !start.After(now) {
		return now
	}
	time.Sleep(time.Until(start))
	return start
}
