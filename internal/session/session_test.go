package session

import (
	"testing"
	"time"

	"github.com/user/stationrec/internal/logging"
	"github.com/user/stationrec/internal/ring"
)

func newTestSession(t *testing.T) *Session {
	t.Helper()
	r, err := ring.Create(4096)
	if err != nil {
		t.Fatalf("ring.Create: %v", err)
	}
	t.Cleanup(func() { r.Destroy() })
	return New(r, logging.New("error"))
}

func TestSIGHUPTransitionsOnlyFromRunning(t *testing.T) {
	s := newTestSession(t)

	s.HandleSignal(sigHup)
	if got := s.Stopped(); got != EndCurrentFile {
		t.Fatalf("Stopped() after SIGHUP = %v, want EndCurrentFile", got)
	}

	// A second SIGHUP while already in EndCurrentFile must not regress
	// to Running or otherwise change state (precondition: stopped==0).
	s.HandleSignal(sigHup)
	if got := s.Stopped(); got != EndCurrentFile {
		t.Fatalf("Stopped() after second SIGHUP = %v, want unchanged EndCurrentFile", got)
	}
}

func TestSIGINTAlwaysTerminates(t *testing.T) {
	s := newTestSession(t)
	s.HandleSignal(sigHup) // drive to EndCurrentFile first
	s.HandleSignal(sigInt)
	if got := s.Stopped(); got != Terminate {
		t.Fatalf("Stopped() after SIGINT = %v, want Terminate", got)
	}
}

func TestOnIdleTimeoutNoFileOpenIsNoop(t *testing.T) {
	s := newTestSession(t)
	s.OnIdleTimeout(false /* stdinMode */, false /* fileOpen */)
	if got := s.Stopped(); got != Running {
		t.Fatalf("Stopped() = %v, want Running (no-op with no file open)", got)
	}
}

func TestOnIdleTimeoutSocketModeWithFileOpen(t *testing.T) {
	s := newTestSession(t)
	s.OnIdleTimeout(false, true)
	if got := s.Stopped(); got != EndCurrentFile {
		t.Fatalf("Stopped() = %v, want EndCurrentFile", got)
	}
}

func TestOnIdleTimeoutStdinModeAlwaysTerminates(t *testing.T) {
	s := newTestSession(t)
	// Even with no file open, stdin EOF always terminates.
	s.OnIdleTimeout(true, false)
	if got := s.Stopped(); got != Terminate {
		t.Fatalf("Stopped() = %v, want Terminate", got)
	}
}

func TestClearIfUnchangedRearmsSession(t *testing.T) {
	s := newTestSession(t)
	s.SetStopped(SplitNow)
	old := s.Stopped()

	got := s.ClearIfUnchanged(old)
	if got != Running {
		t.Fatalf("ClearIfUnchanged = %v, want Running", got)
	}
}

func TestClearIfUnchangedNeverClearsTerminate(t *testing.T) {
	s := newTestSession(t)
	s.SetStopped(Terminate)
	got := s.ClearIfUnchanged(Terminate)
	if got != Terminate {
		t.Fatalf("ClearIfUnchanged after Terminate = %v, want Terminate", got)
	}
}

func TestClearIfUnchangedDetectsRace(t *testing.T) {
	s := newTestSession(t)
	s.SetStopped(EndCurrentFile)
	// Simulate a concurrent transition to Terminate happening between
	// the snapshot and the clear attempt.
	s.SetStopped(Terminate)

	got := s.ClearIfUnchanged(EndCurrentFile)
	if got != Terminate {
		t.Fatalf("ClearIfUnchanged after concurrent change = %v, want Terminate (race detected, new value kept)", got)
	}
}

func TestArmDeadlineFiresTerminate(t *testing.T) {
	s := newTestSession(t)
	timer := s.ArmDeadline(time.Now().Add(20 * time.Millisecond))
	if timer == nil {
		t.Fatal("ArmDeadline returned nil for a non-zero deadline")
	}
	defer timer.Stop()

	deadline := time.After(time.Second)
	for s.Stopped() != Terminate {
		select {
		case <-deadline:
			t.Fatal("deadline did not fire Terminate in time")
		case <-time.After(time.Millisecond):
		}
	}
}

func TestArmDeadlineZeroIsNoop(t *testing.T) {
	s := newTestSession(t)
	if timer := s.ArmDeadline(time.Time{}); timer != nil {
		t.Error("ArmDeadline with zero time returned a non-nil timer")
	}
}

func TestWaitForStartPastReturnsNow(t *testing.T) {
	before := time.Now()
	got := WaitForStart(before.Add(-time.Hour))
	if got.Before(before) {
		t.Errorf("WaitForStart with past start returned %v, before test start %v", got, before)
	}
}

func TestWaitForStartFutureBlocksUntilStart(t *testing.T) {
	start := time.Now().Add(30 * time.Millisecond)
	got := WaitForStart(start)
	if time.Since(start) < 0 {
		t.Error("WaitForStart returned before the configured start time elapsed")
	}
	if !got.Equal(start) {
		t.Errorf("WaitForStart anchor = %v, want %v", got, start)
	}
}

func TestNewAssignsUniqueRunID(t *testing.T) {
	a := newTestSession(t)
	b := newTestSession(t)
	if a.RunID == "" || b.RunID == "" {
		t.Fatal("RunID is empty")
	}
	if a.RunID == b.RunID {
		t.Fatal("two sessions were assigned the same RunID")
	}
}

func TestStoppedNonZero(t *testing.T) {
	s := newTestSession(t)
	if s.StoppedNonZero() {
		t.Fatal("StoppedNonZero() = true at Running")
	}
	s.SetStopped(Terminate)
	if !s.StoppedNonZero() {
		t.Fatal("StoppedNonZero() = false after Terminate")
	}
}
