package executor

import (
	"os"
	"testing"
	"time"

	"github.com/jark-labs/freezerd/internal/backend"
	"github.com/jark-labs/freezerd/internal/model"
	"github.com/jark-labs/freezerd/internal/procfs"
	"go.uber.org/zap"
)

type fakeTimeline struct {
	cleared    []int
	scheduled  []int
	wakeupMins []int
}

func (f *fakeTimeline) Clear(uid int) { f.cleared = append(f.cleared, uid) }
func (f *fakeTimeline) ScheduleIfEnabled(uid int, wakeupTimeoutMin int) {
	f.scheduled = append(f.scheduled, uid)
	f.wakeupMins = append(f.wakeupMins, wakeupTimeoutMin)
}

func newTestExecutor(t *testing.T, mode backend.WorkMode, tl Timeline) *Executor {
	be := &backend.Backend{Mode: mode}
	scanner := procfs.NewWithRoot(zap.NewNop(), t.TempDir()) // empty /proc: no pids ever match
	return New(zap.NewNop(), be, scanner, nil, tl)
}

func TestApplyWhitelistShortCircuits(t *testing.T) {
	tl := &fakeTimeline{}
	e := newTestExecutor(t, backend.GlobalSigstop, tl)
	app := &model.ManagedApp{UID: 1, Package: "com.example.app", FreezeMode: model.FreezeModeWhitelist}

	n := e.Apply(app, true, 30)

	if n != 0 {
		t.Fatalf("Apply() for whitelisted app = %d, want 0", n)
	}
	if len(tl.cleared) != 0 || len(tl.scheduled) != 0 {
		t.Errorf("timeline touched for whitelisted app: cleared=%v scheduled=%v", tl.cleared, tl.scheduled)
	}
}

func TestApplyTerminateThawIsNoop(t *testing.T) {
	tl := &fakeTimeline{}
	e := newTestExecutor(t, backend.GlobalSigstop, tl)
	app := &model.ManagedApp{UID: 1, Package: "com.example.app", FreezeMode: model.FreezeModeTerminate, Pids: []int{999999}}

	start := time.Now()
	n := e.Apply(app, false, 30)
	elapsed := time.Since(start)

	if n != 0 {
		t.Fatalf("Apply(freeze=false) for terminate-mode app = %d, want 0", n)
	}
	// kill() sleeps 50ms + 5s; a correct no-op must return far faster.
	if elapsed > time.Second {
		t.Fatalf("Apply(freeze=false) took %s, want near-instant (kill() must not run)", elapsed)
	}
}

func TestApplySignalModeSignalsUnderGlobalSigstop(t *testing.T) {
	tl := &fakeTimeline{}
	e := newTestExecutor(t, backend.GlobalSigstop, tl)
	app := &model.ManagedApp{UID: 1, Package: "com.example.app", FreezeMode: model.FreezeModeSignal, Pids: []int{999999}}

	n := e.Apply(app, true, 30)

	// the empty fake /proc means the pre-freeze procfs refresh finds no
	// matching pids, so signalAll has nothing to signal; the call must still
	// route through the GlobalSigstop signal path without panicking.
	if n != 0 {
		t.Fatalf("Apply() with no matching pids = %d, want 0", n)
	}
	if len(tl.cleared) != 1 || tl.cleared[0] != 1 {
		t.Errorf("timeline.Clear not called with uid 1: %v", tl.cleared)
	}
	if len(tl.scheduled) != 0 {
		t.Errorf("timeline scheduled despite n=0: %v", tl.scheduled)
	}
}

func TestApplySignalModeThawCountsLivePid(t *testing.T) {
	tl := &fakeTimeline{}
	e := newTestExecutor(t, backend.GlobalSigstop, tl)
	self := os.Getpid()
	app := &model.ManagedApp{UID: 1, Package: "com.example.app", FreezeMode: model.FreezeModeSignal, Pids: []int{self}}

	// SIGCONT on an already-running process is a harmless no-op signal.
	n := e.Apply(app, false, 30)

	if n != 1 {
		t.Fatalf("Apply(freeze=false) with one live pid = %d, want 1", n)
	}
	if len(tl.cleared) != 1 {
		t.Errorf("timeline.Clear not called: %v", tl.cleared)
	}
}

func TestApplyDefaultModeIsNoop(t *testing.T) {
	tl := &fakeTimeline{}
	e := newTestExecutor(t, backend.GlobalSigstop, tl)
	app := &model.ManagedApp{UID: 1, Package: "com.example.app", FreezeMode: model.FreezeMode(99)}

	if n := e.Apply(app, true, 30); n != 0 {
		t.Fatalf("Apply() for unrecognized freeze mode = %d, want 0", n)
	}
}

func TestDropDeadFiltersMissingPids(t *testing.T) {
	alive := os.Getpid()
	dead := 999999

	out := dropDead([]int{alive, dead})
	if len(out) != 1 || out[0] != alive {
		t.Fatalf("dropDead(%v) = %v, want [%d]", []int{alive, dead}, out, alive)
	}
}

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{0, "0m0s"},
		{90 * time.Second, "1m30s"},
		{125 * time.Second, "2m5s"},
	}
	for _, tc := range cases {
		if got := FormatDuration(tc.d); got != tc.want {
			t.Errorf("FormatDuration(%s) = %q, want %q", tc.d, got, tc.want)
		}
	}
}
