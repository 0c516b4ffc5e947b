// Package executor applies and reverses the freeze decision for a managed
// app against whichever kernel mechanism the backend package selected.
package executor

import (
	"fmt"
	"os"
	"strconv"
	"syscall"
	"time"

	"github.com/jark-labs/freezerd/internal/backend"
	"github.com/jark-labs/freezerd/internal/model"
	"github.com/jark-labs/freezerd/internal/procfs"
	"go.uber.org/zap"
)

// NetworkBreaker revokes a uid's network capability through the companion
// system-tools RPC. A successful freeze of a needs-break-network app calls
// BreakNetwork; this package has no operation that restores the capability.
type NetworkBreaker interface {
	BreakNetwork(uid int) error
}

// Executor applies freeze/thaw decisions and keeps the wakeup timeline
// consistent with the outcome.
type Executor struct {
	log      *zap.Logger
	backend  *backend.Backend
	scanner  *procfs.Scanner
	net      NetworkBreaker
	timeline Timeline
}

// Timeline is the subset of the wakeup ring timeline the executor mutates
// after every apply call. Implemented by internal/timeline.Timeline.
type Timeline interface {
	Clear(uid int)
	ScheduleIfEnabled(uid int, wakeupTimeoutMin int)
}

func New(log *zap.Logger, b *backend.Backend, s *procfs.Scanner, net NetworkBreaker, tl Timeline) *Executor {
	return &Executor{log: log.Named("executor"), backend: b, scanner: s, net: net, timeline: tl}
}

// binderBusyPid is returned (negated) by apply when a freezer cgroup write
// fails with EAGAIN, signalling the caller to back off and retry rather than
// treat the app as frozen.
const binderBusyPid = -1

// Apply freezes or thaws app per its freeze mode and the active work mode,
// returning the number of pids acted on, or a negative sentinel if the
// backend reported a transient busy condition that the caller should retry.
func (e *Executor) Apply(app *model.ManagedApp, freeze bool, wakeupTimeoutMin int) int {
	if app.IsWhitelist() {
		e.log.Debug("apply skipped for whitelisted app", zap.String("pkg", app.Package))
		return 0
	}

	if freeze {
		app.Pids = e.scanner.PidsFor(procfs.App{UID: app.UID, Package: app.Package})
	} else {
		app.Pids = dropDead(app.Pids)
	}

	var n int
	switch {
	case app.IsTerminateMode():
		if !freeze {
			return 0 // thaw is a no-op for terminate-mode apps
		}
		n = e.kill(app)
	case app.IsSignalOrFreezer():
		n = e.applyFreezerOrSignal(app, freeze)
	default:
		return 0
	}

	if freeze && n > 0 && app.NeedsBreakNetwork() && e.net != nil {
		if err := e.net.BreakNetwork(app.UID); err != nil {
			e.log.Warn("break network failed", zap.String("pkg", app.Package), zap.Error(err))
		} else {
			e.log.Info("network broken", zap.String("pkg", app.Package))
		}
	}

	e.maintainTimeline(app, freeze, n, wakeupTimeoutMin)
	return n
}

func (e *Executor) maintainTimeline(app *model.ManagedApp, freeze bool, n int, wakeupTimeoutMin int) {
	e.timeline.Clear(app.UID)
	if freeze && n > 0 && app.IsSignalOrFreezer() {
		e.timeline.ScheduleIfEnabled(app.UID, wakeupTimeoutMin)
	}
}

func dropDead(pids []int) []int {
	out := pids[:0]
	for _, pid := range pids {
		if _, err := os.Stat("/proc/" + strconv.Itoa(pid)); err == nil {
			out = append(out, pid)
		}
	}
	return out
}

// applyFreezerOrSignal drives the table in spec.md §4.3: freezer modes use
// the cgroup backend except under GLOBAL_SIGSTOP, where they fall through to
// plain signal behaviour.
func (e *Executor) applyFreezerOrSignal(app *model.ManagedApp, freeze bool) int {
	if app.IsSignalMode() || e.backend.Mode == backend.GlobalSigstop {
		return e.applySignal(app, freeze)
	}

	switch e.backend.Mode {
	case backend.V2Uid:
		return e.applyV2Uid(app, freeze)
	case backend.V1St:
		return e.applyV1St(app, freeze)
	case backend.V1:
		return e.applyCgroupProcs(app, freeze)
	default: // V2Frozen
		return e.applyCgroupProcs(app, freeze)
	}
}

func (e *Executor) applySignal(app *model.ManagedApp, freeze bool) int {
	sig := syscall.SIGCONT
	if freeze {
		sig = syscall.SIGSTOP
	}
	return e.signalAll(app, sig)
}

func (e *Executor) signalAll(app *model.ManagedApp, sig syscall.Signal) int {
	n := 0
	for _, pid := range app.Pids {
		if err := syscall.Kill(pid, sig); err != nil {
			e.log.Debug("signal failed", zap.String("pkg", app.Package), zap.Int("pid", pid), zap.Error(err))
			continue
		}
		n++
	}
	return n
}

// applyCgroupProcs handles both V1 (plain cgroup.procs move) and V2Frozen:
// the same "write pid to the destination cgroup.procs" action, just against
// different paths.
func (e *Executor) applyCgroupProcs(app *model.ManagedApp, freeze bool) int {
	dest := e.backend.Paths.FrozenProcs
	if !freeze {
		dest = e.backend.Paths.UnfrozenProcs
	}

	n := 0
	for _, pid := range app.Pids {
		if err := writePid(dest, pid); err != nil {
			if isEAGAIN(err) {
				return binderBusyPid
			}
			e.log.Debug("cgroup.procs write failed", zap.String("pkg", app.Package), zap.Int("pid", pid), zap.Error(err))
			continue
		}
		n++
	}
	return n
}

// applyV1St is V1 with an extra SIGSTOP/SIGCONT around the cgroup move,
// ordered so the signal always happens on the thawed side: freeze moves the
// pid to frozen/cgroup.procs first, then SIGSTOPs it; thaw SIGCONTs first,
// then moves it to unfrozen/cgroup.procs.
func (e *Executor) applyV1St(app *model.ManagedApp, freeze bool) int {
	if freeze {
		n := e.applyCgroupProcs(app, true)
		e.signalAll(app, syscall.SIGSTOP)
		return n
	}
	e.signalAll(app, syscall.SIGCONT)
	return e.applyCgroupProcs(app, false)
}

func (e *Executor) applyV2Uid(app *model.ManagedApp, freeze bool) int {
	state := "0"
	if freeze {
		state = "1"
	}

	n := 0
	for _, pid := range app.Pids {
		path := backend.CgroupV2UidPidPath(app.UID, pid)
		if err := os.WriteFile(path, []byte(state), 0644); err != nil {
			if isEAGAIN(err) {
				return binderBusyPid
			}
			e.log.Debug("v2 uid/pid freeze write failed", zap.String("pkg", app.Package), zap.Int("pid", pid), zap.Error(err))
			continue
		}
		n++
	}
	return n
}

func writePid(path string, pid int) error {
	return os.WriteFile(path, []byte(strconv.Itoa(pid)), 0644)
}

func isEAGAIN(err error) bool {
	pe, ok := err.(*os.PathError)
	if !ok {
		return false
	}
	return pe.Err == syscall.EAGAIN
}

// kill runs the TERMINATE sequence: thaw first if the app was frozen under a
// v1 mode (a stopped task cannot be signalled), SIGSTOP everything, wait
// 50ms, SIGKILL, wait 5s, SIGKILL again in case a watchdog respawned it
// under the same pid within the window.
func (e *Executor) kill(app *model.ManagedApp) int {
	if e.backend.Mode.IsV1() {
		e.applyCgroupProcs(app, false)
	}

	e.signalAll(app, syscall.SIGSTOP)
	time.Sleep(50 * time.Millisecond)

	n := e.signalAll(app, syscall.SIGKILL)
	time.Sleep(5 * time.Second)
	e.signalAll(app, syscall.SIGKILL)

	return n
}

// FormatDuration renders a running-time span the way the scheduler logs it
// on a successful freeze.
func FormatDuration(d time.Duration) string {
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}
