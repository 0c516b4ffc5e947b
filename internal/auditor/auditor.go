// Package auditor implements the re-freeze audit: a periodic procfs sweep
// that catches managed apps the kernel let slip out of a frozen state
// without the scheduler noticing.
package auditor

import (
	"sync"

	"github.com/jark-labs/freezerd/internal/procfs"
	"go.uber.org/zap"
)

// frozenWchans are the kernel sleep states that count as "actually
// quiesced"; anything else observed on a managed, non-whitelisted,
// non-foreground, non-pending uid is an escapee.
var frozenWchans = map[string]struct{}{
	"do_freezer_trap": {},
	"__refrigerator":  {},
	"do_signal_stop":  {},
	"get_signal":      {},
	"ptrace_stop":     {},
}

// Auditor tracks uids caught running when they should be frozen.
type Auditor struct {
	log     *zap.Logger
	scanner *procfs.Scanner

	mu      sync.Mutex
	naughty map[int]struct{}
}

func New(log *zap.Logger, scanner *procfs.Scanner) *Auditor {
	return &Auditor{log: log.Named("auditor"), scanner: scanner, naughty: make(map[int]struct{})}
}

// Audit scans procfs for pids owned by any uid that predicate accepts
// (managed, non-whitelisted, not currently foreground or pending) and
// records every uid whose wchan falls outside the frozen set.
func (a *Auditor) Audit(predicate func(uid int) bool) {
	procs := a.scanner.ScanForAudit(predicate)

	a.mu.Lock()
	defer a.mu.Unlock()

	for _, p := range procs {
		if _, frozen := frozenWchans[p.Wchan]; frozen {
			continue
		}
		if _, already := a.naughty[p.UID]; !already {
			a.log.Info("escapee detected", zap.Int("uid", p.UID), zap.Int("pid", p.PID), zap.String("wchan", p.Wchan))
		}
		a.naughty[p.UID] = struct{}{}
	}
}

// Peek returns a snapshot of the currently accumulated naughty uids without
// clearing them, for the debug API.
func (a *Auditor) Peek() []int {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]int, 0, len(a.naughty))
	for uid := range a.naughty {
		out = append(out, uid)
	}
	return out
}

// Drain returns every naughty uid accumulated since the last Drain and
// clears the set, per spec.md §4.5's "move every naughty uid into the
// pending queue... and clear the naughty set".
func (a *Auditor) Drain() []int {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.naughty) == 0 {
		return nil
	}
	out := make([]int, 0, len(a.naughty))
	for uid := range a.naughty {
		out = append(out, uid)
	}
	a.naughty = make(map[int]struct{})
	return out
}
