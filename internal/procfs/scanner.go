// Package procfs walks /proc to answer the three questions the scheduler and
// auditor need: which pids belong to a managed app, which managed uids have
// any running process at all, and what kernel sleep state those pids are in.
//
// Every query here does a fresh directory walk; spec.md §4.1 explicitly rules
// out caching across calls, since pids come and go between ticks and a stale
// answer is worse than a slightly slower one.
package procfs

import (
	"os"
	"strconv"
	"strings"
	"syscall"

	"go.uber.org/zap"
)

const procRoot = "/proc"

// minTrackedPid matches the teacher's defensive-skip convention: low pids
// are kernel threads and init, never app processes worth walking into.
const minTrackedPid = 100

// Scanner reads /proc. Its zero value is unusable; use New.
type Scanner struct {
	log  *zap.Logger
	root string
}

func New(log *zap.Logger) *Scanner {
	return NewWithRoot(log, procRoot)
}

// NewWithRoot is New with an overridable procfs root, for tests that stage a
// fake /proc tree.
func NewWithRoot(log *zap.Logger, root string) *Scanner {
	return &Scanner{log: log.Named("procfs"), root: root}
}

// Proc is one observed process: its owning uid, pid, and (optionally) the
// kernel wchan it was sleeping in at scan time.
type Proc struct {
	UID   int
	PID   int
	Wchan string
}

// cmdlineMatches matches an app's (uid, package) pair against a single proc
// directory's cmdline, per the pids_for contract: cmdline must start with
// the package name followed by ':' or a NUL byte (i.e. end exactly there).
func cmdlineMatches(cmdline []byte, pkg string) bool {
	if !strings.HasPrefix(string(cmdline), pkg) {
		return false
	}
	rest := cmdline[len(pkg):]
	if len(rest) == 0 {
		return true
	}
	return rest[0] == ':' || rest[0] == 0
}

// walk iterates every numeric /proc/<pid> directory, invoking visit with the
// directory's owning uid, the numeric pid, and its raw cmdline bytes.
// Non-numeric names and pids <= minTrackedPid are skipped silently;
// directories that fail stat or whose cmdline cannot be read are logged at
// debug and skipped, per spec.md §7's transient-I/O policy.
func (s *Scanner) walk(visit func(uid, pid int, cmdline []byte)) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		s.log.Warn("read /proc failed", zap.Error(err))
		return
	}

	for _, e := range entries {
		pid, err := strconv.Atoi(e.Name())
		if err != nil || pid <= minTrackedPid {
			continue
		}

		info, err := e.Info()
		if err != nil {
			s.log.Debug("stat pid failed", zap.Int("pid", pid), zap.Error(err))
			continue
		}
		sys, ok := info.Sys().(*syscall.Stat_t)
		if !ok {
			continue
		}
		uid := int(sys.Uid)

		cmdline, err := os.ReadFile(s.root + "/" + e.Name() + "/cmdline")
		if err != nil {
			s.log.Debug("read cmdline failed", zap.Int("pid", pid), zap.Error(err))
			continue
		}

		visit(uid, pid, cmdline)
	}
}

func (s *Scanner) wchan(pid int) string {
	b, err := os.ReadFile(s.root + "/" + strconv.Itoa(pid) + "/wchan")
	if err != nil {
		s.log.Debug("read wchan failed", zap.Int("pid", pid), zap.Error(err))
		return ""
	}
	return string(b)
}

// App is the minimal shape pids_for needs from a managed app: its uid and
// package name.
type App struct {
	UID     int
	Package string
}

// PidsFor returns every pid belonging to app, matched by uid and cmdline
// prefix.
func (s *Scanner) PidsFor(app App) []int {
	var pids []int
	s.walk(func(uid, pid int, cmdline []byte) {
		if uid == app.UID && cmdlineMatches(cmdline, app.Package) {
			pids = append(pids, pid)
		}
	})
	return pids
}

// RunningPids walks /proc once and returns, for every app in apps whose uid
// is in the set, the matching pids.
func (s *Scanner) RunningPids(apps []App) map[int][]int {
	byUID := make(map[int]App, len(apps))
	for _, a := range apps {
		byUID[a.UID] = a
	}

	out := make(map[int][]int)
	s.walk(func(uid, pid int, cmdline []byte) {
		a, ok := byUID[uid]
		if !ok || !cmdlineMatches(cmdline, a.Package) {
			return
		}
		out[uid] = append(out[uid], pid)
	})
	return out
}

// RunningUIDs is RunningPids reduced to the set of uids with at least one
// matching pid.
func (s *Scanner) RunningUIDs(apps []App) map[int]struct{} {
	running := s.RunningPids(apps)
	out := make(map[int]struct{}, len(running))
	for uid := range running {
		out[uid] = struct{}{}
	}
	return out
}

// ScanForAudit walks /proc once, reporting every pid whose uid passes
// predicate alongside its wchan. Used by the re-freeze auditor, which only
// cares about wchan classification for managed, non-whitelisted uids.
func (s *Scanner) ScanForAudit(predicate func(uid int) bool) []Proc {
	var out []Proc
	s.walk(func(uid, pid int, _ []byte) {
		if !predicate(uid) {
			return
		}
		out = append(out, Proc{UID: uid, PID: pid, Wchan: s.wchan(pid)})
	})
	return out
}
