package procfs

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"go.uber.org/zap"
)

// fakeProc stages a minimal /proc tree: one directory per pid holding a
// cmdline and wchan file. Ownership (uid) can't be faked via plain file
// permissions without root, so tests that need uid matching build the real
// uid of the test process into their fixtures and assert against that.
func fakeProc(t *testing.T, pids map[int]struct{ cmdline, wchan string }) string {
	t.Helper()
	root := t.TempDir()
	for pid, f := range pids {
		dir := filepath.Join(root, strconv.Itoa(pid))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("MkdirAll: %v", err)
		}
		if err := os.WriteFile(filepath.Join(dir, "cmdline"), []byte(f.cmdline), 0o644); err != nil {
			t.Fatalf("write cmdline: %v", err)
		}
		if err := os.WriteFile(filepath.Join(dir, "wchan"), []byte(f.wchan), 0o644); err != nil {
			t.Fatalf("write wchan: %v", err)
		}
	}
	return root
}

func TestCmdlineMatches(t *testing.T) {
	cases := []struct {
		cmdline string
		pkg     string
		want    bool
	}{
		{"com.example.app\x00", "com.example.app", true},
		{"com.example.app:remote\x00", "com.example.app", true},
		{"com.example.app", "com.example.app", true},
		{"com.example.appendix\x00", "com.example.app", false},
		{"com.other.app\x00", "com.example.app", false},
		{"", "com.example.app", false},
	}
	for _, tc := range cases {
		if got := cmdlineMatches([]byte(tc.cmdline), tc.pkg); got != tc.want {
			t.Errorf("cmdlineMatches(%q, %q) = %v, want %v", tc.cmdline, tc.pkg, got, tc.want)
		}
	}
}

func TestWalkSkipsLowAndNonNumericPids(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"1", "99", "100", "self", "bus"} {
		dir := filepath.Join(root, name)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("MkdirAll: %v", err)
		}
		os.WriteFile(filepath.Join(dir, "cmdline"), []byte("com.example.app\x00"), 0o644)
	}
	// one valid entry above the minTrackedPid floor
	validDir := filepath.Join(root, "101")
	os.MkdirAll(validDir, 0o755)
	os.WriteFile(filepath.Join(validDir, "cmdline"), []byte("com.example.app\x00"), 0o644)

	s := NewWithRoot(zap.NewNop(), root)
	var seen []int
	s.walk(func(uid, pid int, _ []byte) { seen = append(seen, pid) })

	if len(seen) != 1 || seen[0] != 101 {
		t.Fatalf("walk() visited %v, want only [101]", seen)
	}
}

func TestPidsForMatchesOwnUIDAndCmdline(t *testing.T) {
	root := fakeProc(t, map[int]struct{ cmdline, wchan string }{
		101: {cmdline: "com.example.app\x00", wchan: "ep_poll"},
		102: {cmdline: "com.other.app\x00", wchan: "ep_poll"},
	})
	s := NewWithRoot(zap.NewNop(), root)

	// The walk reads real file ownership via syscall.Stat_t, which in this
	// sandboxed test process is the current uid; match against that.
	self := os.Getuid()
	pids := s.PidsFor(App{UID: self, Package: "com.example.app"})
	if len(pids) != 1 || pids[0] != 101 {
		t.Fatalf("PidsFor() = %v, want [101]", pids)
	}

	none := s.PidsFor(App{UID: self + 999999, Package: "com.example.app"})
	if len(none) != 0 {
		t.Fatalf("PidsFor() with mismatched uid = %v, want none", none)
	}
}

func TestScanForAuditReportsWchan(t *testing.T) {
	root := fakeProc(t, map[int]struct{ cmdline, wchan string }{
		101: {cmdline: "com.example.app\x00", wchan: "do_freezer_trap"},
	})
	s := NewWithRoot(zap.NewNop(), root)

	procs := s.ScanForAudit(func(uid int) bool { return uid == os.Getuid() })
	if len(procs) != 1 {
		t.Fatalf("ScanForAudit() = %v, want one entry", procs)
	}
	if procs[0].Wchan != "do_freezer_trap" {
		t.Errorf("Wchan = %q, want do_freezer_trap", procs[0].Wchan)
	}
}

func TestRunningUIDsReducesToPresence(t *testing.T) {
	root := fakeProc(t, map[int]struct{ cmdline, wchan string }{
		101: {cmdline: "com.example.app\x00", wchan: "ep_poll"},
	})
	s := NewWithRoot(zap.NewNop(), root)

	self := os.Getuid()
	running := s.RunningUIDs([]App{{UID: self, Package: "com.example.app"}, {UID: self + 1, Package: "com.idle.app"}})
	if _, ok := running[self]; !ok {
		t.Fatalf("RunningUIDs() = %v, missing running uid", running)
	}
	if _, ok := running[self+1]; ok {
		t.Fatalf("RunningUIDs() = %v, included uid with no process", running)
	}
}
