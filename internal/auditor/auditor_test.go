package auditor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jark-labs/freezerd/internal/procfs"
	"go.uber.org/zap"
)

func fakeProc(t *testing.T, entries map[int]string) string {
	t.Helper()
	root := t.TempDir()
	for pid, wchan := range entries {
		dir := filepath.Join(root, itoa(pid))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("MkdirAll: %v", err)
		}
		os.WriteFile(filepath.Join(dir, "cmdline"), []byte("com.example.app\x00"), 0o644)
		os.WriteFile(filepath.Join(dir, "wchan"), []byte(wchan), 0o644)
	}
	return root
}

func itoa(n int) string {
	digits := []byte{}
	if n == 0 {
		return "0"
	}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

func TestAuditRecordsEscapeeNotFrozenWchan(t *testing.T) {
	self := os.Getuid()
	root := fakeProc(t, map[int]string{101: "ep_poll"}) // not in frozenWchans
	scanner := procfs.NewWithRoot(zap.NewNop(), root)
	a := New(zap.NewNop(), scanner)

	a.Audit(func(uid int) bool { return uid == self })

	naughty := a.Peek()
	if len(naughty) != 1 || naughty[0] != self {
		t.Fatalf("Peek() = %v, want [%d]", naughty, self)
	}
}

func TestAuditIgnoresFrozenWchan(t *testing.T) {
	self := os.Getuid()
	root := fakeProc(t, map[int]string{101: "do_freezer_trap"})
	scanner := procfs.NewWithRoot(zap.NewNop(), root)
	a := New(zap.NewNop(), scanner)

	a.Audit(func(uid int) bool { return uid == self })

	if naughty := a.Peek(); len(naughty) != 0 {
		t.Fatalf("Peek() = %v, want none for a frozen wchan", naughty)
	}
}

func TestAuditIgnoresUIDsPredicateRejects(t *testing.T) {
	root := fakeProc(t, map[int]string{101: "ep_poll"})
	scanner := procfs.NewWithRoot(zap.NewNop(), root)
	a := New(zap.NewNop(), scanner)

	a.Audit(func(uid int) bool { return false })

	if naughty := a.Peek(); len(naughty) != 0 {
		t.Fatalf("Peek() = %v, want none when predicate rejects everything", naughty)
	}
}

func TestDrainClearsButPeekDoesNot(t *testing.T) {
	self := os.Getuid()
	root := fakeProc(t, map[int]string{101: "ep_poll"})
	scanner := procfs.NewWithRoot(zap.NewNop(), root)
	a := New(zap.NewNop(), scanner)
	a.Audit(func(uid int) bool { return uid == self })

	if p := a.Peek(); len(p) != 1 {
		t.Fatalf("Peek() before Drain = %v, want one entry", p)
	}
	if p := a.Peek(); len(p) != 1 {
		t.Fatalf("second Peek() = %v, want Peek to be non-destructive", p)
	}

	drained := a.Drain()
	if len(drained) != 1 || drained[0] != self {
		t.Fatalf("Drain() = %v, want [%d]", drained, self)
	}
	if p := a.Peek(); len(p) != 0 {
		t.Fatalf("Peek() after Drain = %v, want empty", p)
	}
	if d := a.Drain(); d != nil {
		t.Fatalf("second Drain() = %v, want nil", d)
	}
}
