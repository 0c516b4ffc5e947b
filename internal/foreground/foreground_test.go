package foreground

import (
	"context"
	"errors"
	"testing"

	"github.com/jark-labs/freezerd/internal/config"
	"go.uber.org/zap"
)

type fakeSource struct {
	uids map[int]struct{}
	err  error
}

func (f *fakeSource) Poll(context.Context) (map[int]struct{}, error) { return f.uids, f.err }

func uidSet(uids ...int) map[int]struct{} {
	out := make(map[int]struct{}, len(uids))
	for _, u := range uids {
		out[u] = struct{}{}
	}
	return out
}

func TestGatedPassesThroughNormalGrowth(t *testing.T) {
	src := &fakeSource{uids: uidSet(1, 2)}
	g := NewGated(zap.NewNop(), src)

	got, err := g.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Poll() = %v, want 2 entries", got)
	}
}

func TestGatedDiscardsOverReportSpike(t *testing.T) {
	src := &fakeSource{uids: uidSet(1)}
	g := NewGated(zap.NewNop(), src)
	first, _ := g.Poll(context.Background())
	if len(first) != 1 {
		t.Fatalf("first Poll() = %v, want 1 entry", first)
	}

	// 4 >= 1 + overReportThreshold(3): must be discarded.
	src.uids = uidSet(1, 2, 3, 4)
	got, err := g.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Poll() after spike = %v, want previous 1-entry set", got)
	}
}

func TestGatedAcceptsGrowthBelowThreshold(t *testing.T) {
	src := &fakeSource{uids: uidSet(1)}
	g := NewGated(zap.NewNop(), src)
	g.Poll(context.Background())

	// 3 < 1 + 3: within the gate, must be accepted.
	src.uids = uidSet(1, 2, 3)
	got, err := g.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Poll() = %v, want the new 3-entry set accepted", got)
	}
}

func TestGatedPropagatesSourceError(t *testing.T) {
	wantErr := errors.New("boom")
	src := &fakeSource{err: wantErr}
	g := NewGated(zap.NewNop(), src)

	_, err := g.Poll(context.Background())
	if err != wantErr {
		t.Fatalf("Poll() error = %v, want %v", err, wantErr)
	}
}

func TestAutoFallsBackToLRUOnSocketError(t *testing.T) {
	socket := &fakeSource{err: errors.New("hook unreachable")}
	lru := &fakeSource{uids: uidSet(5)}
	a := &auto{log: zap.NewNop(), socket: socket, lru: lru}

	got, err := a.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Poll() = %v, want lru's 1-entry set", got)
	}
}

func TestAutoPrefersSocketWhenAvailable(t *testing.T) {
	socket := &fakeSource{uids: uidSet(7)}
	lru := &fakeSource{uids: uidSet(5)}
	a := &auto{log: zap.NewNop(), socket: socket, lru: lru}

	got, err := a.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if _, ok := got[7]; !ok {
		t.Fatalf("Poll() = %v, want socket's result preferred", got)
	}
}

func TestSelectReturnsNamedSourceForExplicitKinds(t *testing.T) {
	socket := &fakeSource{}
	lru := &fakeSource{}
	stack := &fakeSource{}

	if got := Select(zap.NewNop(), config.ForegroundSourceSocket, socket, lru, stack); got != Source(socket) {
		t.Errorf("Select(socket) did not return the socket source")
	}
	if got := Select(zap.NewNop(), config.ForegroundSourceActivityLRU, socket, lru, stack); got != Source(lru) {
		t.Errorf("Select(activity_lru) did not return the lru source")
	}
	if got := Select(zap.NewNop(), config.ForegroundSourceActivityStck, socket, lru, stack); got != Source(stack) {
		t.Errorf("Select(activity_stack) did not return the stack source")
	}
}

func TestSelectAutoWrapsSocketAndLRU(t *testing.T) {
	socket := &fakeSource{}
	lru := &fakeSource{}
	stack := &fakeSource{}

	got := Select(zap.NewNop(), config.ForegroundSourceAuto, socket, lru, stack)
	a, ok := got.(*auto)
	if !ok {
		t.Fatalf("Select(auto) = %T, want *auto", got)
	}
	if a.socket != Source(socket) || a.lru != Source(lru) {
		t.Errorf("Select(auto) wired wrong sources: %+v", a)
	}
}
