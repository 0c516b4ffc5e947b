// Package foreground provides the three interchangeable sources of "which
// uids are visible to the user right now" and the sanity gate the scheduler
// applies to whichever one is active.
package foreground

import (
	"context"

	"github.com/jark-labs/freezerd/internal/config"
	"go.uber.org/zap"
)

// Source reports the current set of foreground (visible) uids.
type Source interface {
	Poll(ctx context.Context) (map[int]struct{}, error)
}

// Gated wraps a Source with the over-report sanity gate: if the newly
// parsed set is at least 3 entries larger than the previous accepted set,
// the sample is discarded and the previous set is returned instead. Some
// Android builds occasionally over-report the activity stack for a single
// tick; the gate absorbs that. A set that stays 3 or more entries larger
// than the last accepted one is discarded on every poll for as long as it
// stays that large.
type Gated struct {
	log  *zap.Logger
	src  Source
	last map[int]struct{}
}

func NewGated(log *zap.Logger, src Source) *Gated {
	return &Gated{log: log.Named("fg.gate"), src: src, last: map[int]struct{}{}}
}

const overReportThreshold = 3

func (g *Gated) Poll(ctx context.Context) (map[int]struct{}, error) {
	cur, err := g.src.Poll(ctx)
	if err != nil {
		return g.last, err
	}

	if len(cur) >= len(g.last)+overReportThreshold {
		g.log.Debug("foreground sample discarded by sanity gate",
			zap.Int("prev_size", len(g.last)), zap.Int("new_size", len(cur)))
		return g.last, nil
	}

	g.last = cur
	return cur, nil
}

// auto tries the socket source first on every poll and falls back to the
// shell-based lru source when the hook is unreachable, per spec.md §4.4's
// selection rationale.
type auto struct {
	log    *zap.Logger
	socket Source
	lru    Source
}

func (a *auto) Poll(ctx context.Context) (map[int]struct{}, error) {
	uids, err := a.socket.Poll(ctx)
	if err == nil {
		return uids, nil
	}
	a.log.Debug("socket source unavailable, falling back to activity_lru", zap.Error(err))
	return a.lru.Poll(ctx)
}

// Select builds the Source the scheduler will poll. "auto" tries the
// socket source and falls back to activity-lru on error; activity_stack
// remains available only via explicit configuration for devices where lru
// parsing proves unreliable.
func Select(log *zap.Logger, kind config.ForegroundSourceKind, socket Source, lru Source, stack Source) Source {
	switch kind {
	case config.ForegroundSourceSocket:
		return socket
	case config.ForegroundSourceActivityStck:
		return stack
	case config.ForegroundSourceActivityLRU:
		return lru
	default:
		return &auto{log: log.Named("fg.auto"), socket: socket, lru: lru}
	}
}
