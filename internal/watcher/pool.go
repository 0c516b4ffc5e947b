// Package watcher runs the event-watcher pool: long-lived goroutines that
// bump a shared pulse counter whenever the cpuset or an input device fires,
// telling the scheduler to poll the foreground source; the scheduler polls
// it only while pulses remain.
package watcher

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// maxConcurrentInputWatchers bounds how many /dev/input/eventN goroutines
// run at once on devices exposing unusually many input nodes.
const maxConcurrentInputWatchers = 16

// refreshPulses is how many follow-up scheduler polls one watcher event
// buys, each tick apart, per spec.md §4.6.
const refreshPulses = 2

// Pool owns the shared pulse counter and supervises every watcher
// goroutine. Any watcher returning an error is fatal to the whole pool,
// per spec.md §7, so the process can be restarted by its supervisor: that
// covers setup failures and the cpuset watcher's channels closing. A read
// failure on an input device after setup only ends that one watcher.
type Pool struct {
	log   *zap.Logger
	pulse atomic.Int32
	slots *slotPool
}

func NewPool(log *zap.Logger) *Pool {
	return &Pool{log: log.Named("watcher"), slots: newSlotPool(maxConcurrentInputWatchers)}
}

// Pulse bumps the shared counter to refreshPulses, saturating rather than
// accumulating: any event means "poll again soon", not "poll N more times
// per event".
func (p *Pool) Pulse() {
	p.pulse.Store(refreshPulses)
}

// TakePulse decrements the counter if positive and reports whether it was
// positive before the decrement, matching the scheduler's
// "if refresh_top_app_pulses > 0: decrement" step.
func (p *Pool) TakePulse() bool {
	for {
		cur := p.pulse.Load()
		if cur <= 0 {
			return false
		}
		if p.pulse.CompareAndSwap(cur, cur-1) {
			return true
		}
	}
}

// Run starts the cpuset watcher and one watcher per input device path,
// blocking until ctx is cancelled or any watcher's setup fails. A setup
// failure cancels the group and propagates as this call's return value.
func (p *Pool) Run(ctx context.Context, cpusetPath string, inputPaths []string) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return watchCpuset(ctx, p.log, cpusetPath, p.Pulse)
	})

	for _, path := range inputPaths {
		path := path
		g.Go(func() error {
			p.slots.acquire(path)
			defer p.slots.release(path)
			return watchInput(ctx, p.log, path, p.Pulse)
		})
	}

	return g.Wait()
}
