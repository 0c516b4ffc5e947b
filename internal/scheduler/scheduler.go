// Package scheduler implements the single-threaded 500ms tick loop that
// coordinates every other component: the foreground source, the pending
// queue, the wakeup timeline, the re-freeze auditor, and the external doze
// supervisor.
package scheduler

import (
	"context"
	"time"

	"github.com/jark-labs/freezerd/internal/auditor"
	"github.com/jark-labs/freezerd/internal/backend"
	"github.com/jark-labs/freezerd/internal/config"
	"github.com/jark-labs/freezerd/internal/doze"
	"github.com/jark-labs/freezerd/internal/executor"
	"github.com/jark-labs/freezerd/internal/foreground"
	"github.com/jark-labs/freezerd/internal/model"
	"github.com/jark-labs/freezerd/internal/procfs"
	"github.com/jark-labs/freezerd/internal/queue"
	"github.com/jark-labs/freezerd/internal/registry"
	"github.com/jark-labs/freezerd/internal/systools"
	"github.com/jark-labs/freezerd/internal/timeline"
	"github.com/jark-labs/freezerd/internal/watcher"
	"go.uber.org/zap"
)

const tick = 500 * time.Millisecond

// Scheduler owns every piece of mutable core state that must only ever be
// touched from its own goroutine: the pending queue, the timeline, the
// foreground sets, and the uid -> in-flight freeze-failure counters.
type Scheduler struct {
	log *zap.Logger
	cfg *config.Config

	reg      registry.Registry
	scanner  *procfs.Scanner
	backend  *backend.Backend
	exec     *executor.Executor
	timeline *timeline.Timeline
	pending  *queue.Pending
	audit    *auditor.Auditor
	doze     doze.Doze
	fgSource foreground.Source
	pool     *watcher.Pool
	wakeup   *systools.Client
	battery  systools.BatteryProbe

	apps map[int]*model.ManagedApp // scratch per-uid state, core-owned

	lastForeground    map[int]struct{}
	currentForeground map[int]struct{}
	fgBackup          map[int]struct{}
	inDoze            bool

	refreezeSecRemaining int
	ticksSinceLastSecond int
}

// New assembles a Scheduler from its collaborators. apps is the initial
// snapshot of managed apps the registry reports; the scheduler keeps its
// own mutable copy since Pids/StartTS/StopTS/TotalRunningTime/
// FailFreezeCount are the core's responsibility, not the registry's.
func New(
	log *zap.Logger,
	cfg *config.Config,
	reg registry.Registry,
	scanner *procfs.Scanner,
	be *backend.Backend,
	exec *executor.Executor,
	tl *timeline.Timeline,
	audit *auditor.Auditor,
	dz doze.Doze,
	fgSource foreground.Source,
	pool *watcher.Pool,
	wakeup *systools.Client,
	battery systools.BatteryProbe,
) *Scheduler {
	apps := make(map[int]*model.ManagedApp)
	for _, snap := range reg.All() {
		apps[snap.UID] = &model.ManagedApp{
			UID:        snap.UID,
			Package:    snap.Package,
			Label:      snap.Label,
			FreezeMode: snap.FreezeMode,
			IsTolerant: snap.IsTolerant,
		}
	}

	return &Scheduler{
		log:                  log.Named("scheduler"),
		cfg:                  cfg,
		reg:                  reg,
		scanner:              scanner,
		backend:              be,
		exec:                 exec,
		timeline:             tl,
		pending:              queue.New(),
		audit:                audit,
		doze:                 dz,
		fgSource:             fgSource,
		pool:                 pool,
		wakeup:               wakeup,
		battery:              battery,
		apps:                 apps,
		lastForeground:       map[int]struct{}{},
		currentForeground:    map[int]struct{}{},
		fgBackup:             map[int]struct{}{},
		refreezeSecRemaining: int(cfg.RefreezeTimeout.Seconds()),
	}
}

// Run blocks ticking every 500ms until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	t := time.NewTicker(tick)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.onTick(ctx)
		}
	}
}

func (s *Scheduler) onTick(ctx context.Context) {
	if s.pool.TakePulse() {
		s.refreshForeground(ctx)
	}

	s.ticksSinceLastSecond++
	if s.ticksSinceLastSecond*int(tick.Milliseconds()) >= 1000 {
		s.ticksSinceLastSecond = 0
		s.onSecondTick(ctx)
	}
}

// refreshForeground runs the doze-active or doze-inactive branch of step 1
// in spec.md §4.5.
func (s *Scheduler) refreshForeground(ctx context.Context) {
	if s.inDoze {
		if s.doze.CheckIfNeedToExit() {
			s.exitDoze()
		}
		return
	}

	uids, err := s.fgSource.Poll(ctx)
	if err != nil {
		s.log.Debug("foreground poll failed", zap.Error(err))
		return
	}
	s.currentForeground = uids
	s.diffUpdate()
}

func (s *Scheduler) onSecondTick(ctx context.Context) {
	s.processPending()

	if !s.inDoze && s.doze.CheckIfNeedToEnter() {
		s.enterDoze()
		return
	}

	if s.inDoze {
		return
	}

	s.checkBattery()
	s.checkRefreeze(ctx)
	s.checkWakeup()
}

func (s *Scheduler) enterDoze() {
	s.fgBackup = s.currentForeground
	s.currentForeground = map[int]struct{}{}
	s.diffUpdate()
	s.inDoze = true

	if s.wakeup != nil {
		if err := s.wakeup.SetWakeupLock(systools.WakeupLockIgnore, s.runningBlacklistUIDs()); err != nil {
			s.log.Warn("acquire wake-lock failed", zap.Error(err))
		}
	}
}

func (s *Scheduler) exitDoze() {
	s.currentForeground = s.fgBackup
	s.fgBackup = map[int]struct{}{}
	s.diffUpdate()
	s.inDoze = false

	if s.wakeup != nil {
		if err := s.wakeup.SetWakeupLock(systools.WakeupLockDefault, nil); err != nil {
			s.log.Warn("release wake-lock failed", zap.Error(err))
		}
	}
}

// runningBlacklistUIDs is the set of non-whitelisted managed uids with any
// running process, used as the SET_WAKEUP_LOCK(IGNORE) argument on doze
// entry.
func (s *Scheduler) runningBlacklistUIDs() []int {
	var apps []procfs.App
	for _, a := range s.apps {
		if !a.IsWhitelist() {
			apps = append(apps, procfs.App{UID: a.UID, Package: a.Package})
		}
	}
	running := s.scanner.RunningUIDs(apps)
	uids := make([]int, 0, len(running))
	for uid := range running {
		uids = append(uids, uid)
	}
	return uids
}

// diffUpdate computes new_on = current \ last and back_off = last \ current
// and applies spec.md §4.5's rules for each.
func (s *Scheduler) diffUpdate() {
	for uid := range s.currentForeground {
		if _, wasForeground := s.lastForeground[uid]; wasForeground {
			continue
		}
		// new_on
		if s.pending.Contains(uid) {
			s.pending.Remove(uid)
			continue
		}
		app, ok := s.apps[uid]
		if !ok {
			continue
		}
		app.StartTS = time.Now()
		s.exec.Apply(app, false, s.cfg.WakeupTimeoutMin)
	}

	for uid := range s.lastForeground {
		if _, stillForeground := s.currentForeground[uid]; stillForeground {
			continue
		}
		// back_off
		app, ok := s.apps[uid]
		if !ok {
			continue
		}
		countdown := s.cfg.FreezeTimeout
		if app.IsTerminateMode() {
			countdown = s.cfg.TerminateTimeout
		}
		s.pending.Set(uid, int(countdown.Seconds()))
	}

	s.lastForeground = s.currentForeground
}

// processPending drains every expired pending entry through the executor,
// applying exponential backoff on a binder-busy response.
func (s *Scheduler) processPending() {
	for _, uid := range s.pending.Expired() {
		app, ok := s.apps[uid]
		if !ok {
			continue
		}

		n := s.exec.Apply(app, true, s.cfg.WakeupTimeoutMin)
		if n < 0 {
			app.FailFreezeCount++
			backoff := 15 * (1 << app.FailFreezeCount)
			s.pending.Set(uid, backoff)
			s.log.Debug("freeze deferred, backend busy", zap.String("pkg", app.Package), zap.Int("backoff_sec", backoff))
			continue
		}

		app.FailFreezeCount = 0
		app.StopTS = time.Now()
		app.TotalRunningTime += app.StopTS.Sub(app.StartTS)
		s.log.Info("app frozen",
			zap.String("pkg", app.Package),
			zap.Int("pids", n),
			zap.String("ran_for", executor.FormatDuration(app.StopTS.Sub(app.StartTS))))
	}
}

// checkWakeup advances the timeline and, if the newly-current slot names a
// uid, thaws it and re-queues it for a natural re-freeze.
func (s *Scheduler) checkWakeup() {
	uid := s.timeline.Advance()
	if uid == 0 {
		return
	}

	app, ok := s.apps[uid]
	if !ok || !app.IsSignalOrFreezer() {
		return
	}

	if n := s.exec.Apply(app, false, s.cfg.WakeupTimeoutMin); n > 0 {
		app.StartTS = time.Now()
		s.pending.Set(uid, int(s.cfg.FreezeTimeout.Seconds()))
	}
}

// checkRefreeze runs the once-per-refreeze_timeout procfs audit and drains
// any newly-naughty uids straight into the pending queue for immediate
// re-freeze.
func (s *Scheduler) checkRefreeze(_ context.Context) {
	s.refreezeSecRemaining--
	if s.refreezeSecRemaining > 0 {
		return
	}
	s.refreezeSecRemaining = int(s.cfg.RefreezeTimeout.Seconds())

	s.audit.Audit(s.auditablePredicate())

	for _, uid := range s.audit.Drain() {
		s.pending.Set(uid, 1)
	}
}

// auditablePredicate accepts uids that are managed, non-whitelisted, and
// neither currently foreground nor pending.
func (s *Scheduler) auditablePredicate() func(uid int) bool {
	pending := s.pending.UIDs()
	return func(uid int) bool {
		app, ok := s.apps[uid]
		if !ok || app.IsWhitelist() {
			return false
		}
		if _, fg := s.currentForeground[uid]; fg {
			return false
		}
		if _, p := pending[uid]; p {
			return false
		}
		return true
	}
}

// checkBattery logs the current battery state once per second. The core
// makes no freeze decisions from it directly; battery is read here only to
// keep the tick order spec.md §4.5 specifies, and to surface the reading on
// the debug API.
func (s *Scheduler) checkBattery() {
	if s.battery == nil {
		return
	}
	level, err := s.battery.LevelPercent()
	if err != nil {
		s.log.Debug("battery level read failed", zap.Error(err))
		return
	}
	charging, err := s.battery.IsCharging()
	if err != nil {
		s.log.Debug("charging state read failed", zap.Error(err))
		return
	}
	s.log.Debug("battery", zap.Int("level", level), zap.Bool("charging", charging))
}

// PendingUIDs implements statusapi.State.
func (s *Scheduler) PendingUIDs() map[int]int { return s.pending.Snapshot() }

// NaughtyUIDs implements statusapi.State.
func (s *Scheduler) NaughtyUIDs() []int { return s.audit.Peek() }

// TimelineSnapshot implements statusapi.State.
func (s *Scheduler) TimelineSnapshot() map[int]uint32 { return s.timeline.Snapshot() }

// WorkMode implements statusapi.State.
func (s *Scheduler) WorkMode() string { return s.backend.Mode.String() }
