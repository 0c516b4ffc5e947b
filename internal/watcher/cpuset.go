package watcher

import (
	"context"
	"fmt"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// cpusetPathAPI32 and cpusetPathAPI33 are the two kernel-visible top-app
// cpuset files; which one the scheduler changed to reconfiguring the
// foreground group depends on the device's API level.
const (
	cpusetPathAPI32 = "/dev/cpuset/top-app/tasks"
	cpusetPathAPI33 = "/dev/cpuset/top-app/cgroup.procs"
)

// CpusetPath picks the cpuset file to watch for the given SDK level.
func CpusetPath(sdkInt int) string {
	if sdkInt >= 33 {
		return cpusetPathAPI33
	}
	return cpusetPathAPI32
}

// watchCpuset blocks forwarding any write/create event on path to pulse,
// until ctx is cancelled. It returns an error on setup failure
// (inotify_init or add_watch equivalent), which per spec.md §7 the caller
// treats as fatal, and also when the watcher's event or error channel
// closes.
func watchCpuset(ctx context.Context, log *zap.Logger, path string, pulse func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("inotify init: %w", err)
	}
	defer w.Close()

	if err := w.Add(path); err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}

	log.Info("watching cpuset", zap.String("path", path))

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return fmt.Errorf("cpuset watch channel closed for %s", path)
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
				pulse()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return fmt.Errorf("cpuset watch error channel closed for %s", path)
			}
			log.Warn("cpuset watch error", zap.Error(err))
		}
	}
}
