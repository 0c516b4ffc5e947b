package watcher

import (
	"context"
	"fmt"

	evdev "github.com/gvalkov/golang-evdev"
	"go.uber.org/zap"
)

// watchInput blocks reading events from the device at path, calling pulse
// on every one, until ctx is cancelled. Setup failure (opening the device
// node) is fatal to the pool per spec.md §7; a later read failure just
// ends this one watcher, leaving the rest of the pool running.
func watchInput(ctx context.Context, log *zap.Logger, path string, pulse func()) error {
	dev, err := evdev.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer dev.File.Close()

	log.Info("watching input device", zap.String("path", path), zap.String("name", dev.Name))

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		dev.File.Close()
		close(done)
	}()

	for {
		if _, err := dev.ReadOne(); err != nil {
			select {
			case <-done:
				return nil
			default:
			}
			log.Warn("input device read failed, watcher exiting", zap.String("path", path), zap.Error(err))
			return nil
		}
		pulse()
	}
}
