// Command freezerd runs the background-app freezer daemon: it probes the
// kernel freezer backend, watches for foreground changes, and drives the
// pending-freeze queue and wakeup timeline described in the core package
// docs under internal/.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jark-labs/freezerd/internal/auditor"
	"github.com/jark-labs/freezerd/internal/backend"
	"github.com/jark-labs/freezerd/internal/config"
	"github.com/jark-labs/freezerd/internal/doze"
	"github.com/jark-labs/freezerd/internal/executor"
	"github.com/jark-labs/freezerd/internal/foreground"
	"github.com/jark-labs/freezerd/internal/logging"
	"github.com/jark-labs/freezerd/internal/procfs"
	"github.com/jark-labs/freezerd/internal/registry"
	"github.com/jark-labs/freezerd/internal/scheduler"
	"github.com/jark-labs/freezerd/internal/statusapi"
	"github.com/jark-labs/freezerd/internal/sysprop"
	"github.com/jark-labs/freezerd/internal/systools"
	"github.com/jark-labs/freezerd/internal/timeline"
	"github.com/jark-labs/freezerd/internal/watcher"
	"github.com/jark-labs/freezerd/pkg/fmtt"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmtt.PrintErrChainDebug(err)
		panic(err)
	}

	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Logger = log.Named("freezerd")

	reg := buildRegistry(log.Logger, cfg)
	scanner := procfs.New(log.Logger)
	be := backend.Probe(log.Logger, cfg.WorkModeOverride)
	tl := timeline.New()
	hook := systools.New(log.Logger, cfg.HookSocketPath)
	exec := executor.New(log.Logger, be, scanner, hook, tl)
	aud := auditor.New(log.Logger, scanner)
	sp := sysprop.New()

	fgSrc := foreground.Select(
		log.Logger,
		cfg.ForegroundSource,
		foreground.NewGated(log.Logger, foreground.NewSocketSource(log.Logger, reg, hook)),
		foreground.NewGated(log.Logger, foreground.NewActivityLRUSource(log.Logger, reg, sp)),
		foreground.NewGated(log.Logger, foreground.NewActivityStackSource(log.Logger, reg)),
	)

	pool := watcher.NewPool(log.Logger)

	sched := scheduler.New(log.Logger, cfg, reg, scanner, be, exec, tl, aud, doze.Noop{}, fgSrc, pool, hook, nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		quirks, err := sp.Get(ctx)
		sdk := 33
		if err == nil {
			sdk = quirks.SDKInt
		} else {
			log.Warn("sysprop read failed, assuming cpuset API >= 33 path", zap.Error(err))
		}
		inputPaths, _ := filepath.Glob("/dev/input/event*")
		if err := pool.Run(ctx, watcher.CpusetPath(sdk), inputPaths); err != nil {
			log.Error("watcher pool exited, restart required", zap.Error(err))
			stop()
		}
	}()

	go sched.Run(ctx)

	srv := &http.Server{
		Addr:    cfg.DebugAddr,
		Handler: statusapi.NewRouter(log.Logger, sched, log, cfg.DebugCORSDev),
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("debug api server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func buildRegistry(log *zap.Logger, cfg *config.Config) registry.Registry {
	if cfg.RegistryBackend != config.RegistryBackendRedis {
		return registry.NewMemory(nil)
	}

	r := registry.NewRedis(cfg.RedisAddr, log)
	if err := r.Refresh(context.Background()); err != nil {
		log.Warn("initial registry refresh failed, starting empty", zap.Error(err))
	}
	return r
}
