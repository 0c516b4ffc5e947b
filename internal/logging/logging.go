// Package logging builds freezerd's structured logger and keeps a bounded
// tail of recent lines for the debug API.
package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps a *zap.Logger with access to the in-memory line ring backing
// the out-of-scope "logger with line buffer" external collaborator.
type Logger struct {
	*zap.Logger
	ring *ring
}

// lineWriter adapts the ring buffer to zapcore.WriteSyncer.
type lineWriter struct{ r *ring }

func (w lineWriter) Write(p []byte) (int, error) {
	w.r.append(string(p))
	return len(p), nil
}

func (w lineWriter) Sync() error { return nil }

// New builds the daemon logger at the given zap level name ("debug", "info",
// "warn", "error"). It mirrors the teacher's main.go encoder tweaks
// (no timestamp key, colored level, no caller/stacktrace) and tees a second
// core into the line ring.
func New(level string) (*Logger, error) {
	lvl := zapcore.InfoLevel
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.TimeKey = ""
	encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder

	consoleCore := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.Lock(zapcore.AddSync(os.Stdout)),
		lvl,
	)

	r := &ring{}
	ringEncCfg := zap.NewProductionEncoderConfig()
	ringEncCfg.TimeKey = "ts"
	ringEncCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	ringCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(ringEncCfg),
		lineWriter{r: r},
		lvl,
	)

	core := zapcore.NewTee(consoleCore, ringCore)
	l := zap.New(core, zap.AddCallerSkip(0))

	return &Logger{Logger: l, ring: r}, nil
}

// RecentLines returns up to n of the most recently logged lines, newest
// first.
func (l *Logger) RecentLines(n int) []string {
	return l.ring.lines(n)
}
