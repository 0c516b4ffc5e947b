// Package config loads freezerd's tunables from the process environment.
//
// There is no config-file format here on purpose: the teacher project reads
// ad hoc environment variables in main() rather than pulling in a config-file
// library, and a rooted-device daemon started from init.rc is handed its
// configuration the same way.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// WakeupDisabledMinutes is the sentinel wakeup_timeout_min value that
// disables timeline insertion entirely.
const WakeupDisabledMinutes = 120

// ForegroundSourceKind selects which Foreground Source provider to use.
type ForegroundSourceKind string

const (
	ForegroundSourceAuto         ForegroundSourceKind = "auto"
	ForegroundSourceActivityStck ForegroundSourceKind = "activity_stack"
	ForegroundSourceActivityLRU  ForegroundSourceKind = "activity_lru"
	ForegroundSourceSocket       ForegroundSourceKind = "socket"
)

// RegistryBackendKind selects the ManagedApp registry implementation.
type RegistryBackendKind string

const (
	RegistryBackendMemory RegistryBackendKind = "memory"
	RegistryBackendRedis  RegistryBackendKind = "redis"
)

// Config holds every tunable named by the spec plus the ambient knobs added
// for logging, the debug API, and the registry backend.
type Config struct {
	FreezeTimeout     time.Duration
	TerminateTimeout  time.Duration
	WakeupTimeoutMin  int
	RefreezeTimeout   time.Duration
	WorkModeOverride  string // "", "global_sigstop", "v1", "v1_st", "v2uid", "v2frozen"
	ForegroundSource  ForegroundSourceKind
	HookSocketPath    string
	DebugAddr         string
	DebugCORSDev      bool
	RegistryBackend   RegistryBackendKind
	RedisAddr         string
	LogLevel          string
}

// Load reads FREEZERD_* environment variables, falling back to defaults
// matching the scenarios in spec.md §8.
func Load() (*Config, error) {
	c := &Config{
		FreezeTimeout:    15 * time.Second,
		TerminateTimeout: 15 * time.Second,
		WakeupTimeoutMin: 30,
		RefreezeTimeout:  60 * time.Second,
		ForegroundSource: ForegroundSourceAuto,
		HookSocketPath:   "/dev/socket/freezeit_hook",
		DebugAddr:        "127.0.0.1:7077",
		RegistryBackend:  RegistryBackendMemory,
		RedisAddr:        "localhost:6379",
		LogLevel:         "info",
	}

	if v, ok := os.LookupEnv("FREEZERD_FREEZE_TIMEOUT_SEC"); ok {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("FREEZERD_FREEZE_TIMEOUT_SEC: %w", err)
		}
		c.FreezeTimeout = time.Duration(secs) * time.Second
	}

	if v, ok := os.LookupEnv("FREEZERD_TERMINATE_TIMEOUT_SEC"); ok {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("FREEZERD_TERMINATE_TIMEOUT_SEC: %w", err)
		}
		c.TerminateTimeout = time.Duration(secs) * time.Second
	}

	if v, ok := os.LookupEnv("FREEZERD_WAKEUP_TIMEOUT_MIN"); ok {
		min, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("FREEZERD_WAKEUP_TIMEOUT_MIN: %w", err)
		}
		c.WakeupTimeoutMin = min
	}

	if v, ok := os.LookupEnv("FREEZERD_REFREEZE_TIMEOUT_SEC"); ok {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("FREEZERD_REFREEZE_TIMEOUT_SEC: %w", err)
		}
		c.RefreezeTimeout = time.Duration(secs) * time.Second
	}

	if v, ok := os.LookupEnv("FREEZERD_WORK_MODE"); ok {
		c.WorkModeOverride = strings.ToLower(v)
	}

	if v, ok := os.LookupEnv("FREEZERD_FOREGROUND_SOURCE"); ok {
		c.ForegroundSource = ForegroundSourceKind(strings.ToLower(v))
	}

	if v, ok := os.LookupEnv("FREEZERD_HOOK_SOCKET_PATH"); ok {
		c.HookSocketPath = v
	}

	if v, ok := os.LookupEnv("FREEZERD_DEBUG_ADDR"); ok {
		c.DebugAddr = v
	}

	c.DebugCORSDev = os.Getenv("FREEZERD_DEBUG_CORS_DEV") == "1"

	if v, ok := os.LookupEnv("FREEZERD_REGISTRY_BACKEND"); ok {
		c.RegistryBackend = RegistryBackendKind(strings.ToLower(v))
	}

	if v, ok := os.LookupEnv("FREEZERD_REDIS_ADDR"); ok {
		c.RedisAddr = v
	}

	if v, ok := os.LookupEnv("FREEZERD_LOG_LEVEL"); ok {
		c.LogLevel = strings.ToLower(v)
	}

	return c, nil
}

// WakeupDisabled reports whether the configured wakeup timeout is the
// sentinel value that disables timeline insertion.
func (c *Config) WakeupDisabled() bool {
	return c.WakeupTimeoutMin == WakeupDisabledMinutes
}
