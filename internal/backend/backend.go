// Package backend probes, mounts, and selects the kernel freezer mechanism
// this device actually supports, then exposes the chosen WorkMode's cgroup
// paths to the executor.
package backend

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// WorkMode identifies which kernel freezing mechanism the executor drives.
// FREEZERD_WORK_MODE overrides name a mode by its String() value, not by its
// numeric value.
type WorkMode int

const (
	GlobalSigstop WorkMode = iota
	V1
	V1St
	V2Uid
	V2Frozen
)

func (m WorkMode) String() string {
	switch m {
	case GlobalSigstop:
		return "global_sigstop"
	case V1:
		return "v1"
	case V1St:
		return "v1_st"
	case V2Uid:
		return "v2uid"
	case V2Frozen:
		return "v2frozen"
	default:
		return "unknown"
	}
}

// IsV1 reports whether mode drives the v1 cgroup.procs + freezer.state path.
func (m WorkMode) IsV1() bool { return m == V1 || m == V1St }

const (
	cgroupV2FrozenCheckPath   = "/sys/fs/cgroup/frozen/cgroup.freeze"
	cgroupV2UnfrozenCheckPath = "/sys/fs/cgroup/unfrozen/cgroup.freeze"
	cgroupV2UidCheckPath      = "/sys/fs/cgroup/uid_0/cgroup.freeze"

	cgroupV2FrozenProcs   = "/sys/fs/cgroup/frozen/cgroup.procs"
	cgroupV2UnfrozenProcs = "/sys/fs/cgroup/unfrozen/cgroup.procs"

	v1Root          = "/dev/jark_freezer"
	v1FrozenDir     = v1Root + "/frozen"
	v1UnfrozenDir   = v1Root + "/unfrozen"
	v1FrozenProcs   = v1FrozenDir + "/cgroup.procs"
	v1UnfrozenProcs = v1UnfrozenDir + "/cgroup.procs"
)

// CgroupV2UidPidPath returns the per-uid/pid v2 freeze control file. Writing
// it directly, rather than through uid_<u>/cgroup.freeze, is what lets the
// process be thawed again afterward.
func CgroupV2UidPidPath(uid, pid int) string {
	return fmt.Sprintf("/sys/fs/cgroup/uid_%d/pid_%d/cgroup.freeze", uid, pid)
}

// Paths is the set of cgroup files the executor writes to for a selected
// mode. Fields unused by a given mode are left zero.
type Paths struct {
	FrozenProcs   string
	UnfrozenProcs string
}

func pathsFor(mode WorkMode) Paths {
	if mode.IsV1() {
		return Paths{FrozenProcs: v1FrozenProcs, UnfrozenProcs: v1UnfrozenProcs}
	}
	return Paths{FrozenProcs: cgroupV2FrozenProcs, UnfrozenProcs: cgroupV2UnfrozenProcs}
}

// Backend owns the selected WorkMode and the filesystem paths that go with
// it.
type Backend struct {
	log   *zap.Logger
	Mode  WorkMode
	Paths Paths
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0644)
}

// supportsV2Frozen probes, and if absent tries once to create, the
// frozen/unfrozen v2 cgroup pair.
func supportsV2Frozen(log *zap.Logger) bool {
	if exists(cgroupV2FrozenCheckPath) && exists(cgroupV2UnfrozenCheckPath) {
		return true
	}

	for dir, state := range map[string]string{
		filepath.Dir(cgroupV2FrozenCheckPath):   "1",
		filepath.Dir(cgroupV2UnfrozenCheckPath): "0",
	} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Debug("mkdir v2 cgroup failed", zap.String("dir", dir), zap.Error(err))
			return false
		}
		if err := writeFile(filepath.Join(dir, "cgroup.freeze"), state); err != nil {
			log.Debug("write cgroup.freeze failed", zap.String("dir", dir), zap.Error(err))
			return false
		}
	}

	return exists(cgroupV2FrozenCheckPath) && exists(cgroupV2UnfrozenCheckPath)
}

func supportsV2Uid() bool {
	return exists(cgroupV2UidCheckPath)
}

// mountV1 sets up the legacy cgroup v1 freezer hierarchy under
// /dev/jark_freezer. Tolerates a missing freezer.killable knob on older
// kernels; the mount only fails if cgroup.procs is missing for either leaf
// afterward.
func mountV1(log *zap.Logger) bool {
	if err := os.MkdirAll(v1Root, 0755); err != nil {
		log.Debug("mkdir v1 root failed", zap.Error(err))
		return false
	}

	// best-effort mount: an already-mounted freezer hierarchy is fine.
	_ = mountCgroupV1Freezer(v1Root)

	if err := os.MkdirAll(v1FrozenDir, 0755); err != nil {
		log.Debug("mkdir v1 frozen failed", zap.Error(err))
		return false
	}
	if err := os.MkdirAll(v1UnfrozenDir, 0755); err != nil {
		log.Debug("mkdir v1 unfrozen failed", zap.Error(err))
		return false
	}

	if err := writeFile(filepath.Join(v1FrozenDir, "freezer.state"), "FROZEN"); err != nil {
		log.Debug("write frozen freezer.state failed", zap.Error(err))
		return false
	}
	if err := writeFile(filepath.Join(v1UnfrozenDir, "freezer.state"), "THAWED"); err != nil {
		log.Debug("write unfrozen freezer.state failed", zap.Error(err))
		return false
	}

	// killable lets SIGKILL reach a frozen task; optional, not every kernel has it.
	if err := writeFile(filepath.Join(v1FrozenDir, "freezer.killable"), "1"); err != nil {
		log.Debug("freezer.killable unsupported", zap.Error(err))
	}

	return exists(v1FrozenProcs) && exists(v1UnfrozenProcs)
}

// Probe mounts and selects a WorkMode. When override is non-empty it is
// tried first (matching one of WorkMode.String()'s values); on failure
// Probe falls through to the automatic priority chain: V2Frozen, then
// V2Uid, then GlobalSigstop. V1/V1St are never auto-selected, since some
// devices cannot reclaim memory properly under v1 — they must be requested
// explicitly via override.
func Probe(log *zap.Logger, override string) *Backend {
	log = log.Named("backend")

	// both v2 probes run up front (the v2 frozen probe may create its cgroup
	// pair); their results feed the explicit-override path and the
	// automatic chain below.
	v2Frozen := supportsV2Frozen(log)
	v2Uid := supportsV2Uid()

	if override != "" {
		if mode, ok := selectOverride(log, override, v2Frozen, v2Uid); ok {
			log.Info("work mode selected", zap.String("mode", mode.String()), zap.Bool("override", true))
			return &Backend{log: log, Mode: mode, Paths: pathsFor(mode)}
		}
		log.Warn("requested work mode unsupported, falling back to automatic selection", zap.String("requested", override))
	}

	var mode WorkMode
	switch {
	case v2Frozen:
		mode = V2Frozen
	case v2Uid:
		mode = V2Uid
	default:
		mode = GlobalSigstop
	}

	log.Info("work mode selected", zap.String("mode", mode.String()), zap.Bool("override", false))
	return &Backend{log: log, Mode: mode, Paths: pathsFor(mode)}
}

func selectOverride(log *zap.Logger, override string, v2Frozen, v2Uid bool) (WorkMode, bool) {
	switch override {
	case GlobalSigstop.String():
		return GlobalSigstop, true
	case V1.String():
		return V1, mountV1(log)
	case V1St.String():
		return V1St, mountV1(log)
	case V2Uid.String():
		return V2Uid, v2Uid
	case V2Frozen.String():
		return V2Frozen, v2Frozen
	default:
		return 0, false
	}
}
