//go:build linux

package backend

import "golang.org/x/sys/unix"

// mountCgroupV1Freezer mounts a standalone cgroup v1 hierarchy with only the
// freezer controller at dir. Returns nil if a freezer cgroup is already
// mounted there.
func mountCgroupV1Freezer(dir string) error {
	return unix.Mount("cgroup", dir, "cgroup", 0, "freezer")
}
