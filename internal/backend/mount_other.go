//go:build !linux

package backend

import "errors"

func mountCgroupV1Freezer(dir string) error {
	return errors.New("backend: cgroup v1 freezer mount is linux-only")
}
