// Package reslimit implements the resource-limit collaborator: caps on
// memory, CPU and process count applied per application via the cgroup
// v2 unified hierarchy. The supervisor is assumed to run with a
// writable cgroup tree.
package reslimit

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// DefaultRoot is the cgroup v2 mount point.
const DefaultRoot = "/sys/fs/cgroup"

// Limits is an application's configured resource caps. A zero field
// means "no limit" for that resource.
type Limits struct {
	MemoryMaxBytes int64
	CPUPercent     int // 100 == one full core
	PidsMax        int
}

// ResourceLimiter is the collaborator contract.
type ResourceLimiter interface {
	// Apply creates (if needed) the app's cgroup and writes its limits.
	// Processes are moved into the cgroup separately, via AddProcess.
	Apply(appName string, limits Limits) error
	// AddProcess moves pid into appName's cgroup.
	AddProcess(appName string, pid int) error
	// Clear removes the app's cgroup. It is an error to call Clear while
	// the cgroup still has member processes.
	Clear(appName string) error
}

// CgroupLimiter applies limits via the cgroup v2 unified hierarchy,
// with one child cgroup per application under Root/Group.
type CgroupLimiter struct {
	Root  string
	Group string // parent directory under Root, e.g. "apcore"
}

// New returns a CgroupLimiter rooted at the default cgroup v2 mount,
// grouping application cgroups under group.
func New(group string) *CgroupLimiter {
	return &CgroupLimiter{Root: DefaultRoot, Group: group}
}

func (l *CgroupLimiter) appPath(appName string) string {
	return filepath.Join(l.Root, l.Group, appName)
}

func (l *CgroupLimiter) Apply(appName string, limits Limits) error {
	path := l.appPath(appName)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("reslimit: mkdir %s: %w", path, err)
	}

	if limits.MemoryMaxBytes > 0 {
		if err := writeControl(path, "memory.max", strconv.FormatInt(limits.MemoryMaxBytes, 10)); err != nil {
			return err
		}
	}
	if limits.CPUPercent > 0 {
		const period = 100000
		quota := limits.CPUPercent * period / 100
		if err := writeControl(path, "cpu.max", fmt.Sprintf("%d %d", quota, period)); err != nil {
			return err
		}
	}
	if limits.PidsMax > 0 {
		if err := writeControl(path, "pids.max", strconv.Itoa(limits.PidsMax)); err != nil {
			return err
		}
	}
	return nil
}

func (l *CgroupLimiter) AddProcess(appName string, pid int) error {
	return writeControl(l.appPath(appName), "cgroup.procs", strconv.Itoa(pid))
}

func (l *CgroupLimiter) Clear(appName string) error {
	if err := os.Remove(l.appPath(appName)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reslimit: remove cgroup: %w", err)
	}
	return nil
}

func writeControl(cgroupPath, file, value string) error {
	full := filepath.Join(cgroupPath, file)
	if err := os.WriteFile(full, []byte(value), 0o644); err != nil {
		return fmt.Errorf("reslimit: write %s: %w", full, err)
	}
	return nil
}
