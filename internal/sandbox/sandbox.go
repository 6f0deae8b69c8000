// Package sandbox implements the sandbox collaborator: assembling and
// tearing down the chroot-style filesystem a sandboxed application
// runs inside.
package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
)

// MaxPathLen bounds the sandbox path length.
const MaxPathLen = 256

// ErrPathTooLong is returned by GetPath when the computed path would
// exceed MaxPathLen.
var ErrPathTooLong = fmt.Errorf("sandbox: path exceeds maximum length")

// AppSpec is the subset of an Application's identity the sandbox
// collaborator needs. It is a plain value type so this package never
// imports the supervisor package.
type AppSpec struct {
	Name              string
	UID               uint32
	GID               uint32
	SupplementaryGIDs []uint32
	InstallPath       string
}

// Sandbox is the collaborator contract.
type Sandbox interface {
	// GetPath returns the sandbox root for appName without creating it.
	GetPath(appName string) (string, error)
	// Setup creates the sandbox root and its standard skeleton
	// directories, owned by app's resolved identity.
	Setup(app AppSpec) error
	// Remove tears down the sandbox root entirely.
	Remove(app AppSpec) error
}

// FSSandbox builds sandboxes as plain directory trees under Root, one
// subdirectory per application. It performs no kernel chroot/mount
// operations. The supervisor uses the path this package hands back as
// the working directory of a sandboxed app's processes; the launcher
// does not chroot them into it.
type FSSandbox struct {
	Root string
}

// New returns an FSSandbox rooted at root (e.g. "/opt/apcore/sandboxes").
func New(root string) *FSSandbox {
	return &FSSandbox{Root: root}
}

func (s *FSSandbox) GetPath(appName string) (string, error) {
	path := filepath.Join(s.Root, appName)
	if len(path) > MaxPathLen {
		return "", ErrPathTooLong
	}
	return path, nil
}

// skeletonDirs are the standard directories every sandboxed app gets,
// mirroring the minimal set a chrooted process needs to run: somewhere
// to read shared libraries, somewhere scratch, somewhere for its own
// binaries.
var skeletonDirs = []string{"bin", "lib", "tmp", "home"}

func (s *FSSandbox) Setup(app AppSpec) error {
	path, err := s.GetPath(app.Name)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("sandbox: mkdir %s: %w", path, err)
	}

	for _, dir := range skeletonDirs {
		full := filepath.Join(path, dir)
		if err := os.MkdirAll(full, 0o755); err != nil {
			return fmt.Errorf("sandbox: mkdir %s: %w", full, err)
		}
		if err := os.Chown(full, int(app.UID), int(app.GID)); err != nil && os.IsPermission(err) {
			// Chown needs privilege; a permission error on a dev
			// machine is survivable, the sandbox is just unowned.
			continue
		}
	}

	return nil
}

func (s *FSSandbox) Remove(app AppSpec) error {
	path, err := s.GetPath(app.Name)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("sandbox: remove %s: %w", path, err)
	}
	return nil
}
