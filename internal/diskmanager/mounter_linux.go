//go:build linux

package diskmanager

import (
	"fmt"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// isMountpoint compares the device of path with the device of its parent,
// the same test mountpoint(1) performs.
func isMountpoint(path string) (bool, error) {
	var self, parent unix.Stat_t
	if err := unix.Stat(path, &self); err != nil {
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	if err := unix.Stat(filepath.Join(path, ".."), &parent); err != nil {
		return false, fmt.Errorf("stat parent of %s: %w", path, err)
	}
	if self.Dev != parent.Dev {
		return true, nil
	}
	// "/" is its own parent.
	return self.Ino == parent.Ino, nil
}

func syncFilesystems() error {
	unix.Sync()
	return nil
}

// newPlatformMounter returns a SystemMounter on Linux
func newPlatformMounter(runner CommandRunner, useSudo bool) Mounter {
	return NewSystemMounter(runner, useSudo)
}
