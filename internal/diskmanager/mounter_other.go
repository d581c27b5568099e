//go:build !linux

package diskmanager

import (
	"context"
	"fmt"
	"runtime"
)

func isMountpoint(path string) (bool, error) {
	return false, nil
}

func syncFilesystems() error {
	return nil
}

// unsupportedMounter fails every mount so the offline writer is always used.
type unsupportedMounter struct{}

func (unsupportedMounter) Mount(ctx context.Context, image, target string) error {
	return fmt.Errorf("loop mounts are not supported on %s", runtime.GOOS)
}

func (unsupportedMounter) Unmount(ctx context.Context, target string) error {
	return nil
}

func (unsupportedMounter) IsMountpoint(path string) (bool, error) {
	return false, nil
}

func (unsupportedMounter) Sync(ctx context.Context) error {
	return nil
}

// newPlatformMounter returns a Mounter that never mounts on non-Linux platforms
func newPlatformMounter(runner CommandRunner, useSudo bool) Mounter {
	return unsupportedMounter{}
}
