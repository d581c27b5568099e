package diskmanager

import (
	"context"
	"fmt"
	"os"
)

// Mounter wraps the privileged mount operations used by the loopback writer.
type Mounter interface {
	// Mount attaches image at target as a loop device.
	Mount(ctx context.Context, image, target string) error

	// Unmount detaches whatever is mounted at target.
	Unmount(ctx context.Context, target string) error

	// IsMountpoint reports whether path is currently an active mountpoint.
	IsMountpoint(path string) (bool, error)

	// Sync flushes filesystem buffers.
	Sync(ctx context.Context) error
}

// SystemMounter shells out to mount(8) and umount(8), optionally through sudo.
type SystemMounter struct {
	runner  CommandRunner
	useSudo bool
	euid    int
}

// NewSystemMounter creates a Mounter that runs the host utilities.
func NewSystemMounter(runner CommandRunner, useSudo bool) *SystemMounter {
	return &SystemMounter{
		runner:  runner,
		useSudo: useSudo,
		euid:    os.Geteuid(),
	}
}

// elevated reports whether commands are prefixed with sudo.
func (m *SystemMounter) elevated() bool {
	return m.useSudo && m.euid != 0
}

func (m *SystemMounter) run(ctx context.Context, name string, args ...string) error {
	if m.elevated() {
		args = append([]string{name}, args...)
		name = "sudo"
	}
	_, err := m.runner.Run(ctx, name, args...)
	return err
}

// mountOptions returns the -o value for the loop mount. When mounting through
// sudo the FAT tree is handed to the invoking user so it can be written
// without further privilege.
func (m *SystemMounter) mountOptions() string {
	if !m.elevated() {
		return "loop"
	}
	return fmt.Sprintf("loop,uid=%d,gid=%d", os.Getuid(), os.Getgid())
}

func (m *SystemMounter) Mount(ctx context.Context, image, target string) error {
	return m.run(ctx, "mount", "-o", m.mountOptions(), image, target)
}

func (m *SystemMounter) Unmount(ctx context.Context, target string) error {
	return m.run(ctx, "umount", target)
}

func (m *SystemMounter) IsMountpoint(path string) (bool, error) {
	return isMountpoint(path)
}

func (m *SystemMounter) Sync(ctx context.Context) error {
	return syncFilesystems()
}
