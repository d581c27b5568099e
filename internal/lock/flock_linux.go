//go:build linux

package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// FileLocker takes an exclusive flock(2) on path. The path may be a directory,
// so locking an existing parent directory leaves nothing behind on disk.
type FileLocker struct{}

// NewFileLocker returns the platform locker.
func NewFileLocker() Locker {
	return &FileLocker{}
}

func (l *FileLocker) AcquireLock(ctx context.Context, path string) (Lock, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening lock target %s: %w", path, err)
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			return &fileLock{f: f}, nil
		}
		if !errors.Is(err, unix.EWOULDBLOCK) && !errors.Is(err, unix.EINTR) {
			f.Close()
			return nil, fmt.Errorf("locking %s: %w", path, err)
		}

		select {
		case <-ctx.Done():
			f.Close()
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: %s", ErrTimeout, path)
			}
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

type fileLock struct {
	f *os.File
}

func (l *fileLock) Release() error {
	if l.f == nil {
		return nil
	}
	defer func() { l.f = nil }()

	if err := unix.Flock(int(l.f.Fd()), unix.LOCK_UN); err != nil {
		l.f.Close()
		return fmt.Errorf("unlocking %s: %w", l.f.Name(), err)
	}
	return l.f.Close()
}
