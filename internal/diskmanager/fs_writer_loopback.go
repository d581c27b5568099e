package diskmanager

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/jgarman/disk-updater/internal/logger"
)

// LoopbackFilesystemWriter writes through a loop mount of the image at a
// scratch directory. Begin doubles as the capability probe: it fails with
// ErrMountUnavailable when the image cannot be mounted.
type LoopbackFilesystemWriter struct {
	diskPath string
	mountDir string
	mounter  Mounter
	mounted  bool
}

// NewLoopbackFilesystemWriter creates a new loopback-based filesystem writer
func NewLoopbackFilesystemWriter(diskPath, mountDir string, mounter Mounter) *LoopbackFilesystemWriter {
	return &LoopbackFilesystemWriter{
		diskPath: diskPath,
		mountDir: mountDir,
		mounter:  mounter,
	}
}

func (w *LoopbackFilesystemWriter) Name() string {
	return "loop"
}

// Begin mounts the disk image at the scratch directory and checks that the
// mount is really active. On any failure the scratch directory is cleaned up.
func (w *LoopbackFilesystemWriter) Begin(ctx context.Context) error {
	if err := os.Mkdir(w.mountDir, 0o755); err != nil && !errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("%w: failed to create mount directory: %v", ErrMountUnavailable, err)
	}

	if err := w.mounter.Mount(ctx, w.diskPath, w.mountDir); err != nil {
		w.abandon(ctx)
		return fmt.Errorf("%w: %v", ErrMountUnavailable, err)
	}

	// mount can exit zero without attaching anything, e.g. when no loop
	// devices exist inside a container.
	active, err := w.mounter.IsMountpoint(w.mountDir)
	if err != nil || !active {
		w.abandon(ctx)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMountUnavailable, err)
		}
		return fmt.Errorf("%w: %s is not an active mountpoint", ErrMountUnavailable, w.mountDir)
	}

	w.mounted = true
	return nil
}

// abandon undoes a failed Begin. Unmount failures are expected here since the
// image may never have been mounted.
func (w *LoopbackFilesystemWriter) abandon(ctx context.Context) {
	if err := w.mounter.Unmount(ctx, w.mountDir); err != nil {
		logger.DebugKV(ctx, "Defensive unmount failed", "dir", w.mountDir, "error", err)
	}

	if active, err := w.mounter.IsMountpoint(w.mountDir); err == nil && active {
		logger.WarnKV(ctx, "Scratch directory is still mounted, leaving it in place", "dir", w.mountDir)
		return
	}

	if err := os.RemoveAll(w.mountDir); err != nil {
		logger.WarnKV(ctx, "Failed to remove scratch directory", "dir", w.mountDir, "error", err)
	}
}

func (w *LoopbackFilesystemWriter) hostPath(p string) string {
	return filepath.Join(w.mountDir, filepath.FromSlash(normalizePath(p)))
}

// Mkdir creates dirPath and its parents on the mounted filesystem.
func (w *LoopbackFilesystemWriter) Mkdir(ctx context.Context, dirPath string) error {
	if !w.mounted {
		return ErrNotMounted
	}

	if err := os.MkdirAll(w.hostPath(dirPath), 0o755); err != nil {
		if isOutOfSpaceError(err) {
			return ErrDiskFull
		}
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return nil
}

// WriteFile copies sourcePath onto the mounted filesystem using standard OS operations
func (w *LoopbackFilesystemWriter) WriteFile(ctx context.Context, filePath, sourcePath string) error {
	if !w.mounted {
		return ErrNotMounted
	}

	src, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer src.Close()

	absPath := w.hostPath(filePath)
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		if isOutOfSpaceError(err) {
			return ErrDiskFull
		}
		return fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.OpenFile(absPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o755)
	if err != nil {
		if isOutOfSpaceError(err) {
			return ErrDiskFull
		}
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	// Use a large buffered writer (1MB) for better performance
	bufferedWriter := bufio.NewWriterSize(file, 1024*1024)

	if _, err := io.Copy(bufferedWriter, src); err != nil {
		if isOutOfSpaceError(err) {
			return ErrDiskFull
		}
		return fmt.Errorf("failed to write file: %w", err)
	}

	if err := bufferedWriter.Flush(); err != nil {
		if isOutOfSpaceError(err) {
			return ErrDiskFull
		}
		return fmt.Errorf("failed to flush file: %w", err)
	}

	if err := file.Sync(); err != nil {
		if isOutOfSpaceError(err) {
			return ErrDiskFull
		}
		return fmt.Errorf("failed to sync file: %w", err)
	}

	return nil
}

// End syncs, unmounts, syncs again and removes the scratch directory.
func (w *LoopbackFilesystemWriter) End(ctx context.Context) error {
	if !w.mounted {
		return nil // Already unmounted or never mounted
	}

	if err := w.mounter.Sync(ctx); err != nil {
		return fmt.Errorf("failed to sync before unmount: %w", err)
	}

	if err := w.mounter.Unmount(ctx, w.mountDir); err != nil {
		return fmt.Errorf("failed to unmount: %w", err)
	}
	w.mounted = false

	if err := w.mounter.Sync(ctx); err != nil {
		return fmt.Errorf("failed to sync after unmount: %w", err)
	}

	if err := os.RemoveAll(w.mountDir); err != nil {
		return fmt.Errorf("failed to remove mount directory: %w", err)
	}

	return nil
}
