package diskmanager

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"

	diskfs "github.com/diskfs/go-diskfs"
	"github.com/diskfs/go-diskfs/filesystem"
)

// DiskfsFilesystemWriter edits the image offline through go-diskfs, for hosts
// without loop devices or mtools.
type DiskfsFilesystemWriter struct {
	diskPath   string
	filesystem filesystem.FileSystem
}

// NewDiskfsFilesystemWriter creates a new go-diskfs based filesystem writer
func NewDiskfsFilesystemWriter(diskPath string) *DiskfsFilesystemWriter {
	return &DiskfsFilesystemWriter{
		diskPath: diskPath,
	}
}

func (w *DiskfsFilesystemWriter) Name() string {
	return "diskfs"
}

// Begin opens the image read-write and loads its FAT filesystem.
func (w *DiskfsFilesystemWriter) Begin(ctx context.Context) error {
	fs, err := openFilesystem(w.diskPath, diskfs.ReadWriteExclusive)
	if err != nil {
		return err
	}
	w.filesystem = fs
	return nil
}

// openFilesystem opens the whole-disk filesystem of an image.
func openFilesystem(diskPath string, mode diskfs.OpenModeOption) (filesystem.FileSystem, error) {
	disk, err := diskfs.Open(diskPath, diskfs.WithOpenMode(mode))
	if err != nil {
		return nil, fmt.Errorf("failed to open disk: %w", err)
	}

	fs, err := disk.GetFilesystem(0)
	if err != nil {
		return nil, fmt.Errorf("failed to get filesystem: %w", err)
	}
	return fs, nil
}

// Mkdir creates dirPath and all of its parents
func (w *DiskfsFilesystemWriter) Mkdir(ctx context.Context, dirPath string) error {
	if w.filesystem == nil {
		return ErrNotMounted
	}

	currentPath := "/"
	for _, part := range splitPath(normalizePath(dirPath)) {
		currentPath = path.Join(currentPath, part)

		// Mkdir on an existing directory is not an error we care about
		if err := w.filesystem.Mkdir(currentPath); err != nil && !os.IsExist(err) {
			if isOutOfSpaceError(err) {
				return ErrDiskFull
			}
			return fmt.Errorf("failed to create directory %s: %w", currentPath, err)
		}
	}

	return nil
}

// splitPath splits a path into its components
func splitPath(p string) []string {
	var parts []string
	for {
		dir, file := path.Split(p)
		if file != "" {
			parts = append([]string{file}, parts...)
		}
		if dir == "" || dir == "/" {
			break
		}
		p = path.Clean(dir)
	}
	return parts
}

// WriteFile writes a file to the filesystem using go-diskfs
func (w *DiskfsFilesystemWriter) WriteFile(ctx context.Context, filePath, sourcePath string) error {
	if w.filesystem == nil {
		return ErrNotMounted
	}

	src, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer src.Close()

	file, err := w.filesystem.OpenFile(normalizePath(filePath), os.O_CREATE|os.O_RDWR|os.O_TRUNC)
	if err != nil {
		if isOutOfSpaceError(err) {
			return ErrDiskFull
		}
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(file, src); err != nil {
		if isOutOfSpaceError(err) {
			return ErrDiskFull
		}
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}

// End drops the filesystem handle; go-diskfs writes through on every call.
func (w *DiskfsFilesystemWriter) End(ctx context.Context) error {
	w.filesystem = nil
	return nil
}
