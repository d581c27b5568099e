package diskmanager

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	diskfs "github.com/diskfs/go-diskfs"
	"github.com/diskfs/go-diskfs/disk"
	"github.com/diskfs/go-diskfs/filesystem"

	"github.com/jgarman/disk-updater/internal/lock"
)

// fakeMounter pretends to loop-mount an image by handing out the scratch
// directory as-is. On Unmount it snapshots what was written there, which
// stands in for the contents of the mounted image.
type fakeMounter struct {
	mu sync.Mutex

	mountErr     error
	reportActive bool

	mounted      bool
	mountCalls   int
	unmountCalls int
	syncCalls    int

	files map[string][]byte
}

func newFakeMounter(active bool, mountErr error) *fakeMounter {
	return &fakeMounter{
		reportActive: active,
		mountErr:     mountErr,
		files:        make(map[string][]byte),
	}
}

func (m *fakeMounter) Mount(ctx context.Context, image, target string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.mountCalls++
	if m.mountErr != nil {
		return m.mountErr
	}
	m.mounted = m.reportActive
	return nil
}

func (m *fakeMounter) Unmount(ctx context.Context, target string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.unmountCalls++
	if !m.mounted {
		return errors.New("umount: not mounted")
	}

	err := filepath.WalkDir(target, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(target, p)
		if err != nil {
			return err
		}
		m.files["/"+filepath.ToSlash(rel)] = data
		return nil
	})
	if err != nil {
		return err
	}

	m.mounted = false
	return nil
}

func (m *fakeMounter) IsMountpoint(path string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.mounted, nil
}

func (m *fakeMounter) Sync(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.syncCalls++
	return nil
}

// fakeRunner records commands and fails those listed in failures.
type fakeRunner struct {
	calls    [][]string
	failures map[string]error
	output   map[string][]byte
}

func (r *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	r.calls = append(r.calls, append([]string{name}, args...))
	if err, ok := r.failures[name]; ok {
		return r.output[name], err
	}
	return r.output[name], nil
}

func (r *fakeRunner) commandLines() []string {
	lines := make([]string, 0, len(r.calls))
	for _, c := range r.calls {
		lines = append(lines, strings.Join(c, " "))
	}
	return lines
}

// timeoutLocker always fails to acquire.
type timeoutLocker struct{}

func (timeoutLocker) AcquireLock(ctx context.Context, path string) (lock.Lock, error) {
	return nil, lock.ErrTimeout
}

func noMcopy(string) (string, error) {
	return "", errors.New("not found")
}

// createDiskImage creates a FAT32 disk image of sizeMB megabytes.
func createDiskImage(t *testing.T, dir string, sizeMB int64) string {
	t.Helper()

	diskPath := filepath.Join(dir, "disk.img")
	mydisk, err := diskfs.Create(diskPath, sizeMB*1024*1024, diskfs.Raw, diskfs.SectorSizeDefault)
	if err != nil {
		t.Fatalf("Failed to create disk: %v", err)
	}

	_, err = mydisk.CreateFilesystem(disk.FilesystemSpec{
		Partition:   0,
		FSType:      filesystem.TypeFat32,
		VolumeLabel: "TESTDISK",
	})
	if err != nil {
		t.Fatalf("Failed to create filesystem: %v", err)
	}

	return diskPath
}

// readImageFile reads filePath from the image with go-diskfs.
func readImageFile(t *testing.T, diskPath, filePath string) []byte {
	t.Helper()

	fsys, err := openFilesystem(diskPath, diskfs.ReadOnly)
	if err != nil {
		t.Fatalf("Failed to open image: %v", err)
	}

	file, err := fsys.OpenFile(filePath, os.O_RDONLY)
	if err != nil {
		t.Fatalf("Failed to open %s in image: %v", filePath, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		t.Fatalf("Failed to read %s: %v", filePath, err)
	}
	return data
}

// countImageEntries counts entries of dir inside the image named like name.
func countImageEntries(t *testing.T, diskPath, dir, name string) int {
	t.Helper()

	fsys, err := openFilesystem(diskPath, diskfs.ReadOnly)
	if err != nil {
		t.Fatalf("Failed to open image: %v", err)
	}

	entries, err := fsys.ReadDir(dir)
	if err != nil {
		t.Fatalf("Failed to list %s: %v", dir, err)
	}

	count := 0
	for _, e := range entries {
		if strings.EqualFold(e.Name(), name) {
			count++
		}
	}
	return count
}

// writeSource creates a host file with content and returns its path.
func writeSource(t *testing.T, dir, name string, content []byte) string {
	t.Helper()

	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, content, 0o755); err != nil {
		t.Fatalf("Failed to write source file: %v", err)
	}
	return p
}
