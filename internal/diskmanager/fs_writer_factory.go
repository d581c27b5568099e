package diskmanager

import (
	"fmt"
	"os/exec"

	"github.com/jgarman/disk-updater/internal/config"
)

// LookPathFunc finds an executable on PATH.
type LookPathFunc func(file string) (string, error)

// NewOfflineFilesystemWriter creates the offline writer for backend. With
// config.BackendAuto it picks mtools when mcopy is installed and go-diskfs
// otherwise.
func NewOfflineFilesystemWriter(backend, diskPath string, runner CommandRunner, lookPath LookPathFunc) (FilesystemWriter, error) {
	if lookPath == nil {
		lookPath = exec.LookPath
	}

	switch backend {
	case config.BackendMtools:
		return NewMtoolsFilesystemWriter(diskPath, runner), nil
	case config.BackendDiskfs:
		return NewDiskfsFilesystemWriter(diskPath), nil
	case config.BackendAuto, "":
		if _, err := lookPath("mcopy"); err == nil {
			return NewMtoolsFilesystemWriter(diskPath, runner), nil
		}
		return NewDiskfsFilesystemWriter(diskPath), nil
	default:
		return nil, fmt.Errorf("unknown offline backend %q", backend)
	}
}
