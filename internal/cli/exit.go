package cli

import (
	"errors"

	"github.com/jgarman/disk-updater/internal/diskmanager"
	"github.com/jgarman/disk-updater/internal/lock"
)

// ErrUsage marks invocation errors: wrong argument count, unknown flags.
var ErrUsage = errors.New("usage error")

// Process exit codes, one per error kind.
const (
	ExitOK             = 0
	ExitFailure        = 1
	ExitUsage          = 2
	ExitSourceNotFound = 3
	ExitImageNotFound  = 4
	ExitOfflineWrite   = 5
	ExitMountWrite     = 6
	ExitVerifyFailed   = 7
	ExitLockTimeout    = 8
)

// ExitCode maps an error returned by a command to the process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrUsage):
		return ExitUsage
	case errors.Is(err, diskmanager.ErrSourceNotFound):
		return ExitSourceNotFound
	case errors.Is(err, diskmanager.ErrImageNotFound):
		return ExitImageNotFound
	case errors.Is(err, diskmanager.ErrOfflineWrite):
		return ExitOfflineWrite
	case errors.Is(err, diskmanager.ErrMountWrite):
		return ExitMountWrite
	case errors.Is(err, diskmanager.ErrVerifyFailed):
		return ExitVerifyFailed
	case errors.Is(err, lock.ErrTimeout):
		return ExitLockTimeout
	default:
		return ExitFailure
	}
}
