package diskmanager

import (
	"errors"
	"strings"
	"syscall"
)

var (
	ErrSourceNotFound   = errors.New("file doesn't exist")
	ErrImageNotFound    = errors.New("disk image doesn't exist")
	ErrMountUnavailable = errors.New("loop mount unavailable")
	ErrMountWrite       = errors.New("writing through loop mount failed")
	ErrOfflineWrite     = errors.New("offline FAT write failed")
	ErrVerifyFailed     = errors.New("verification failed")
	ErrDiskFull         = errors.New("disk full")
	ErrNotMounted       = errors.New("filesystem not mounted")
)

// isOutOfSpaceError reports whether err (or a tool's output) says the
// filesystem ran out of space.
func isOutOfSpaceError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.ENOSPC) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no space left on device") || strings.Contains(msg, "disk full")
}
