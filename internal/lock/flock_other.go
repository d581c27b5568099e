//go:build !linux

package lock

// NewFileLocker returns a NoOpLocker where flock-based locking is not wired.
func NewFileLocker() Locker {
	return NewNoOpLocker()
}
