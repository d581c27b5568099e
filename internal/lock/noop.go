package lock

import "context"

// NoOpLocker never blocks. Used with --no-lock and on platforms without flock.
type NoOpLocker struct{}

func NewNoOpLocker() *NoOpLocker {
	return &NoOpLocker{}
}

func (l *NoOpLocker) AcquireLock(ctx context.Context, path string) (Lock, error) {
	return &noopLock{}, nil
}

type noopLock struct{}

func (l *noopLock) Release() error {
	return nil
}
