//go:build linux

package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFileLockerExcludes(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	locker := NewFileLocker()

	held, err := locker.AcquireLock(context.Background(), dir)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	_, err = locker.AcquireLock(ctx, dir)
	require.ErrorIs(t, err, ErrTimeout)

	require.NoError(t, held.Release())
	require.NoError(t, held.Release())

	again, err := locker.AcquireLock(context.Background(), dir)
	require.NoError(t, err)
	require.NoError(t, again.Release())
}

func TestFileLockerCancelled(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	locker := NewFileLocker()

	held, err := locker.AcquireLock(context.Background(), dir)
	require.NoError(t, err)
	defer held.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = locker.AcquireLock(ctx, dir)
	require.ErrorIs(t, err, context.Canceled)
}

func TestFileLockerMissingPath(t *testing.T) {
	t.Parallel()

	_, err := NewFileLocker().AcquireLock(context.Background(), t.TempDir()+"/missing")
	require.Error(t, err)
}

func TestNoOpLocker(t *testing.T) {
	t.Parallel()

	l, err := NewNoOpLocker().AcquireLock(context.Background(), "/nonexistent")
	require.NoError(t, err)
	require.NoError(t, l.Release())
}
