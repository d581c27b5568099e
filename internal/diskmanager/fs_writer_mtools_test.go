package diskmanager

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMtoolsWriterCommands(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	w := NewMtoolsFilesystemWriter("disk.img", runner)
	ctx := context.Background()

	require.Equal(t, "mtools", w.Name())
	require.NoError(t, w.Begin(ctx))
	require.NoError(t, w.Mkdir(ctx, "/usr/sbin"))
	require.NoError(t, w.WriteFile(ctx, "usr/sbin/app.bin", "/tmp/app.bin"))
	require.NoError(t, w.End(ctx))

	require.Equal(t, []string{
		"mmd -i disk.img ::/usr",
		"mmd -i disk.img ::/usr/sbin",
		"mcopy -o -i disk.img /tmp/app.bin ::/usr/sbin/app.bin",
	}, runner.commandLines())
}

func TestMtoolsWriterIgnoresExistingDirectory(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{failures: map[string]error{
		"mmd": errors.New(`Directory "sbin" already exists`),
	}}
	w := NewMtoolsFilesystemWriter("disk.img", runner)

	require.NoError(t, w.Mkdir(context.Background(), "/sbin"))
}

func TestMtoolsWriterCopyFailure(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{failures: map[string]error{
		"mcopy": errors.New("exit status 1"),
	}}
	w := NewMtoolsFilesystemWriter("disk.img", runner)

	err := w.WriteFile(context.Background(), "/sbin/app.bin", "app.bin")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrDiskFull)
}

func TestMtoolsWriterDiskFull(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{
		failures: map[string]error{"mcopy": errors.New("exit status 1")},
		output:   map[string][]byte{"mcopy": []byte("Disk full\n")},
	}
	w := NewMtoolsFilesystemWriter("disk.img", runner)

	err := w.WriteFile(context.Background(), "/sbin/app.bin", "app.bin")
	require.ErrorIs(t, err, ErrDiskFull)
}

func TestMtoolsWriterCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := NewMtoolsFilesystemWriter("disk.img", &fakeRunner{})
	require.ErrorIs(t, w.Mkdir(ctx, "/sbin"), context.Canceled)
}
