package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, contents string) string {
	t.Helper()

	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(contents), 0o644))

	return p
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)

	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Fatalf("unexpected config: diff (-want +got):\n%s", diff)
	}
}

func TestLoadFormats(t *testing.T) {
	t.Parallel()

	want := Default()
	want.ImagePath = "/tmp/guest.img"
	want.TargetDir = "/bin"
	want.OfflineBackend = BackendDiskfs
	want.Verify = true
	want.LockTimeout = Duration(5 * time.Second)
	want.Server.Port = 9090

	for _, tt := range []struct {
		name     string
		contents string
	}{
		{
			name: "settings.yaml",
			contents: `image_path: /tmp/guest.img
target_dir: /bin/
offline_backend: diskfs
verify: true
lock_timeout: 5s
server:
  port: 9090
`,
		},
		{
			name: "settings.toml",
			contents: `image_path = "/tmp/guest.img"
target_dir = "/bin"
offline_backend = "diskfs"
verify = true
lock_timeout = "5s"

[server]
port = 9090
`,
		},
		{
			name: "settings.json",
			contents: `{
  "image_path": "/tmp/guest.img",
  "target_dir": "/bin",
  "offline_backend": "diskfs",
  "verify": true,
  "lock_timeout": "5s",
  "server": {"port": 9090}
}`,
		},
	} {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg, err := Load(writeFile(t, tt.name, tt.contents))
			require.NoError(t, err)

			if diff := cmp.Diff(want, cfg); diff != "" {
				t.Fatalf("unexpected config: diff (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoadErrors(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = Load(writeFile(t, "settings.ini", "image_path=x"))
	require.ErrorIs(t, err, errUnknownFormat)

	_, err = Load(writeFile(t, "settings.yaml", "offline_backend: floppy\n"))
	require.ErrorIs(t, err, errUnknownBackend)

	_, err = Load(writeFile(t, "settings.yaml", "target_dir: sbin\n"))
	require.ErrorIs(t, err, errRelativeTargetDir)

	_, err = Load(writeFile(t, "settings.yaml", "lock_timeout: soon\n"))
	require.Error(t, err)
}

func TestValidateNormalizes(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.TargetDir = "/sbin//"
	cfg.OfflineBackend = ""
	cfg.LockTimeout = 0

	require.NoError(t, cfg.Validate())
	require.Equal(t, "/sbin", cfg.TargetDir)
	require.Equal(t, BackendAuto, cfg.OfflineBackend)
	require.Equal(t, DefaultLockTimeout, cfg.LockTimeout.Std())

	cfg.ImagePath = " "
	require.ErrorIs(t, cfg.Validate(), errEmptyImagePath)

	var nilCfg *Config
	require.ErrorIs(t, nilCfg.Validate(), errConfigIsNotSet)
}

func TestSaveWritesLoadableFile(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.ImagePath = "/srv/disk.img"
	cfg.LockTimeout = Duration(90 * time.Second)

	p := filepath.Join(t.TempDir(), "nested", "settings.toml")
	require.NoError(t, cfg.Save(p))

	data, err := os.ReadFile(p)
	require.NoError(t, err)
	require.Contains(t, string(data), `lock_timeout = "1m30s"`)

	loaded, err := Load(p)
	require.NoError(t, err)
	require.Equal(t, "/srv/disk.img", loaded.ImagePath)

	require.ErrorIs(t, cfg.Save(filepath.Join(t.TempDir(), "out.txt")), errUnknownFormat)
}
