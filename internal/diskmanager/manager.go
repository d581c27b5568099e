package diskmanager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/opencontainers/go-digest"

	"github.com/jgarman/disk-updater/internal/config"
	"github.com/jgarman/disk-updater/internal/lock"
	"github.com/jgarman/disk-updater/internal/logger"
)

// Strategy names the way a file reached the image.
type Strategy string

const (
	StrategyMount   Strategy = "mount"
	StrategyOffline Strategy = "offline"
)

// Config holds what the Updater needs from the application configuration.
type Config struct {
	DiskPath       string
	ScratchDir     string
	TargetDir      string
	OfflineBackend string
	Verify         bool
	LockTimeout    time.Duration
}

// ConfigFrom extracts the updater settings from the application configuration.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		DiskPath:       cfg.ImagePath,
		ScratchDir:     cfg.ScratchDir,
		TargetDir:      cfg.TargetDir,
		OfflineBackend: cfg.OfflineBackend,
		Verify:         cfg.Verify,
		LockTimeout:    cfg.LockTimeout.Std(),
	}
}

// Result describes a completed update.
type Result struct {
	Strategy    Strategy      `json:"strategy"`
	Backend     string        `json:"backend"`
	Source      string        `json:"source"`
	Destination string        `json:"destination"`
	Size        int64         `json:"size"`
	Digest      digest.Digest `json:"digest"`
	Verified    bool          `json:"verified"`
}

// Updater copies one file into the target directory of a FAT disk image,
// through a loop mount when possible and offline otherwise.
//
// An Updater is not safe for concurrent use; separate processes sharing a
// scratch directory are serialized by the Locker.
type Updater struct {
	config   Config
	mounter  Mounter
	runner   CommandRunner
	locker   lock.Locker
	lookPath LookPathFunc
}

// New creates an Updater with explicit collaborators. A nil locker disables locking.
//
// Example usage:
//
//	runner := diskmanager.NewExecRunner()
//	u := diskmanager.New(cfg, diskmanager.NewSystemMounter(runner, true), runner, lock.NewFileLocker())
//	result, err := u.Update(ctx, "build/app.bin")
func New(cfg Config, mounter Mounter, runner CommandRunner, locker lock.Locker) *Updater {
	if cfg.TargetDir == "" {
		cfg.TargetDir = config.DefaultTargetDir
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = config.DefaultLockTimeout
	}
	if locker == nil {
		locker = lock.NewNoOpLocker()
	}

	return &Updater{
		config:  cfg,
		mounter: mounter,
		runner:  runner,
		locker:  locker,
	}
}

// NewSystem creates an Updater wired to the host: mount/umount (through sudo
// when useSudo is set), mtools and flock.
func NewSystem(cfg Config, useSudo, useLock bool) *Updater {
	runner := NewExecRunner()

	var locker lock.Locker = lock.NewNoOpLocker()
	if useLock {
		locker = lock.NewFileLocker()
	}

	return New(cfg, newPlatformMounter(runner, useSudo), runner, locker)
}

// Config returns the updater settings.
func (u *Updater) Config() Config {
	return u.config
}

// normalizePath normalizes a path inside the image
func normalizePath(p string) string {
	// Ensure path starts with /
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}

	return path.Clean(p)
}

// checkPreconditions validates both paths before anything is mutated.
func (u *Updater) checkPreconditions(sourcePath string) (os.FileInfo, error) {
	info, err := os.Stat(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, sourcePath)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s is not a regular file", ErrSourceNotFound, sourcePath)
	}

	if _, err := os.Stat(u.config.DiskPath); err != nil {
		return nil, fmt.Errorf("%w: %s, build the disk image first", ErrImageNotFound, u.config.DiskPath)
	}

	return info, nil
}

// acquire takes the advisory lock on the directory holding the scratch mount point.
func (u *Updater) acquire(ctx context.Context) (lock.Lock, error) {
	lockCtx, cancel := context.WithTimeout(ctx, u.config.LockTimeout)
	defer cancel()

	target := filepath.Dir(filepath.Clean(u.config.ScratchDir))
	return u.locker.AcquireLock(lockCtx, target)
}

// Update copies sourcePath to <TargetDir>/<basename> inside the image.
func (u *Updater) Update(ctx context.Context, sourcePath string) (*Result, error) {
	info, err := u.checkPreconditions(sourcePath)
	if err != nil {
		return nil, err
	}

	held, err := u.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := held.Release(); err != nil {
			logger.WarnKV(ctx, "Failed to release lock", "error", err)
		}
	}()

	sum, err := digestFile(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("failed to digest source file: %w", err)
	}

	result := &Result{
		Source:      sourcePath,
		Destination: path.Join(normalizePath(u.config.TargetDir), filepath.Base(sourcePath)),
		Size:        info.Size(),
		Digest:      sum,
	}

	ctx = logger.WithKV(ctx, "image", u.config.DiskPath, "destination", result.Destination)

	loop := NewLoopbackFilesystemWriter(u.config.DiskPath, u.config.ScratchDir, u.mounter)
	if err := loop.Begin(ctx); err == nil {
		result.Strategy = StrategyMount
		result.Backend = loop.Name()
		if err := u.write(ctx, loop, sourcePath, result.Destination); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMountWrite, err)
		}
	} else {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		offline, ferr := NewOfflineFilesystemWriter(u.config.OfflineBackend, u.config.DiskPath, u.runner, u.lookPath)
		if ferr != nil {
			return nil, fmt.Errorf("%w: %w", ErrOfflineWrite, ferr)
		}

		logger.InfoKV(ctx, "Loop mount unavailable, editing the image offline",
			"backend", offline.Name(), "reason", err)

		result.Strategy = StrategyOffline
		result.Backend = offline.Name()
		if err := offline.Begin(ctx); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrOfflineWrite, err)
		}
		if err := u.write(ctx, offline, sourcePath, result.Destination); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrOfflineWrite, err)
		}
	}

	if u.config.Verify {
		if err := VerifyFile(u.config.DiskPath, result.Destination, sum); err != nil {
			return nil, err
		}
		result.Verified = true
	}

	logger.InfoKV(ctx, "Copied file into disk image",
		"strategy", result.Strategy, "backend", result.Backend,
		"size", result.Size, "digest", result.Digest)

	return result, nil
}

// write runs one Begin-ed writer to completion. End always runs so a mount
// is torn down even when the copy fails.
func (u *Updater) write(ctx context.Context, w FilesystemWriter, sourcePath, destination string) error {
	var writeErr error
	if err := w.Mkdir(ctx, path.Dir(destination)); err != nil {
		writeErr = fmt.Errorf("failed to ensure directory: %w", err)
	} else if err := w.WriteFile(ctx, destination, sourcePath); err != nil {
		writeErr = err
	}

	return errors.Join(writeErr, w.End(ctx))
}
