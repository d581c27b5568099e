package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/jgarman/disk-updater/internal/config"
	"github.com/jgarman/disk-updater/internal/diskmanager"
	"github.com/jgarman/disk-updater/internal/logger"
)

// version is set at build time via -ldflags.
var version = "dev"

// options holds the flag values shared by every command.
type options struct {
	configPath     string
	imagePath      string
	scratchDir     string
	targetDir      string
	offlineBackend string
	logLevel       string
	useSudo        bool
	verify         bool
	noLock         bool
}

// NewRootCmd creates the top-level `update` command.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "update <source-file>",
		Short: "Copy a file into the /sbin directory of a FAT disk image",
		Long: `update copies a single file into /sbin of ./disk.img, keeping its base name.

It loop-mounts the image at ./mnt when possible. When loop devices are not
available it edits the image offline with mtools (or go-diskfs when mtools
is not installed).`,
		Args:          exactlyOneSource,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Flags(), opts)
			if err != nil {
				return err
			}

			u := diskmanager.NewSystem(diskmanager.ConfigFrom(cfg), cfg.UseSudo, cfg.Lock)
			return runUpdateWith(cmd.Context(), u, args[0], cmd.OutOrStdout())
		},
	}

	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	})

	bindFlags(root.PersistentFlags(), opts)
	root.AddCommand(newServeCmd(opts))

	return root
}

// exactlyOneSource accepts exactly one positional argument.
func exactlyOneSource(_ *cobra.Command, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: expected exactly one source file, got %d arguments", ErrUsage, len(args))
	}
	return nil
}

func bindFlags(fs *pflag.FlagSet, opts *options) {
	defaults := config.Default()

	fs.StringVarP(&opts.configPath, "config", "c", "", "path to a YAML, TOML or JSON configuration file")
	fs.StringVar(&opts.imagePath, "image", defaults.ImagePath, "FAT disk image to update")
	fs.StringVar(&opts.scratchDir, "scratch-dir", defaults.ScratchDir, "transient mount point")
	fs.StringVar(&opts.targetDir, "target-dir", defaults.TargetDir, "directory inside the image receiving the file")
	fs.StringVar(&opts.offlineBackend, "offline-backend", defaults.OfflineBackend, "offline FAT editor: auto, mtools or diskfs")
	fs.StringVar(&opts.logLevel, "log-level", defaults.LogLevel, "log level: debug, info, warn, error")
	fs.BoolVar(&opts.useSudo, "sudo", defaults.UseSudo, "run mount and umount through sudo when not root")
	fs.BoolVar(&opts.verify, "verify", defaults.Verify, "read the file back from the image and compare digests")
	fs.BoolVar(&opts.noLock, "no-lock", !defaults.Lock, "do not serialize concurrent updates")
}

// loadConfig reads the configuration file and overlays explicitly set flags.
func loadConfig(fs *pflag.FlagSet, opts *options) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}

	if fs.Changed("image") {
		cfg.ImagePath = opts.imagePath
	}
	if fs.Changed("scratch-dir") {
		cfg.ScratchDir = opts.scratchDir
	}
	if fs.Changed("target-dir") {
		cfg.TargetDir = opts.targetDir
	}
	if fs.Changed("offline-backend") {
		cfg.OfflineBackend = opts.offlineBackend
	}
	if fs.Changed("log-level") {
		cfg.LogLevel = opts.logLevel
	}
	if fs.Changed("sudo") {
		cfg.UseSudo = opts.useSudo
	}
	if fs.Changed("verify") {
		cfg.Verify = opts.verify
	}
	if fs.Changed("no-lock") {
		cfg.Lock = !opts.noLock
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUsage, err)
	}

	level, ok := logger.ParseLogLevel(cfg.LogLevel)
	if !ok {
		return nil, fmt.Errorf("%w: unknown log level %q", ErrUsage, cfg.LogLevel)
	}
	logger.SetLevel(level)

	return cfg, nil
}

// runUpdateWith performs one update and prints the outcome.
func runUpdateWith(ctx context.Context, u *diskmanager.Updater, source string, out io.Writer) error {
	ctx = logger.WithName(ctx, "update")

	result, err := u.Update(ctx, source)
	if err != nil {
		return err
	}

	verified := ""
	if result.Verified {
		verified = ", verified"
	}
	fmt.Fprintf(out, "Copied %s to %s:%s (%s via %s%s)\n",
		source, u.Config().DiskPath, result.Destination, result.Strategy, result.Backend, verified)

	return nil
}

// Execute runs the root command and exits with a code matching the error kind.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	root := NewRootCmd()
	err := root.ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		if errors.Is(err, ErrUsage) {
			fmt.Fprint(os.Stderr, root.UsageString())
		}
		os.Exit(ExitCode(err))
	}
}
