package diskmanager

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/jgarman/disk-updater/internal/logger"
)

// MtoolsFilesystemWriter edits the image offline with mmd(1) and mcopy(1).
type MtoolsFilesystemWriter struct {
	diskPath string
	runner   CommandRunner
}

// NewMtoolsFilesystemWriter creates a writer driving the mtools utilities.
func NewMtoolsFilesystemWriter(diskPath string, runner CommandRunner) *MtoolsFilesystemWriter {
	return &MtoolsFilesystemWriter{
		diskPath: diskPath,
		runner:   runner,
	}
}

func (w *MtoolsFilesystemWriter) Name() string {
	return "mtools"
}

// Begin is a no-op: mtools opens the image on every call.
func (w *MtoolsFilesystemWriter) Begin(ctx context.Context) error {
	return nil
}

// Mkdir runs mmd for each component of dirPath. Failures are ignored since
// mmd also fails when the directory already exists; a genuinely broken image
// surfaces on the following mcopy.
func (w *MtoolsFilesystemWriter) Mkdir(ctx context.Context, dirPath string) error {
	current := "/"
	for _, part := range splitPath(normalizePath(dirPath)) {
		current = path.Join(current, part)
		if _, err := w.runner.Run(ctx, "mmd", "-i", w.diskPath, "::"+current); err != nil {
			logger.DebugKV(ctx, "mmd failed, assuming directory exists", "dir", current, "error", err)
		}
	}
	return ctx.Err()
}

// WriteFile runs mcopy -o, overwriting an existing file of the same name.
func (w *MtoolsFilesystemWriter) WriteFile(ctx context.Context, filePath, sourcePath string) error {
	output, err := w.runner.Run(ctx, "mcopy", "-o", "-i", w.diskPath, sourcePath, "::"+normalizePath(filePath))
	if err != nil {
		if isOutOfSpaceError(err) || strings.Contains(strings.ToLower(string(output)), "disk full") {
			return ErrDiskFull
		}
		return fmt.Errorf("mcopy: %w", err)
	}
	return nil
}

// End is a no-op for mtools.
func (w *MtoolsFilesystemWriter) End(ctx context.Context) error {
	return nil
}
