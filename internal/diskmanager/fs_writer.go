package diskmanager

import "context"

// FilesystemWriter places files into the disk image.
// Different implementations use different methods (loopback mount, mtools, go-diskfs).
type FilesystemWriter interface {
	// Name identifies the writer in logs and results
	Name() string

	// Begin prepares the filesystem for writing (e.g., mounting)
	Begin(ctx context.Context) error

	// Mkdir ensures dirPath exists inside the image
	Mkdir(ctx context.Context, dirPath string) error

	// WriteFile copies the host file sourcePath to filePath inside the image,
	// replacing any existing file
	WriteFile(ctx context.Context, filePath, sourcePath string) error

	// End finalizes the filesystem writes (e.g., unmounting)
	End(ctx context.Context) error
}
