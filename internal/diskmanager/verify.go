package diskmanager

import (
	_ "crypto/sha256"
	"fmt"
	"os"

	diskfs "github.com/diskfs/go-diskfs"
	"github.com/opencontainers/go-digest"
)

// digestFile returns the sha256 digest of a host file.
func digestFile(p string) (digest.Digest, error) {
	f, err := os.Open(p)
	if err != nil {
		return "", err
	}
	defer f.Close()

	return digest.SHA256.FromReader(f)
}

// ReadDigest opens the image read-only and digests filePath inside it.
func ReadDigest(diskPath, filePath string) (digest.Digest, error) {
	fs, err := openFilesystem(diskPath, diskfs.ReadOnly)
	if err != nil {
		return "", err
	}

	file, err := fs.OpenFile(normalizePath(filePath), os.O_RDONLY)
	if err != nil {
		return "", fmt.Errorf("failed to open %s in image: %w", filePath, err)
	}
	defer file.Close()

	return digest.SHA256.FromReader(file)
}

// VerifyFile checks that filePath inside the image has digest want.
func VerifyFile(diskPath, filePath string, want digest.Digest) error {
	got, err := ReadDigest(diskPath, filePath)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrVerifyFailed, err)
	}
	if got != want {
		return fmt.Errorf("%w: %s has digest %s, expected %s", ErrVerifyFailed, filePath, got, want)
	}
	return nil
}
