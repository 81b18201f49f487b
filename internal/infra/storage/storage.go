// Package storage holds utilities for safe local-disk persistence. This
// file implements:
//   - EnsureDir — guarantees the directory for a target path exists;
//   - AtomicWriteFile — atomic file write with data and metadata sync.
//
// Used for the durable subscription store and image-cache blobs, where a
// partially written file would corrupt state on the next load.
package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kurtskinny/twitch-chat-core/internal/infra/logger"
)

// defaultFilePerm is the permission mode applied to the final file after
// an atomic write. 0o600 restricts access to the owning process.
const defaultFilePerm = 0600

// EnsureDir guarantees the directory for path exists. If path has no
// directory component ("." or empty), it's a no-op. Creation uses 0o700;
// errors are wrapped with the directory name.
func EnsureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}
	return nil
}

// AtomicWriteFile atomically writes data to path.
//
// Algorithm: temp file in the same directory → write → fsync(temp) →
// chmod(defaultFilePerm) → close → rename → fsync(dir). This guarantees
// the old file stays intact or the new one is written in full, never a
// partial file. Note: os.Rename is only atomic within a single filesystem
// volume. Directory fsync is best-effort and some OS/filesystem
// combinations ignore it, but it meaningfully improves metadata
// durability. The final file's permissions are defaultFilePerm (0o600).
func AtomicWriteFile(path string, data []byte) error {
	clean := filepath.Clean(path)
	if err := EnsureDir(clean); err != nil {
		return err
	}
	dir := filepath.Dir(clean)

	var tmp *os.File
	// Temp file lives in the same directory so rename stays atomic.
	if tmpFile, err := os.CreateTemp(dir, "atomic-*.tmp"); err != nil {
		return fmt.Errorf("create temp file: %w", err)
	} else {
		tmp = tmpFile
	}

	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("fsync temp file: %w", err)
	}
	if err := tmp.Chmod(defaultFilePerm); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	// On POSIX, rename over an existing file is atomic. path must live on
	// the same volume as the temp file.
	if err := os.Rename(tmpName, clean); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}

	// Directory fsync improves metadata durability for the new directory entry.
	if dirFile, err := os.Open(dir); err == nil {
		if errSync := dirFile.Sync(); errSync != nil {
			logger.Warnf("AtomicWriteFile: dir sync error: %v", errSync) // best-effort on Windows/some filesystems
		}
		_ = dirFile.Close()
	}
	return nil
}
