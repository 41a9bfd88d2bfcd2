package fsys

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// OS implements FileSystem on the host filesystem.
type OS struct{}

var _ FileSystem = OS{}

// MakeDir implements FileSystem.
func (OS) MakeDir(dir string) error {
	return os.MkdirAll(dir, 0o755) //nolint:gosec // G301: calibration data is meant to be shared read-only.
}

// Rename implements FileSystem.
func (OS) Rename(oldPath, newPath string) error {
	return os.Rename(oldPath, newPath)
}

// Exists implements FileSystem.
func (OS) Exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// ReadDir implements FileSystem.
func (OS) ReadDir(dir string) ([]fs.DirEntry, error) {
	return os.ReadDir(dir)
}

// ReadFile implements FileSystem.
func (OS) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path) //nolint:gosec // G304: paths are built by the layout.
}

// WriteFile implements FileSystem.
//
// Data is written to a temporary file in the same directory, synced, then
// renamed over path.
func (OS) WriteFile(path string, data []byte) error {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := f.Name()
	if _, err := f.Write(data); err != nil {
		return errors.Join(fmt.Errorf("failed to write temp file: %w", err), f.Close(), os.Remove(tmpPath))
	}
	if err := f.Sync(); err != nil {
		return errors.Join(fmt.Errorf("failed to sync temp file: %w", err), f.Close(), os.Remove(tmpPath))
	}
	if err := f.Close(); err != nil {
		return errors.Join(fmt.Errorf("failed to close temp file: %w", err), os.Remove(tmpPath))
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil { //nolint:gosec // G302: see MakeDir.
		return errors.Join(fmt.Errorf("failed to chmod temp file: %w", err), os.Remove(tmpPath))
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return errors.Join(fmt.Errorf("failed to rename temp file: %w", err), os.Remove(tmpPath))
	}
	return nil
}

// Symlink implements FileSystem.
//
// The link is created under a temporary name then renamed over link, which
// replaces an existing link atomically on POSIX systems.
func (OS) Symlink(target, link string) error {
	tmpPath := filepath.Join(filepath.Dir(link), "."+filepath.Base(link)+"."+rand.Text()+".tmp")
	if err := os.Symlink(target, tmpPath); err != nil {
		return fmt.Errorf("failed to create link: %w", err)
	}
	if err := os.Rename(tmpPath, link); err != nil {
		return errors.Join(fmt.Errorf("failed to replace link: %w", err), os.Remove(tmpPath))
	}
	return nil
}

// Readlink implements FileSystem.
func (OS) Readlink(link string) (string, error) {
	return os.Readlink(link)
}
