// Package fsys abstracts the filesystem mutations the calibration store needs.
//
// [OS] is the real implementation. [Mem] simulates a directory tree with
// symbolic links in memory for tests.
package fsys

import "io/fs"

// FileSystem is the set of filesystem operations used by the store.
//
// Paths are slash or OS separated, as produced by path/filepath.
type FileSystem interface {
	// MakeDir creates dir and any missing parents. Existing directories are not
	// an error.
	MakeDir(dir string) error
	// Rename moves oldPath to newPath. The parent of newPath must exist.
	Rename(oldPath, newPath string) error
	// Exists returns true if path exists, without following a final symbolic
	// link: a dangling link exists.
	Exists(path string) bool
	// ReadDir returns the entries of dir sorted by name.
	ReadDir(dir string) ([]fs.DirEntry, error)
	// ReadFile returns the content of path, following symbolic links.
	ReadFile(path string) ([]byte, error)
	// WriteFile atomically replaces the content of path. Readers see either the
	// old or the new content, never a partial write.
	WriteFile(path string, data []byte) error
	// Symlink atomically creates or replaces link so it points to target.
	Symlink(target, link string) error
	// Readlink returns the target of link.
	Readlink(link string) (string, error)
}
