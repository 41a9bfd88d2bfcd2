package cdata

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/maruel/calibdb/internal/fsys"
)

// ErrNotFound is returned by Store.Read when the file does not exist or is a
// dangling link. It wraps fs.ErrNotExist.
var ErrNotFound = fmt.Errorf("calibration data not found: %w", fs.ErrNotExist)

// Store reads and writes records as single files.
type Store struct {
	fs          fsys.FileSystem
	compression Compression
}

// NewStore returns a Store writing through f with compression c.
func NewStore(f fsys.FileSystem, c Compression) *Store {
	return &Store{fs: f, compression: c}
}

// Write atomically writes r to path and returns the number of bytes written.
func (s *Store) Write(path string, r *Record) (int, error) {
	data, err := Encode(r, s.compression)
	if err != nil {
		return 0, err
	}
	if err := s.fs.WriteFile(path, data); err != nil {
		return 0, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return len(data), nil
}

// Read returns the record stored at path.
func (s *Store) Read(path string) (Record, error) {
	data, err := s.fs.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Record{}, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return Record{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	r, err := Decode(data)
	if err != nil {
		return Record{}, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}
