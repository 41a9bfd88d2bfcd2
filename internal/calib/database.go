// Package calib implements the calibration database: lookups of the data
// valid for a TID and insertions of new data, either as default, for a fixed
// range or for an open-ended range.
package calib

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"

	"github.com/maruel/calibdb/internal/cdata"
	"github.com/maruel/calibdb/internal/fsys"
	"github.com/maruel/calibdb/internal/git"
	"github.com/maruel/calibdb/internal/layout"
	"github.com/maruel/calibdb/internal/tid"
)

// BlobStore reads and writes one record per file.
type BlobStore interface {
	Write(path string, r *cdata.Record) (int, error)
	Read(path string) (cdata.Record, error)
}

// Options configures a DataBase. The zero value uses the OS filesystem with
// zstd compression and no caching.
type Options struct {
	// FS defaults to fsys.OS.
	FS fsys.FileSystem
	// Store defaults to a cdata.Store over FS using Compression.
	Store BlobStore
	// EnableCaching keeps scanned ranges for the lifetime of the DataBase.
	// Changes made by other processes are then not seen.
	EnableCaching bool
	// Compression of new payload files when Store is nil.
	Compression cdata.Compression
	// Repo, when set, records every insertion as one commit. Its directory
	// must contain the root.
	Repo *git.Repo
}

// DataBase is a calibration database rooted at a directory.
//
// It assumes a single writer per calibration ID.
type DataBase struct {
	layout *layout.Layout
	fs     fsys.FileSystem
	store  BlobStore
	repo   *git.Repo
}

// New returns the database rooted at root, creating the directory if needed.
func New(root string, opts *Options) (*DataBase, error) {
	if root == "" {
		return nil, errors.New("root directory is required")
	}
	var o Options
	if opts != nil {
		o = *opts
	}
	if o.FS == nil {
		o.FS = fsys.OS{}
	}
	if o.Store == nil {
		o.Store = cdata.NewStore(o.FS, o.Compression)
	}
	if err := o.FS.MakeDir(root); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", root, err)
	}
	db := &DataBase{
		layout: layout.New(root, o.FS, o.EnableCaching),
		fs:     o.FS,
		store:  o.Store,
		repo:   o.Repo,
	}
	if db.repo != nil {
		if _, err := db.repoPath(db.layout.Root()); err != nil {
			return nil, err
		}
	}
	return db, nil
}

// Layout returns the directory layout of the database.
func (db *DataBase) Layout() *layout.Layout {
	return db.layout
}

// Source tells where a lookup found its data.
type Source int

const (
	// SourceNone means nothing was found.
	SourceNone Source = iota
	// SourceMC is the MC folder.
	SourceMC
	// SourceRange is a range folder.
	SourceRange
	// SourceDefault is the DataDefault folder.
	SourceDefault
)

func (s Source) String() string {
	switch s {
	case SourceNone:
		return "none"
	case SourceMC:
		return "mc"
	case SourceRange:
		return "range"
	case SourceDefault:
		return "default"
	default:
		return fmt.Sprintf("Source(%d)", int(s))
	}
}

// Lookup is the result of GetItem.
type Lookup struct {
	// Found is false when no data applies. It is not an error.
	Found  bool
	Record cdata.Record
	Source Source
	// Folder holds the file the record was loaded from.
	Folder string
	// NextChange is the smallest TID after the target for which the result
	// may differ, or the invalid TID when unknown.
	NextChange tid.TID
}

// GetItem returns the data of calibration id valid for target.
//
// MC targets only see MC data. AdHoc targets never resolve. Otherwise the
// range containing target wins, then the default data. NextChange is set even
// when nothing is found so the caller knows when to ask again.
func (db *DataBase) GetItem(ctx context.Context, id string, target tid.TID) (Lookup, error) {
	lk := Lookup{NextChange: tid.Open()}
	if err := checkID(id); err != nil {
		return lk, err
	}

	if target.IsSet(tid.MC) {
		cur, _ := db.layout.CurrentFile(id, layout.MC)
		rec, ok, err := db.load(cur)
		if err != nil || !ok {
			return lk, err
		}
		slog.InfoContext(ctx, "calib: loaded MC data", "calibrationID", id, "target", target)
		return db.found(lk, rec, SourceMC, filepath.Dir(cur)), nil
	}

	if target.IsSet(tid.AdHoc) {
		slog.WarnContext(ctx, "calib: ignoring lookup with AdHoc TID", "calibrationID", id, "target", target)
		return lk, nil
	}

	ranges, err := db.layout.Ranges(id)
	if err != nil {
		return lk, err
	}
	if i := slices.IndexFunc(ranges, func(r layout.Range) bool { return r.Contains(target) }); i >= 0 {
		r := ranges[i]
		rec, ok, err := db.load(r.CurrentFile())
		if err != nil {
			return lk, err
		}
		if ok {
			lk = db.found(lk, rec, SourceRange, r.Folder)
			// Next of an open stop stays invalid: the answer never changes.
			lk.NextChange = r.Stop.Next()
			slog.InfoContext(ctx, "calib: loaded range data", "calibrationID", id, "target", target, "range", r.Interval.String())
			return lk, nil
		}
		slog.WarnContext(ctx, "calib: range has no data", "calibrationID", id, "folder", db.layout.Relative(r.Folder))
	}

	if !target.IsInvalid() {
		slices.SortFunc(ranges, func(a, b layout.Range) int { return tid.CompareStart(a.Interval, b.Interval) })
		if i := slices.IndexFunc(ranges, func(r layout.Range) bool { return target.Less(r.Start) }); i >= 0 {
			lk.NextChange = ranges[i].Start
		}
	}

	cur, _ := db.layout.CurrentFile(id, layout.Default)
	rec, ok, err := db.load(cur)
	if err != nil || !ok {
		return lk, err
	}
	slog.InfoContext(ctx, "calib: loaded default data", "calibrationID", id, "target", target)
	return db.found(lk, rec, SourceDefault, filepath.Dir(cur)), nil
}

func (db *DataBase) found(lk Lookup, rec cdata.Record, src Source, folder string) Lookup {
	lk.Found = true
	lk.Record = rec
	lk.Source = src
	lk.Folder = folder
	return lk
}

// load reads the record behind a current link. A missing link is not an
// error, a dangling or unreadable one is.
func (db *DataBase) load(path string) (cdata.Record, bool, error) {
	if !db.fs.Exists(path) {
		return cdata.Record{}, false, nil
	}
	rec, err := db.store.Read(path)
	if err == nil {
		return rec, true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		if target, lerr := db.fs.Readlink(path); lerr == nil {
			return cdata.Record{}, false, fmt.Errorf("%w: %s -> %s", ErrBrokenLink, db.layout.Relative(path), target)
		}
	}
	return cdata.Record{}, false, fmt.Errorf("%w: %w", ErrUnreadableFile, err)
}

// CalibrationIDs returns the calibration IDs in the database, sorted.
func (db *DataBase) CalibrationIDs() ([]string, error) {
	return db.layout.CalibrationIDs()
}

// NumberOfCalibrationData counts the payload files stored for id across the
// MC, default and range folders.
func (db *DataBase) NumberOfCalibrationData(id string) (int, error) {
	if err := checkID(id); err != nil {
		return 0, err
	}
	folders := []string{db.layout.Folder(id, layout.MC), db.layout.Folder(id, layout.Default)}
	ranges, err := db.layout.Ranges(id)
	if err != nil {
		return 0, err
	}
	for _, r := range ranges {
		folders = append(folders, r.Folder)
	}
	total := 0
	for _, f := range folders {
		nums, err := db.payloadNumbers(f)
		if err != nil {
			return 0, err
		}
		total += len(nums)
	}
	return total, nil
}

// checkID verifies id can be used as a directory name under the root.
func checkID(id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrEmptyIdentifier
	}
	if strings.HasPrefix(id, ".") || strings.ContainsAny(id, `/\`) || filepath.Base(id) != id {
		return fmt.Errorf("%w: %q", ErrInvalidIdentifier, id)
	}
	return nil
}
