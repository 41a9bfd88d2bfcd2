// Package layout maps calibration IDs to the directory tree of a calibration
// database.
//
// The tree looks like:
//
//	<root>/<calibrationID>/DataDefault/{0000.cdata,...,current}
//	<root>/<calibrationID>/MC/{0000.cdata,...,current}
//	<root>/<calibrationID>/DataRanges/<day>/<start>-<stop>/{0000.cdata,...,current}
//
// where <start> and <stop> are TID tokens and <day> is the date part of
// <start>.
package layout

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"

	"github.com/maruel/calibdb/internal/fsys"
	"github.com/maruel/calibdb/internal/tid"
)

// CurrentName is the name of the link to the newest payload file of a folder.
const CurrentName = "current"

// ErrOverlappingRanges is returned when the ranges found on disk for one
// calibration ID are not pairwise disjoint.
var ErrOverlappingRanges = errors.New("overlapping calibration ranges")

// Category selects one of the three data folders of a calibration ID.
type Category int

const (
	// Default holds the fallback data used when no range matches.
	Default Category = iota
	// MC holds simulated data. It has no range concept.
	MC
	// Ranges holds one folder per validity range.
	Ranges
)

// String returns the folder name of the category.
func (c Category) String() string {
	switch c {
	case Default:
		return "DataDefault"
	case MC:
		return "MC"
	case Ranges:
		return "DataRanges"
	default:
		return fmt.Sprintf("Category(%d)", int(c))
	}
}

// Range is a validity interval and the folder holding its data.
type Range struct {
	tid.Interval
	Folder string
}

// CurrentFile returns the path of the link to the newest payload of r.
func (r Range) CurrentFile() string {
	return filepath.Join(r.Folder, CurrentName)
}

// Layout resolves paths under a root directory and scans range folders.
type Layout struct {
	root  string
	fs    fsys.FileSystem
	cache *Cache
}

// New returns a Layout rooted at root. When enableCache is false every call to
// Ranges scans the tree.
func New(root string, f fsys.FileSystem, enableCache bool) *Layout {
	l := &Layout{root: filepath.Clean(root), fs: f}
	if enableCache {
		l.cache = NewCache()
	}
	return l
}

// Root returns the root directory.
func (l *Layout) Root() string {
	return l.root
}

// FS returns the filesystem the layout scans.
func (l *Layout) FS() fsys.FileSystem {
	return l.fs
}

// Folder returns the folder of category c for id.
func (l *Layout) Folder(id string, c Category) string {
	return filepath.Join(l.root, id, c.String())
}

// RangeFolder returns the folder holding the data valid for iv.
func (l *Layout) RangeFolder(id string, iv tid.Interval) string {
	return filepath.Join(l.Folder(id, Ranges), DayBucket(iv.Start), RangeName(iv))
}

// CurrentFile returns the link to the newest payload of a Default or MC
// folder. Ranges have one link per range, see [Range.CurrentFile].
func (l *Layout) CurrentFile(id string, c Category) (string, error) {
	if c == Ranges {
		return "", fmt.Errorf("%s has no single current file", c)
	}
	return filepath.Join(l.Folder(id, c), CurrentName), nil
}

// Relative returns p relative to the root, for logging.
func (l *Layout) Relative(p string) string {
	if rel, err := filepath.Rel(l.root, p); err == nil && !strings.HasPrefix(rel, "..") {
		return rel
	}
	return p
}

// CalibrationIDs returns the calibration IDs present under the root, sorted.
// Hidden entries are skipped.
func (l *Layout) CalibrationIDs() ([]string, error) {
	entries, err := l.fs.ReadDir(l.root)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", l.root, err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			ids = append(ids, e.Name())
		}
	}
	return ids, nil
}

// Ranges returns the ranges stored for id, in no particular order. The
// returned slice is owned by the caller.
//
// Folders whose name does not decode are skipped. A missing DataRanges folder
// yields no ranges.
func (l *Layout) Ranges(id string) ([]Range, error) {
	if l.cache != nil {
		if r, ok := l.cache.Get(id); ok {
			return r, nil
		}
	}
	ranges, err := l.scan(id)
	if err != nil {
		return nil, err
	}
	if l.cache != nil {
		l.cache.Set(id, ranges)
	}
	return ranges, nil
}

// Invalidate drops the cached ranges of id. It is a no-op when caching is
// disabled.
func (l *Layout) Invalidate(id string) {
	if l.cache != nil {
		l.cache.Invalidate(id)
	}
}

// InvalidateAll drops every cached range list.
func (l *Layout) InvalidateAll() {
	if l.cache != nil {
		l.cache.InvalidateAll()
	}
}

func (l *Layout) scan(id string) ([]Range, error) {
	base := l.Folder(id, Ranges)
	if !l.fs.Exists(base) {
		return nil, nil
	}
	days, err := l.fs.ReadDir(base)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", base, err)
	}
	var ranges []Range
	for _, day := range days {
		if !day.IsDir() {
			continue
		}
		dayDir := filepath.Join(base, day.Name())
		entries, err := l.fs.ReadDir(dayDir)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", dayDir, err)
		}
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			iv := ParseRangeName(e.Name())
			if !iv.IsValid() {
				slog.Warn("layout: skipping malformed range folder", "folder", l.Relative(filepath.Join(dayDir, e.Name())))
				continue
			}
			ranges = append(ranges, Range{Interval: iv, Folder: filepath.Join(dayDir, e.Name())})
		}
	}
	if err := checkDisjoint(ranges); err != nil {
		return nil, fmt.Errorf("%s: %w", id, err)
	}
	slog.Debug("layout: scanned ranges", "calibrationID", id, "count", len(ranges))
	return ranges, nil
}

// checkDisjoint verifies that no two ranges overlap.
func checkDisjoint(ranges []Range) error {
	sorted := slices.Clone(ranges)
	slices.SortFunc(sorted, func(a, b Range) int { return tid.CompareStart(a.Interval, b.Interval) })
	for i := 1; i < len(sorted); i++ {
		if !sorted[i-1].Disjoint(sorted[i].Interval) {
			return fmt.Errorf("%w: %s and %s", ErrOverlappingRanges, sorted[i-1].Interval, sorted[i].Interval)
		}
	}
	return nil
}

// RangeName returns "<start>-<stop>" for iv. An open stop encodes as "OPEN".
func RangeName(iv tid.Interval) string {
	return iv.Start.Token() + "-" + iv.Stop.Token()
}

// ParseRangeName decodes a name produced by RangeName.
//
// When either part is malformed the returned interval has an invalid Start.
func ParseRangeName(name string) tid.Interval {
	start, stop, ok := strings.Cut(name, "-")
	if !ok || !tid.IsToken(stop) {
		return tid.NewInterval(tid.Open(), tid.Open())
	}
	// An OPEN start is not a valid range either; ParseToken maps it to Open.
	iv := tid.NewInterval(tid.ParseToken(start), tid.ParseToken(stop))
	if !iv.IsOpen() && iv.Stop.Less(iv.Start) {
		iv.Start = tid.Open()
	}
	return iv
}

// DayBucket returns the directory grouping ranges starting on the same day,
// the date part of the start token.
func DayBucket(start tid.TID) string {
	tok := start.Token()
	if day, _, ok := strings.Cut(tok, "T"); ok {
		return day
	}
	return tok
}
