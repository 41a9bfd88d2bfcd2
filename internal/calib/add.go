package calib

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/maruel/calibdb/internal/cdata"
	"github.com/maruel/calibdb/internal/git"
	"github.com/maruel/calibdb/internal/layout"
	"github.com/maruel/calibdb/internal/tid"
)

// payloadExt is the extension of payload files.
const payloadExt = ".cdata"

// AddMode selects how AddItem places non-MC data.
type AddMode int

const (
	// AsDefault stores the data as fallback for any TID.
	AsDefault AddMode = iota
	// StrictRange stores the data for [FirstID, LastID]. Overlapping an
	// existing range is only allowed when both bounds match.
	StrictRange
	// RightOpen stores the data from FirstID onward, shrinking or truncating
	// against the neighboring range.
	RightOpen
)

var addModeNames = [...]string{
	AsDefault:   "default",
	StrictRange: "strict",
	RightOpen:   "right-open",
}

func (m AddMode) String() string {
	if m >= 0 && int(m) < len(addModeNames) {
		return addModeNames[m]
	}
	return fmt.Sprintf("AddMode(%d)", int(m))
}

// ParseAddMode parses the name returned by String.
func ParseAddMode(s string) (AddMode, error) {
	for i, n := range addModeNames {
		if n == s {
			return AddMode(i), nil
		}
	}
	return 0, fmt.Errorf("unknown add mode %q", s)
}

// AddItem stores r.
//
// Data flagged MC always goes to the MC folder regardless of mode. All checks
// happen before the first mutation. In RightOpen mode the rename of an
// existing range precedes the write; a failed write leaves it renamed.
func (db *DataBase) AddItem(ctx context.Context, r *cdata.Record, mode AddMode) error {
	if r.FirstID.IsSet(tid.MC) != r.LastID.IsSet(tid.MC) {
		return fmt.Errorf("%w: MC", ErrInconsistentFlags)
	}
	if r.FirstID.IsSet(tid.AdHoc) != r.LastID.IsSet(tid.AdHoc) {
		return fmt.Errorf("%w: AdHoc", ErrInconsistentFlags)
	}
	if err := checkID(r.CalibrationID); err != nil {
		return err
	}
	if mode < AsDefault || mode > RightOpen {
		return fmt.Errorf("unknown add mode %d", int(mode))
	}
	rec := *r
	if rec.Created.IsZero() {
		rec.Created = time.Now().UTC()
	}
	if db.repo == nil {
		_, err := db.insert(ctx, &rec, mode)
		return err
	}
	return db.repo.CommitTx(ctx, git.Author{Name: rec.Author}, func() (string, []string, error) {
		touched, err := db.insert(ctx, &rec, mode)
		if err != nil {
			return "", nil, err
		}
		files := make([]string, 0, len(touched))
		for _, p := range touched {
			rel, err := db.repoPath(p)
			if err != nil {
				return "", nil, err
			}
			files = append(files, rel)
		}
		return commitMessage(&rec, mode), files, nil
	})
}

func commitMessage(r *cdata.Record, mode AddMode) string {
	var b strings.Builder
	switch {
	case r.FirstID.IsSet(tid.MC):
		fmt.Fprintf(&b, "%s: add MC data", r.CalibrationID)
	case mode == AsDefault:
		fmt.Fprintf(&b, "%s: add default data", r.CalibrationID)
	default:
		fmt.Fprintf(&b, "%s: add %s data from %s", r.CalibrationID, mode, r.FirstID.Token())
	}
	b.WriteString("\n\n")
	if r.Comment != "" {
		b.WriteString(r.Comment)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "Digest: %s\n", r.Digest())
	return b.String()
}

func (db *DataBase) repoPath(p string) (string, error) {
	rel, err := filepath.Rel(db.repo.Dir(), p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is outside of repository %s", p, db.repo.Dir())
	}
	return rel, nil
}

// insert performs the mutation and returns the paths it created, modified or
// moved away.
func (db *DataBase) insert(ctx context.Context, r *cdata.Record, mode AddMode) ([]string, error) {
	id := r.CalibrationID
	if r.FirstID.IsSet(tid.MC) {
		return db.writeToFolder(ctx, db.layout.Folder(id, layout.MC), r)
	}
	switch mode {
	case StrictRange:
		return db.addStrictRange(ctx, r)
	case RightOpen:
		return db.addRightOpen(ctx, r)
	default:
		return db.writeToFolder(ctx, db.layout.Folder(id, layout.Default), r)
	}
}

func (db *DataBase) addStrictRange(ctx context.Context, r *cdata.Record) ([]string, error) {
	if r.FirstID.IsInvalid() || r.LastID.IsInvalid() {
		return nil, fmt.Errorf("%w: both FirstID and LastID are required", ErrInvalidRange)
	}
	if r.LastID.Less(r.FirstID) {
		return nil, fmt.Errorf("%w: LastID %s < FirstID %s", ErrInvalidRange, r.LastID, r.FirstID)
	}
	id := r.CalibrationID
	// Folders do not carry flags.
	iv := tid.NewInterval(r.FirstID.StripFlags(), r.LastID.StripFlags())
	ranges, err := db.layout.Ranges(id)
	if err != nil {
		return nil, err
	}
	folder := db.layout.RangeFolder(id, iv)
	if i := slices.IndexFunc(ranges, func(x layout.Range) bool { return !x.Disjoint(iv) }); i >= 0 {
		if !ranges[i].Interval.Equal(iv) {
			return nil, fmt.Errorf("%w: %s overlaps %s", ErrConflictingRange, iv, ranges[i].Interval)
		}
		folder = ranges[i].Folder
	}
	defer db.layout.Invalidate(id)
	return db.writeToFolder(ctx, folder, r)
}

func (db *DataBase) addRightOpen(ctx context.Context, r *cdata.Record) ([]string, error) {
	if r.FirstID.IsInvalid() {
		return nil, fmt.Errorf("%w: FirstID is required", ErrInvalidRange)
	}
	id := r.CalibrationID
	// LastID is ignored, the data is valid until the next range.
	start := r.FirstID.StripFlags()
	iv := tid.NewInterval(start, tid.Open())
	ranges, err := db.layout.Ranges(id)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(ranges, func(a, b layout.Range) int { return tid.CompareStart(a.Interval, b.Interval) })
	// Two open ranges always conflict.
	i := slices.IndexFunc(ranges, func(x layout.Range) bool { return x.IsOpen() || !x.Stop.Less(start) })

	defer db.layout.Invalidate(id)
	var touched []string
	folder := ""
	switch {
	case i < 0:
	case start.Equal(ranges[i].Start):
		// Amendment of an existing range, its stop is kept.
		folder = ranges[i].Folder
	case ranges[i].Start.Less(start):
		c := ranges[i]
		shrunk := tid.NewInterval(c.Start, start.Prev())
		moved, err := db.moveRange(ctx, id, c, shrunk)
		if err != nil {
			return nil, err
		}
		touched = moved
		if i+1 < len(ranges) {
			iv.Stop = ranges[i+1].Start.Prev()
		}
	default:
		iv.Stop = ranges[i].Start.Prev()
	}
	if folder == "" {
		folder = db.layout.RangeFolder(id, iv)
	}
	written, err := db.writeToFolder(ctx, folder, r)
	if err != nil {
		return nil, err
	}
	return append(touched, written...), nil
}

// moveRange renames the folder of c to match iv and returns the old and new
// path of every file it holds.
func (db *DataBase) moveRange(ctx context.Context, id string, c layout.Range, iv tid.Interval) ([]string, error) {
	dst := db.layout.RangeFolder(id, iv)
	if err := db.fs.MakeDir(filepath.Dir(dst)); err != nil {
		return nil, err
	}
	if err := db.fs.Rename(c.Folder, dst); err != nil {
		return nil, fmt.Errorf("failed to shrink range %s: %w", c.Interval, err)
	}
	slog.InfoContext(ctx, "calib: shrunk range", "calibrationID", id, "from", c.Interval.String(), "to", iv.String())
	entries, err := db.fs.ReadDir(dst)
	if err != nil {
		return nil, err
	}
	moved := make([]string, 0, 2*len(entries))
	for _, e := range entries {
		moved = append(moved, filepath.Join(c.Folder, e.Name()), filepath.Join(dst, e.Name()))
	}
	return moved, nil
}

// writeToFolder stores r as the next numbered payload of folder and points
// the current link to it.
func (db *DataBase) writeToFolder(ctx context.Context, folder string, r *cdata.Record) ([]string, error) {
	if err := db.fs.MakeDir(folder); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", folder, err)
	}
	nums, err := db.payloadNumbers(folder)
	if err != nil {
		return nil, err
	}
	next := 0
	if len(nums) != 0 {
		next = slices.Max(nums) + 1
	}
	name := fmt.Sprintf("%04d%s", next, payloadExt)
	p := filepath.Join(folder, name)
	n, err := db.store.Write(p, r)
	if err != nil {
		return nil, err
	}
	link := filepath.Join(folder, layout.CurrentName)
	if err := db.fs.Symlink(name, link); err != nil {
		return nil, fmt.Errorf("failed to update %s: %w", link, err)
	}
	slog.InfoContext(ctx, "calib: wrote data", "calibrationID", r.CalibrationID, "file", db.layout.Relative(p), "bytes", n, "digest", r.Digest())
	return []string{p, link}, nil
}

// payloadNumbers returns the sequence numbers of the payload files in folder.
// A missing folder has none.
func (db *DataBase) payloadNumbers(folder string) ([]int, error) {
	if !db.fs.Exists(folder) {
		return nil, nil
	}
	entries, err := db.fs.ReadDir(folder)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", folder, err)
	}
	var nums []int
	for _, e := range entries {
		base, ok := strings.CutSuffix(e.Name(), payloadExt)
		if !ok || e.IsDir() {
			continue
		}
		if n, err := strconv.Atoi(base); err == nil && n >= 0 {
			nums = append(nums, n)
		}
	}
	return nums, nil
}
