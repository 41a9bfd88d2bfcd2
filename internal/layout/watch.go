package layout

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Watcher invalidates the cached ranges of a Layout when another process
// modifies the tree. It only works with the OS filesystem.
type Watcher struct {
	l *Layout
	w *fsnotify.Watcher
}

// NewWatcher starts watching the root, every calibration ID and their range
// folders. Watches are in place when it returns.
func NewWatcher(l *Layout) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	wa := &Watcher{l: l, w: w}
	if err := w.Add(l.root); err != nil {
		_ = w.Close()
		return nil, err
	}
	ids, err := l.CalibrationIDs()
	if err != nil {
		_ = w.Close()
		return nil, err
	}
	for _, id := range ids {
		if err := wa.addCalibration(id); err != nil {
			_ = w.Close()
			return nil, err
		}
	}
	return wa, nil
}

// Run processes events until ctx is done or the watcher fails. onChange, if
// not nil, is called with the calibration ID whose cache entry was dropped.
func (wa *Watcher) Run(ctx context.Context, onChange func(id string)) error {
	defer func() { _ = wa.w.Close() }()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-wa.w.Events:
			if !ok {
				return nil
			}
			id := wa.handle(ctx, event)
			if id == "" {
				continue
			}
			wa.l.Invalidate(id)
			slog.DebugContext(ctx, "layout: tree changed", "calibrationID", id, "op", event.Op.String(), "path", wa.l.Relative(event.Name))
			if onChange != nil {
				onChange(id)
			}
		case err, ok := <-wa.w.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				// Events were lost, nothing cached can be trusted.
				wa.l.InvalidateAll()
				slog.WarnContext(ctx, "layout: watch overflow, dropped all cached ranges")
				continue
			}
			slog.WarnContext(ctx, "layout: error watching tree", "err", err)
		}
	}
}

// Close stops watching. Run returns once the event channel is closed.
func (wa *Watcher) Close() error {
	return wa.w.Close()
}

// handle extends the watch set to new directories and returns the calibration
// ID the event belongs to, or "" if none.
func (wa *Watcher) handle(ctx context.Context, event fsnotify.Event) string {
	rel, err := filepath.Rel(wa.l.root, event.Name)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return ""
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	id := parts[0]
	if strings.HasPrefix(id, ".") {
		return ""
	}
	if event.Has(fsnotify.Create) && watchedDepth(parts) {
		if fi, err := os.Stat(event.Name); err == nil && fi.IsDir() {
			if len(parts) == 1 {
				err = wa.addCalibration(id)
			} else {
				err = wa.w.Add(event.Name)
			}
			if err != nil {
				slog.WarnContext(ctx, "layout: failed to watch", "path", wa.l.Relative(event.Name), "err", err)
			}
		}
	}
	return id
}

// watchedDepth returns true for the directories whose content changes the
// range list: the calibration directory, its DataRanges folder and the day
// buckets.
func watchedDepth(parts []string) bool {
	switch len(parts) {
	case 1:
		return true
	case 2, 3:
		return parts[1] == Ranges.String()
	default:
		return false
	}
}

func (wa *Watcher) addCalibration(id string) error {
	dir := filepath.Join(wa.l.root, id)
	if err := wa.w.Add(dir); err != nil {
		return err
	}
	base := wa.l.Folder(id, Ranges)
	if !wa.l.fs.Exists(base) {
		return nil
	}
	if err := wa.w.Add(base); err != nil {
		return err
	}
	days, err := wa.l.fs.ReadDir(base)
	if err != nil {
		return err
	}
	for _, d := range days {
		if d.IsDir() {
			if err := wa.w.Add(filepath.Join(base, d.Name())); err != nil {
				return err
			}
		}
	}
	return nil
}
