package layout

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/maruel/calibdb/internal/fsys"
	"github.com/maruel/calibdb/internal/tid"
)

var (
	t0 = tid.FromParts(1451703845, 0)
	t1 = tid.FromParts(1451790245, 0x10)
	t2 = tid.FromParts(1451876645, 0x20)
)

func TestCategory(t *testing.T) {
	for c, want := range map[Category]string{Default: "DataDefault", MC: "MC", Ranges: "DataRanges", 7: "Category(7)"} {
		if got := c.String(); got != want {
			t.Errorf("Category(%d).String() = %q, want %q", int(c), got, want)
		}
	}
}

func TestPaths(t *testing.T) {
	l := New("/calib/", fsys.NewMem(), false)
	if got := l.Root(); got != "/calib" {
		t.Errorf("Root() = %q", got)
	}
	if got := l.Folder("CB_Energy", MC); got != "/calib/CB_Energy/MC" {
		t.Errorf("Folder() = %q", got)
	}
	cur, err := l.CurrentFile("CB_Energy", Default)
	if err != nil {
		t.Fatalf("CurrentFile() failed: %v", err)
	}
	if cur != "/calib/CB_Energy/DataDefault/current" {
		t.Errorf("CurrentFile() = %q", cur)
	}
	if _, err := l.CurrentFile("CB_Energy", Ranges); err == nil {
		t.Error("CurrentFile(Ranges) succeeded")
	}
	iv := tid.NewInterval(t0, tid.Open())
	want := "/calib/CB_Energy/DataRanges/2016_01_02/2016_01_02T03_04_05Z_0x00000000-OPEN"
	if got := l.RangeFolder("CB_Energy", iv); got != want {
		t.Errorf("RangeFolder() = %q, want %q", got, want)
	}
	r := Range{Interval: iv, Folder: want}
	if got := r.CurrentFile(); got != want+"/current" {
		t.Errorf("Range.CurrentFile() = %q", got)
	}
	if got := l.Relative(want); got != "CB_Energy/DataRanges/2016_01_02/2016_01_02T03_04_05Z_0x00000000-OPEN" {
		t.Errorf("Relative() = %q", got)
	}
	if got := l.Relative("/elsewhere/x"); got != "/elsewhere/x" {
		t.Errorf("Relative(outside) = %q", got)
	}
}

func TestRangeName(t *testing.T) {
	t.Run("RoundTrip", func(t *testing.T) {
		for _, iv := range []tid.Interval{
			tid.NewInterval(t0, t1),
			tid.NewInterval(t0, t0),
			tid.NewInterval(t1, tid.Open()),
			tid.NewInterval(tid.FromParts(0, 0), tid.FromParts(0xFFFFFFFF, 0xFFFFFFFF)),
		} {
			got := ParseRangeName(RangeName(iv))
			if got != iv {
				t.Errorf("ParseRangeName(RangeName(%s)) = %s", iv, got)
			}
		}
	})
	t.Run("Malformed", func(t *testing.T) {
		for _, name := range []string{
			"",
			"garbage",
			"OPEN-OPEN",
			"2016_01_02T03_04_05Z_0x00000000",
			"2016_01_02T03_04_05Z_0x00000000-",
			"2016_01_02T03_04_05Z_0x00000000-2016_01_02T03_04_05Z_0x0000",
			"2016_01_02T03_04_05Z_0x0000000g-OPEN",
			// Inverted.
			"2016_01_03T03_04_05Z_0x00000000-2016_01_02T03_04_05Z_0x00000000",
		} {
			if iv := ParseRangeName(name); iv.IsValid() {
				t.Errorf("ParseRangeName(%q) = %s, want invalid", name, iv)
			}
		}
	})
	if got := DayBucket(t1); got != "2016_01_03" {
		t.Errorf("DayBucket() = %q", got)
	}
}

func mkRange(t *testing.T, l *Layout, id string, iv tid.Interval) string {
	t.Helper()
	dir := l.RangeFolder(id, iv)
	if err := l.fs.MakeDir(dir); err != nil {
		t.Fatal(err)
	}
	return dir
}

func sortedIntervals(ranges []Range) []tid.Interval {
	out := make([]tid.Interval, 0, len(ranges))
	for _, r := range ranges {
		out = append(out, r.Interval)
	}
	slices.SortFunc(out, tid.CompareStart)
	return out
}

func TestRanges(t *testing.T) {
	mem := fsys.NewMem()
	l := New("/calib", mem, false)

	t.Run("Missing", func(t *testing.T) {
		r, err := l.Ranges("Nothing")
		if err != nil || len(r) != 0 {
			t.Fatalf("Ranges() = %v, %v", r, err)
		}
	})

	a := tid.NewInterval(t0, t1.Prev())
	b := tid.NewInterval(t1, tid.Open())
	dirA := mkRange(t, l, "X", a)
	mkRange(t, l, "X", b)
	// Noise that must be ignored.
	if err := mem.MakeDir("/calib/X/DataRanges/2016_01_02/not-a-range"); err != nil {
		t.Fatal(err)
	}
	if err := mem.WriteFile("/calib/X/DataRanges/stray.txt", nil); err != nil {
		t.Fatal(err)
	}

	t.Run("Scan", func(t *testing.T) {
		r, err := l.Ranges("X")
		if err != nil {
			t.Fatalf("Ranges() failed: %v", err)
		}
		got := sortedIntervals(r)
		if len(got) != 2 || got[0] != a || got[1] != b {
			t.Fatalf("Ranges() = %v", got)
		}
		for _, x := range r {
			if x.Interval == a && x.Folder != dirA {
				t.Errorf("Folder = %q, want %q", x.Folder, dirA)
			}
		}
	})

	t.Run("Overlap", func(t *testing.T) {
		mkRange(t, l, "X", tid.NewInterval(t2, tid.Open()))
		if _, err := l.Ranges("X"); !errors.Is(err, ErrOverlappingRanges) {
			t.Fatalf("Ranges() error = %v, want ErrOverlappingRanges", err)
		}
	})

	t.Run("CalibrationIDs", func(t *testing.T) {
		if err := mem.MakeDir("/calib/.git"); err != nil {
			t.Fatal(err)
		}
		if err := mem.MakeDir("/calib/A/MC"); err != nil {
			t.Fatal(err)
		}
		ids, err := l.CalibrationIDs()
		if err != nil {
			t.Fatalf("CalibrationIDs() failed: %v", err)
		}
		if !slices.Equal(ids, []string{"A", "X"}) {
			t.Errorf("CalibrationIDs() = %v", ids)
		}
	})
}

func TestRangesCache(t *testing.T) {
	mem := fsys.NewMem()
	l := New("/calib", mem, true)
	mkRange(t, l, "X", tid.NewInterval(t0, t0))

	r, err := l.Ranges("X")
	if err != nil || len(r) != 1 {
		t.Fatalf("Ranges() = %v, %v", r, err)
	}
	// The caller owns the returned slice.
	r[0].Folder = "mutated"

	mkRange(t, l, "X", tid.NewInterval(t1, t1))
	r, err = l.Ranges("X")
	if err != nil {
		t.Fatal(err)
	}
	if len(r) != 1 || r[0].Folder == "mutated" {
		t.Fatalf("cached Ranges() = %v", r)
	}
	l.Invalidate("X")
	if r, _ = l.Ranges("X"); len(r) != 2 {
		t.Fatalf("Ranges() after Invalidate = %v", r)
	}
	if l.cache.Len() != 1 {
		t.Errorf("cache Len() = %d", l.cache.Len())
	}
	l.InvalidateAll()
	if l.cache.Len() != 0 {
		t.Errorf("cache Len() after InvalidateAll = %d", l.cache.Len())
	}
}

func TestCache(t *testing.T) {
	c := NewCache()
	if _, ok := c.Get("X"); ok {
		t.Fatal("Get() on empty cache succeeded")
	}
	c.Set("X", nil)
	if r, ok := c.Get("X"); !ok || len(r) != 0 {
		t.Fatalf("Get() = %v, %v", r, ok)
	}
	in := []Range{{Interval: tid.NewInterval(t0, t1), Folder: "a"}}
	c.Set("Y", in)
	in[0].Folder = "b"
	if r, _ := c.Get("Y"); r[0].Folder != "a" {
		t.Errorf("Set() did not copy: %v", r)
	}
	c.Invalidate("Y")
	if _, ok := c.Get("Y"); ok {
		t.Error("Get() after Invalidate succeeded")
	}
}

func TestWatcher(t *testing.T) {
	root := t.TempDir()
	l := New(root, fsys.OS{}, true)
	if err := os.MkdirAll(filepath.Join(root, "X", "DataRanges"), 0o755); err != nil {
		t.Fatal(err)
	}
	if r, err := l.Ranges("X"); err != nil || len(r) != 0 {
		t.Fatalf("Ranges() = %v, %v", r, err)
	}
	w, err := NewWatcher(l)
	if err != nil {
		t.Fatalf("NewWatcher() failed: %v", err)
	}
	changed := make(chan string, 16)
	done := make(chan error, 1)
	ctx := t.Context()
	go func() { done <- w.Run(ctx, func(id string) { changed <- id }) }()

	wait := func() {
		t.Helper()
		select {
		case id := <-changed:
			if id != "X" {
				t.Errorf("onChange(%q), want X", id)
			}
		case <-time.After(10 * time.Second):
			t.Fatal("no change notification")
		}
	}
	// Another process adds a range. Create the day bucket first so the
	// watcher has a chance to watch it before the range folder appears.
	folder := l.RangeFolder("X", tid.NewInterval(t0, tid.Open()))
	if err := os.Mkdir(filepath.Dir(folder), 0o755); err != nil {
		t.Fatal(err)
	}
	wait()
	if err := os.Mkdir(folder, 0o755); err != nil {
		t.Fatal(err)
	}
	wait()
	if r, err := l.Ranges("X"); err != nil || len(r) != 1 {
		t.Fatalf("Ranges() after change = %v, %v", r, err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
}
