package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/maruel/calibdb/internal/calib"
	"github.com/maruel/calibdb/internal/cdata"
	"github.com/maruel/calibdb/internal/config"
	"github.com/maruel/calibdb/internal/git"
	"github.com/maruel/calibdb/internal/layout"
	"github.com/maruel/calibdb/internal/tid"
)

type command struct {
	name string
	help string
	run  func(a *app, ctx context.Context, args []string) error
}

var commands = []command{
	{"init", "create the data directory and write the configuration file", (*app).cmdInit},
	{"ids", "list calibration IDs with their number of payload files", (*app).cmdIDs},
	{"ranges", "<id>: list the ranges of a calibration ID", (*app).cmdRanges},
	{"get", "[-o file] <id> <tid>: print the data valid for a TID", (*app).cmdGet},
	{"add", "[-mode m] [-first t] [-last t] <id> <file>: store a payload", (*app).cmdAdd},
	{"count", "<id>: print the number of payload files", (*app).cmdCount},
	{"history", "[-n N] <id>: list the commits touching a calibration ID", (*app).cmdHistory},
	{"watch", "log changes made to the tree by other processes", (*app).cmdWatch},
}

// app holds the state shared by the commands.
type app struct {
	cfg     *config.Config
	cfgPath string
	out     io.Writer
	in      io.Reader

	db   *calib.DataBase
	repo *git.Repo
}

func (a *app) run(ctx context.Context, args []string) error {
	for _, c := range commands {
		if c.name == args[0] {
			return c.run(a, ctx, args[1:])
		}
	}
	return fmt.Errorf("unknown command %q", args[0])
}

// open opens the database described by the configuration.
func (a *app) open(ctx context.Context) error {
	opts := &calib.Options{EnableCaching: a.cfg.Cache, Compression: a.cfg.Compression}
	if a.cfg.Git.Enabled {
		repo, err := git.Open(ctx, a.cfg.DataDir, a.cfg.Git.Name, a.cfg.Git.Email)
		if err != nil {
			return err
		}
		a.repo = repo
		opts.Repo = repo
	}
	db, err := calib.New(a.cfg.DataDir, opts)
	if err != nil {
		return err
	}
	a.db = db
	return nil
}

func parseArgs(fs *flag.FlagSet, args []string, n int, names string) error {
	fs.SetOutput(io.Discard)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != n {
		return fmt.Errorf("%s: expected arguments %s", fs.Name(), names)
	}
	return nil
}

// parseTID accepts a TID token, optionally followed by +MC and +AdHoc, or
// OPEN.
func parseTID(s string) (tid.TID, error) {
	var id tid.TID
	err := id.UnmarshalText([]byte(s))
	return id, err
}

func (a *app) cmdInit(ctx context.Context, args []string) error {
	if err := parseArgs(flag.NewFlagSet("init", flag.ContinueOnError), args, 0, ""); err != nil {
		return err
	}
	if err := a.open(ctx); err != nil {
		return err
	}
	if _, err := os.Stat(a.cfgPath); errors.Is(err, os.ErrNotExist) {
		if err := a.cfg.Save(a.cfgPath); err != nil {
			return err
		}
		slog.InfoContext(ctx, "wrote configuration", "path", a.cfgPath)
	}
	fmt.Fprintf(a.out, "%s\n", a.db.Layout().Root())
	return nil
}

func (a *app) cmdIDs(ctx context.Context, args []string) error {
	if err := parseArgs(flag.NewFlagSet("ids", flag.ContinueOnError), args, 0, ""); err != nil {
		return err
	}
	if err := a.open(ctx); err != nil {
		return err
	}
	ids, err := a.db.CalibrationIDs()
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	for _, id := range ids {
		n, err := a.db.NumberOfCalibrationData(id)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%d\n", id, n)
	}
	return w.Flush()
}

func (a *app) cmdRanges(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("ranges", flag.ContinueOnError)
	if err := parseArgs(fs, args, 1, "<id>"); err != nil {
		return err
	}
	if err := a.open(ctx); err != nil {
		return err
	}
	l := a.db.Layout()
	ranges, err := l.Ranges(fs.Arg(0))
	if err != nil {
		return err
	}
	slices.SortFunc(ranges, func(x, y layout.Range) int { return tid.CompareStart(x.Interval, y.Interval) })
	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	for _, r := range ranges {
		cur, err := l.FS().Readlink(r.CurrentFile())
		if err != nil {
			cur = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", r.Start.Token(), r.Stop.Token(), cur)
	}
	return w.Flush()
}

func (a *app) cmdGet(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("get", flag.ContinueOnError)
	output := fs.String("o", "", "write the payload to this file")
	if err := parseArgs(fs, args, 2, "<id> <tid>"); err != nil {
		return err
	}
	target, err := parseTID(fs.Arg(1))
	if err != nil {
		return err
	}
	if err := a.open(ctx); err != nil {
		return err
	}
	lk, err := a.db.GetItem(ctx, fs.Arg(0), target)
	if err != nil {
		return err
	}
	if !lk.Found {
		fmt.Fprintf(a.out, "not found\nnext change: %s\n", lk.NextChange)
		return nil
	}
	r := &lk.Record
	w := tabwriter.NewWriter(a.out, 0, 0, 1, ' ', 0)
	fmt.Fprintf(w, "source:\t%s\n", lk.Source)
	fmt.Fprintf(w, "folder:\t%s\n", a.db.Layout().Relative(lk.Folder))
	fmt.Fprintf(w, "range:\t%s\n", r.Interval())
	fmt.Fprintf(w, "author:\t%s\n", r.Author)
	if r.Comment != "" {
		fmt.Fprintf(w, "comment:\t%s\n", r.Comment)
	}
	fmt.Fprintf(w, "created:\t%s\n", r.Created.Format(time.RFC3339))
	fmt.Fprintf(w, "size:\t%d\n", len(r.Payload))
	fmt.Fprintf(w, "digest:\t%s\n", r.Digest())
	fmt.Fprintf(w, "next change:\t%s\n", lk.NextChange)
	if err := w.Flush(); err != nil {
		return err
	}
	if *output != "" {
		return os.WriteFile(*output, r.Payload, 0o644) //nolint:gosec // G306: payloads are not secret.
	}
	return nil
}

func (a *app) cmdAdd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	mode := fs.String("mode", calib.RightOpen.String(), "default, strict or right-open")
	first := fs.String("first", "", "first TID the data is valid for")
	last := fs.String("last", tid.OpenToken, "last TID the data is valid for")
	mc := fs.Bool("mc", false, "store as MC data")
	author := fs.String("author", os.Getenv("USER"), "author of the data")
	comment := fs.String("comment", "", "free form comment")
	if err := parseArgs(fs, args, 2, "<id> <file>"); err != nil {
		return err
	}
	m, err := calib.ParseAddMode(*mode)
	if err != nil {
		return err
	}
	firstID := tid.Open()
	if *first != "" {
		if firstID, err = parseTID(*first); err != nil {
			return err
		}
	}
	lastID, err := parseTID(*last)
	if err != nil {
		return err
	}
	if *mc {
		firstID, lastID = firstID.Set(tid.MC), lastID.Set(tid.MC)
	}
	payload, err := a.readPayload(fs.Arg(1))
	if err != nil {
		return err
	}
	if err := a.open(ctx); err != nil {
		return err
	}
	rec := &cdata.Record{
		CalibrationID: fs.Arg(0),
		FirstID:       firstID,
		LastID:        lastID,
		Author:        *author,
		Comment:       *comment,
		Created:       time.Now().UTC(),
		Payload:       payload,
	}
	if err := a.db.AddItem(ctx, rec, m); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s\n", rec.Digest())
	return nil
}

func (a *app) readPayload(name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(a.in)
	}
	return os.ReadFile(filepath.Clean(name))
}

func (a *app) cmdCount(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("count", flag.ContinueOnError)
	if err := parseArgs(fs, args, 1, "<id>"); err != nil {
		return err
	}
	if err := a.open(ctx); err != nil {
		return err
	}
	n, err := a.db.NumberOfCalibrationData(fs.Arg(0))
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%d\n", n)
	return nil
}

func (a *app) cmdHistory(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	n := fs.Int("n", 20, "maximum number of commits")
	if err := parseArgs(fs, args, 1, "<id>"); err != nil {
		return err
	}
	if !a.cfg.Git.Enabled {
		return errors.New("history requires git to be enabled")
	}
	if err := a.open(ctx); err != nil {
		return err
	}
	rel, err := filepath.Rel(a.repo.Dir(), filepath.Join(a.db.Layout().Root(), fs.Arg(0)))
	if err != nil {
		return err
	}
	commits, err := a.repo.History(ctx, rel, *n)
	if err != nil {
		return err
	}
	for _, c := range commits {
		fmt.Fprintf(a.out, "%s %s %s %s\n", c.Hash[:12], c.AuthorDate.UTC().Format(time.DateTime), c.Author, c.Message)
	}
	return nil
}

func (a *app) cmdWatch(ctx context.Context, args []string) error {
	if err := parseArgs(flag.NewFlagSet("watch", flag.ContinueOnError), args, 0, ""); err != nil {
		return err
	}
	if err := a.open(ctx); err != nil {
		return err
	}
	w, err := layout.NewWatcher(a.db.Layout())
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "watching", "root", a.db.Layout().Root())
	return w.Run(ctx, func(id string) {
		fmt.Fprintf(a.out, "%s\n", id)
	})
}
