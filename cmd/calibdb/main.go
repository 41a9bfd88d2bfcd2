// Package main is the calibdb command line tool.
//
// calibdb inspects and feeds a calibration database: a directory tree holding
// calibration data per calibration ID, valid either by default, for MC, or
// for ranges of TIDs. Settings are read from calibdb.yaml and can be
// overridden with flags.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/maruel/calibdb/internal/cdata"
	"github.com/maruel/calibdb/internal/config"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

func main() {
	if err := mainImpl(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "calibdb: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "usage: calibdb [flags] <command> [args]\n\nCommands:\n")
	for _, c := range commands {
		fmt.Fprintf(out, "  %-8s %s\n", c.name, c.help)
	}
	fmt.Fprintf(out, "\nFlags:\n")
	flag.PrintDefaults()
}

func mainImpl() error {
	version := flag.Bool("version", false, "Print version and exit")
	cfgPath := flag.String("config", config.DefaultFile, "Configuration file")
	dataDir := flag.String("data-dir", "", "Calibration data directory (overrides data_dir)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	compression := flag.String("compression", "", "Compression of new payload files (none, zstd, s2, lz4)")
	cache := flag.Bool("cache", true, "Cache scanned ranges")
	useGit := flag.Bool("git", false, "Commit every insertion to a git repository at the data directory")
	flag.Usage = usage
	flag.Parse()

	if *version {
		printVersion()
		return nil
	}
	if flag.NArg() == 0 {
		usage()
		return errors.New("command is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()
	ll := &slog.LevelVar{}
	ll.Set(slog.LevelInfo)
	slog.SetDefault(newLogger(os.Stderr, ll, !isatty.IsTerminal(os.Stderr.Fd())))

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	// Flags win over the file only when given explicitly.
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if set["data-dir"] {
		cfg.DataDir = *dataDir
	}
	if set["log-level"] {
		cfg.LogLevel = *logLevel
	}
	if set["compression"] {
		c, err := cdata.ParseCompression(*compression)
		if err != nil {
			return err
		}
		cfg.Compression = c
	}
	if set["cache"] {
		cfg.Cache = *cache
	}
	if set["git"] {
		cfg.Git.Enabled = *useGit
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	level, err := cfg.Level()
	if err != nil {
		return err
	}
	ll.Set(level)

	a := &app{cfg: cfg, cfgPath: *cfgPath, out: os.Stdout, in: os.Stdin}
	return a.run(ctx, flag.Args())
}

// newLogger returns a tint logger that drops zero valued attributes.
func newLogger(f *os.File, level slog.Leveler, noColor bool) *slog.Logger {
	return slog.New(tint.NewHandler(colorable.NewColorable(f), &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05.000", // Like time.TimeOnly plus milliseconds.
		NoColor:    noColor,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			skip := false
			switch t := a.Value.Any().(type) {
			case string:
				skip = t == ""
			case bool:
				skip = !t
			case int64:
				skip = t == 0
			case uint64:
				skip = t == 0
			case time.Time:
				skip = t.IsZero()
			case time.Duration:
				skip = t == 0
			case nil:
				skip = true
			}
			if skip {
				return slog.Attr{}
			}
			return a
		},
	}))
}

func printVersion() {
	version, goVersion, revision, dirty := getBuildInfo()
	fmt.Printf("calibdb %s\n", version)
	fmt.Printf("  Go version: %s\n", goVersion)
	fmt.Printf("  Revision:   %s\n", revision)
	if dirty {
		fmt.Printf("  Modified:   true\n")
	}
}

func getBuildInfo() (version, goVersion, revision string, dirty bool) {
	version = "unknown"
	goVersion = "unknown"
	revision = "unknown"
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	version = info.Main.Version
	if version == "" || version == "(devel)" {
		version = "dev"
	}
	goVersion = info.GoVersion
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.modified":
			dirty = setting.Value == "true"
		}
	}
	return
}
