package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/maruel/calibdb/internal/cdata"
)

func TestLoad(t *testing.T) {
	t.Run("Missing", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), DefaultFile))
		if err != nil {
			t.Fatalf("Load() failed: %v", err)
		}
		if *cfg != *Default() {
			t.Errorf("Load() = %+v, want defaults", cfg)
		}
	})

	t.Run("File", func(t *testing.T) {
		dir := t.TempDir()
		p := filepath.Join(dir, DefaultFile)
		content := `data_dir: db
cache: false
compression: lz4
git:
  enabled: true
  name: Alice
  email: alice@example.com
log_level: debug
`
		if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
		cfg, err := Load(p)
		if err != nil {
			t.Fatalf("Load() failed: %v", err)
		}
		want := Config{
			DataDir:     filepath.Join(dir, "db"),
			Compression: cdata.CompressionLZ4,
			Git:         Git{Enabled: true, Name: "Alice", Email: "alice@example.com"},
			LogLevel:    "debug",
		}
		if *cfg != want {
			t.Errorf("Load() = %+v, want %+v", cfg, want)
		}
		if l, _ := cfg.Level(); l != slog.LevelDebug {
			t.Errorf("Level() = %v", l)
		}
	})

	t.Run("Invalid", func(t *testing.T) {
		tests := []struct {
			name    string
			content string
			want    string
		}{
			{"Syntax", "data_dir: [", "failed to parse"},
			{"Compression", "compression: gzip\n", "unknown compression"},
			{"LogLevel", "log_level: loud\n", "log_level"},
			{"Email", "git:\n  email: nope\n", "git: invalid email"},
			{"DataDir", "data_dir: \"\"\n", "data_dir is required"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				p := filepath.Join(t.TempDir(), DefaultFile)
				if err := os.WriteFile(p, []byte(tt.content), 0o600); err != nil {
					t.Fatal(err)
				}
				_, err := Load(p)
				if err == nil || !strings.Contains(err.Error(), tt.want) {
					t.Errorf("Load() error = %v, want %q", err, tt.want)
				}
			})
		}
	})
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, DefaultFile)
	cfg := Default()
	cfg.DataDir = filepath.Join(dir, "data")
	cfg.Compression = cdata.CompressionS2
	cfg.Git = Git{Enabled: true, Email: "bot@example.com"}
	if err := cfg.Save(p); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	got, err := Load(p)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if *got != *cfg {
		t.Errorf("Load() = %+v, want %+v", got, cfg)
	}
	data, err := os.ReadFile(p)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "compression: s2") {
		t.Errorf("saved config:\n%s", data)
	}

	bad := Default()
	bad.LogLevel = "loud"
	if err := bad.Save(p); err == nil {
		t.Error("Save() of invalid config succeeded")
	}
}
