// Package config loads and saves the calibdb.yaml configuration file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/maruel/calibdb/internal/cdata"
	"gopkg.in/yaml.v3"
)

// DefaultFile is the configuration file name looked up by default.
const DefaultFile = "calibdb.yaml"

// Config is the configuration of a calibration database.
type Config struct {
	// DataDir is the root of the calibration tree.
	DataDir string `yaml:"data_dir"`

	// Cache enables caching of scanned ranges for the process lifetime.
	Cache bool `yaml:"cache"`

	// Compression is used for newly written payload files.
	Compression cdata.Compression `yaml:"compression"`

	// Git versions every insertion when enabled.
	Git Git `yaml:"git"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

// Git configures versioning of the data directory.
type Git struct {
	Enabled bool   `yaml:"enabled"`
	Name    string `yaml:"name,omitempty"`
	Email   string `yaml:"email,omitempty"`
}

// Validate checks the git settings.
func (g *Git) Validate() error {
	if g.Email != "" && !strings.Contains(g.Email, "@") {
		return fmt.Errorf("invalid email %q", g.Email)
	}
	return nil
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		DataDir:     "calibration",
		Cache:       true,
		Compression: cdata.CompressionZstd,
		LogLevel:    "info",
	}
}

// Level returns LogLevel as a slog.Level.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	return l, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("data_dir is required")
	}
	if _, err := cdata.ParseCompression(c.Compression.String()); err != nil {
		return fmt.Errorf("compression: %w", err)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if err := c.Git.Validate(); err != nil {
		return fmt.Errorf("git: %w", err)
	}
	return nil
}

// Load reads the configuration at path. A missing file yields Default.
//
// A relative data_dir is resolved against the directory of path.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is chosen by the operator.
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		return cfg, nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if cfg.DataDir != "" && !filepath.IsAbs(cfg.DataDir) {
		cfg.DataDir = filepath.Join(filepath.Dir(path), cfg.DataDir)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes c to path.
func (c *Config) Save(path string) error {
	if err := c.Validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
