package cliconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig is the TOML form of the durable settings. Per-invocation
// operations (action, shell, dump loop, rail) stay flag-only; a config
// file describes the bench, not the day's work. Pointer fields
// distinguish "absent" from an explicit false or zero.
type FileConfig struct {
	VP         string `toml:"vp"`
	Conduit    *int   `toml:"conduit"`
	Benchmark  *bool  `toml:"benchmark"`
	Loopback   *bool  `toml:"loopback"`
	TablePath  string `toml:"table"`
	WatchTable *bool  `toml:"watch_table"`
	LogLevel   string `toml:"log_level"`
}

// Load reads and parses a TOML config file. A missing file is not an
// error; it yields an empty FileConfig so defaults and flags decide
// everything.
func Load(path string) (FileConfig, error) {
	var fc FileConfig

	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fc, nil
	}
	if err != nil {
		return fc, fmt.Errorf("cliconfig: read %s: %w", path, err)
	}

	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, fmt.Errorf("cliconfig: parse %s: %w", path, err)
	}

	return fc, nil
}

// DefaultConfigPath returns ~/.benchlink/config.toml, or "" if the home
// directory cannot be determined.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".benchlink", "config.toml")
	}

	return ""
}

// Apply copies file values onto cfg for every flag the user did not set
// explicitly. Flag names key the changed map.
func (fc FileConfig) Apply(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("vp", fc.VP, &cfg.VP)
	s.setString("table", fc.TablePath, &cfg.TablePath)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)

	s.setBool("benchmark", fc.Benchmark, &cfg.Benchmark)
	s.setBool("loopback", fc.Loopback, &cfg.Loopback)
	s.setBool("watch-table", fc.WatchTable, &cfg.WatchTable)

	return s.setConduit("conduit", fc.Conduit, &cfg.Conduit)
}
