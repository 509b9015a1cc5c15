// Package cliconfig holds the benchlink CLI's runtime configuration, its
// TOML file form, and the precedence rules between them: defaults, then
// config file, then explicitly set flags.
package cliconfig

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/arcwave/benchlink/logger"
)

// DefaultTablePath is where the rail sweep persists learned cells unless
// --table points elsewhere.
const DefaultTablePath = "track_data.csv"

// Config holds the CLI configuration for benchlink.
type Config struct {
	// VP is the device address as VID:PID, four hex digits each.
	VP string

	// Operations. At most one line of work per invocation, matching the
	// flag that requested it.
	Action   string
	Shell    bool
	DumpLoop string
	Rail     string

	Benchmark bool
	Conduit   uint8
	Loopback  bool

	TablePath  string
	WatchTable bool
	LogLevel   string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Conduit:   1,
		TablePath: DefaultTablePath,
		LogLevel:  "info",
	}
}

// Validate checks the configuration for errors. Formats that a later step
// would only discover mid-operation (device address, dump destination) are
// rejected here so bad invocations fail before touching the device.
func (c *Config) Validate() error {
	if !c.Loopback {
		if c.VP == "" {
			return errors.New("cliconfig: --vp is required unless --loopback is set")
		}
		if _, _, err := ParseVP(c.VP); err != nil {
			return err
		}
	}

	if c.DumpLoop != "" {
		if _, _, err := ParseDumpLoop(c.DumpLoop); err != nil {
			return err
		}
	}

	if c.TablePath == "" {
		c.TablePath = DefaultTablePath
	}

	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}

	return nil
}

// ParseVP splits a VID:PID device address into its numeric halves. Both
// halves are four hex digits, e.g. "1D50:602B".
func ParseVP(vp string) (vendorID, productID uint16, err error) {
	parts := strings.Split(vp, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("cliconfig: device address %q is not VID:PID", vp)
	}

	vid, err := strconv.ParseUint(parts[0], 16, 16)
	if err != nil {
		return 0, 0, fmt.Errorf("cliconfig: vendor ID %q: %w", parts[0], err)
	}
	pid, err := strconv.ParseUint(parts[1], 16, 16)
	if err != nil {
		return 0, 0, fmt.Errorf("cliconfig: product ID %q: %w", parts[1], err)
	}

	return uint16(vid), uint16(pid), nil
}

// ParseDumpLoop splits a dump-loop argument into channel and destination
// path. The form is "<channel>:<file>", channel in decimal.
func ParseDumpLoop(arg string) (channel uint8, path string, err error) {
	idx := strings.IndexByte(arg, ':')
	if idx < 0 {
		return 0, "", fmt.Errorf("cliconfig: dump-loop argument %q is not <channel>:<file>", arg)
	}

	ch, err := strconv.ParseUint(arg[:idx], 10, 8)
	if err != nil || ch > 0x7F {
		return 0, "", fmt.Errorf("cliconfig: dump-loop channel %q out of range [0, 127]", arg[:idx])
	}

	path = arg[idx+1:]
	if path == "" {
		return 0, "", fmt.Errorf("cliconfig: dump-loop argument %q names no file", arg)
	}

	return uint8(ch), path, nil
}

// ParseLevel maps a level name onto the logger's level scale.
func ParseLevel(name string) (logger.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return logger.DebugLevel, nil
	case "info", "":
		return logger.InfoLevel, nil
	case "warn":
		return logger.WarnLevel, nil
	case "error":
		return logger.ErrorLevel, nil
	default:
		return logger.InfoLevel, fmt.Errorf("cliconfig: unknown log level %q", name)
	}
}

// configSetter applies file values while respecting flag precedence: a
// value is only applied if the corresponding flag was not explicitly set.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

func (s *configSetter) setConduit(flag string, value *int, dst *uint8) error {
	if value == nil || s.changed[flag] {
		return nil
	}
	if *value < 0 || *value > 0xFF {
		return fmt.Errorf("cliconfig: conduit %d out of range [0, 255]", *value)
	}
	*dst = uint8(*value)

	return nil
}
