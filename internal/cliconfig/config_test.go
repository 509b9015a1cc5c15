package cliconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcwave/benchlink/logger"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, uint8(1), cfg.Conduit)
	assert.Equal(t, DefaultTablePath, cfg.TablePath)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.Loopback)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		description string
		mutate      func(*Config)
		wantErr     bool
	}{
		{
			description: "device address present",
			mutate:      func(c *Config) { c.VP = "1D50:602B" },
		},
		{
			description: "loopback needs no device address",
			mutate:      func(c *Config) { c.Loopback = true },
		},
		{
			description: "missing device address",
			mutate:      func(c *Config) {},
			wantErr:     true,
		},
		{
			description: "malformed device address",
			mutate:      func(c *Config) { c.VP = "1D50" },
			wantErr:     true,
		},
		{
			description: "malformed dump loop",
			mutate: func(c *Config) {
				c.Loopback = true
				c.DumpLoop = "out.bin"
			},
			wantErr: true,
		},
		{
			description: "unknown log level",
			mutate: func(c *Config) {
				c.Loopback = true
				c.LogLevel = "loud"
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestConfigValidateFillsTablePath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Loopback = true
	cfg.TablePath = ""

	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultTablePath, cfg.TablePath)
}

func TestParseVP(t *testing.T) {
	tests := []struct {
		description string
		vp          string
		wantVID     uint16
		wantPID     uint16
		wantErr     bool
	}{
		{description: "upper case", vp: "1D50:602B", wantVID: 0x1D50, wantPID: 0x602B},
		{description: "lower case", vp: "04b4:8613", wantVID: 0x04B4, wantPID: 0x8613},
		{description: "missing colon", vp: "1D50602B", wantErr: true},
		{description: "extra segment", vp: "1D50:602B:0001", wantErr: true},
		{description: "not hex", vp: "1D50:wxyz", wantErr: true},
		{description: "vendor overflow", vp: "12345:0001", wantErr: true},
		{description: "empty", vp: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			vid, pid, err := ParseVP(tt.vp)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantVID, vid)
			assert.Equal(t, tt.wantPID, pid)
		})
	}
}

func TestParseDumpLoop(t *testing.T) {
	tests := []struct {
		description string
		arg         string
		wantChannel uint8
		wantPath    string
		wantErr     bool
	}{
		{description: "channel and file", arg: "5:out.bin", wantChannel: 5, wantPath: "out.bin"},
		{description: "path with colon", arg: "0:dir:with:colons.bin", wantChannel: 0, wantPath: "dir:with:colons.bin"},
		{description: "channel too high", arg: "128:out.bin", wantErr: true},
		{description: "channel not a number", arg: "abc:out.bin", wantErr: true},
		{description: "no file", arg: "5:", wantErr: true},
		{description: "no colon", arg: "out.bin", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			ch, path, err := ParseDumpLoop(tt.arg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantChannel, ch)
			assert.Equal(t, tt.wantPath, path)
		})
	}
}

func TestParseLevel(t *testing.T) {
	lv, err := ParseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, logger.DebugLevel, lv)

	lv, err = ParseLevel("WARN")
	require.NoError(t, err)
	assert.Equal(t, logger.WarnLevel, lv)

	lv, err = ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, logger.InfoLevel, lv)

	_, err = ParseLevel("loud")
	require.Error(t, err)
}
