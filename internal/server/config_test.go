package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vision-server.hcl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nonexistent.hcl"))
	require.NoError(t, err)

	assert.Equal(t, "localhost:8000", cfg.ListenAddr())
	assert.Equal(t, 5*time.Second, cfg.Cooldown())
	assert.Equal(t, time.Second, cfg.ExtractInterval())
	assert.Equal(t, 2, cfg.Detection.Quorum)
	assert.InDelta(t, 2.0, cfg.Solver.BigBlind, 0.001)
	assert.Empty(t, cfg.Server.OCREngine)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfigPartialFileFillsDefaults(t *testing.T) {
	path := writeConfigFile(t, `
server {
  port = 9100
}

detection {
  cooldown_ms = 2500
  quorum      = 3
}

solver {
  big_blind = 5.0
}
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "localhost:9100", cfg.ListenAddr())
	assert.Equal(t, 2500*time.Millisecond, cfg.Cooldown())
	assert.Equal(t, 3, cfg.Detection.Quorum)
	assert.InDelta(t, 5.0, cfg.Solver.BigBlind, 0.001)

	// Unset fields keep the defaults.
	assert.Equal(t, "info", cfg.Server.LogLevel)
	assert.InDelta(t, 0.6, cfg.Detection.ControlsThreshold, 0.001)
	assert.InDelta(t, 0.66, cfg.Solver.RaiseFraction, 0.001)
	assert.Equal(t, "unknown", cfg.Detection.HeroPosition)
}

func TestLoadConfigSingleBlock(t *testing.T) {
	// Omitted blocks are as valid as omitted fields.
	path := writeConfigFile(t, `
server {
  port = 9100
}
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "localhost:9100", cfg.ListenAddr())
	assert.Equal(t, 5*time.Second, cfg.Cooldown())
	assert.Equal(t, 2, cfg.Detection.Quorum)
	assert.InDelta(t, 2.0, cfg.Solver.BigBlind, 0.001)
	assert.Equal(t, "unknown", cfg.Detection.HeroPosition)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfigEmptyFile(t *testing.T) {
	cfg, err := LoadConfig(writeConfigFile(t, ""))
	require.NoError(t, err)
	assert.Equal(t, "localhost:8000", cfg.ListenAddr())
	require.NoError(t, cfg.Validate())
}

func TestLoadConfigFullFile(t *testing.T) {
	path := writeConfigFile(t, `
server {
  address    = "0.0.0.0"
  port       = 8080
  log_level  = "debug"
  ocr_engine = "/usr/local/bin/table-ocr"
}

detection {
  cooldown_ms         = 4000
  controls_threshold  = 0.7
  timer_threshold     = 0.55
  highlight_threshold = 0.65
  quorum              = 2
  extract_interval_ms = 500
  hero_position       = "button"
}

solver {
  big_blind       = 1.0
  default_pot     = 30.0
  raise_fraction  = 0.75
  default_players = 9
}
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "0.0.0.0:8080", cfg.ListenAddr())
	assert.Equal(t, "/usr/local/bin/table-ocr", cfg.Server.OCREngine)
	assert.Equal(t, 500*time.Millisecond, cfg.ExtractInterval())
	assert.Equal(t, "button", cfg.Detection.HeroPosition)
	assert.Equal(t, 9, cfg.Solver.DefaultPlayers)
}

func TestLoadConfigRejectsMalformedHCL(t *testing.T) {
	path := writeConfigFile(t, `server { port = `)

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"valid defaults", func(c *Config) {}, ""},
		{"port too low", func(c *Config) { c.Server.Port = 0 }, "invalid port"},
		{"port too high", func(c *Config) { c.Server.Port = 70000 }, "invalid port"},
		{"quorum zero", func(c *Config) { c.Detection.Quorum = 0 }, "quorum"},
		{"quorum above cue count", func(c *Config) { c.Detection.Quorum = 4 }, "quorum"},
		{"threshold out of range", func(c *Config) { c.Detection.TimerThreshold = 1.5 }, "timer_threshold"},
		{"negative big blind", func(c *Config) { c.Solver.BigBlind = -1 }, "big_blind"},
		{"raise fraction too large", func(c *Config) { c.Solver.RaiseFraction = 3 }, "raise_fraction"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			}
		})
	}
}
