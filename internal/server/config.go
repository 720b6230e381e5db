package server

import (
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// Config is the complete server configuration. The blocks are
// pointers so a config file may omit any of them; LoadConfig fills a
// missing block with its defaults.
type Config struct {
	Server    *ServerSettings    `hcl:"server,block"`
	Detection *DetectionSettings `hcl:"detection,block"`
	Solver    *SolverSettings    `hcl:"solver,block"`
}

// ServerSettings contains the listen and logging configuration.
type ServerSettings struct {
	Address  string `hcl:"address,optional"`
	Port     int    `hcl:"port,optional"`
	LogLevel string `hcl:"log_level,optional"`
	// OCREngine is the external text-recognition binary. Empty selects
	// the null recognizer, which reads nothing and leaves every field
	// unavailable.
	OCREngine string `hcl:"ocr_engine,optional"`
}

// DetectionSettings tunes the signal fusion and extraction cadence.
type DetectionSettings struct {
	CooldownMS         int     `hcl:"cooldown_ms,optional"`
	ControlsThreshold  float64 `hcl:"controls_threshold,optional"`
	TimerThreshold     float64 `hcl:"timer_threshold,optional"`
	HighlightThreshold float64 `hcl:"highlight_threshold,optional"`
	Quorum             int     `hcl:"quorum,optional"`
	ExtractIntervalMS  int     `hcl:"extract_interval_ms,optional"`
	HeroPosition       string  `hcl:"hero_position,optional"`
}

// SolverSettings tunes the decision engine. Parameters, not fixed
// truths; see solver.Params.
type SolverSettings struct {
	BigBlind       float64 `hcl:"big_blind,optional"`
	DefaultPot     float64 `hcl:"default_pot,optional"`
	RaiseFraction  float64 `hcl:"raise_fraction,optional"`
	DefaultPlayers int     `hcl:"default_players,optional"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		Server: &ServerSettings{
			Address:  "localhost",
			Port:     8000,
			LogLevel: "info",
		},
		Detection: &DetectionSettings{
			CooldownMS:         5000,
			ControlsThreshold:  0.6,
			TimerThreshold:     0.5,
			HighlightThreshold: 0.6,
			Quorum:             2,
			ExtractIntervalMS:  1000,
			HeroPosition:       "unknown",
		},
		Solver: &SolverSettings{
			BigBlind:       2.0,
			DefaultPot:     50.0,
			RaiseFraction:  0.66,
			DefaultPlayers: 6,
		},
	}
}

// LoadConfig loads configuration from an HCL file, falling back to
// defaults when the file does not exist and filling in unset values.
func LoadConfig(filename string) (*Config, error) {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var config Config
	diags = gohcl.DecodeBody(file.Body, nil, &config)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}

	d := DefaultConfig()
	if config.Server == nil {
		config.Server = d.Server
	}
	if config.Detection == nil {
		config.Detection = d.Detection
	}
	if config.Solver == nil {
		config.Solver = d.Solver
	}
	if config.Server.Address == "" {
		config.Server.Address = d.Server.Address
	}
	if config.Server.Port == 0 {
		config.Server.Port = d.Server.Port
	}
	if config.Server.LogLevel == "" {
		config.Server.LogLevel = d.Server.LogLevel
	}
	if config.Detection.CooldownMS == 0 {
		config.Detection.CooldownMS = d.Detection.CooldownMS
	}
	if config.Detection.ControlsThreshold == 0 {
		config.Detection.ControlsThreshold = d.Detection.ControlsThreshold
	}
	if config.Detection.TimerThreshold == 0 {
		config.Detection.TimerThreshold = d.Detection.TimerThreshold
	}
	if config.Detection.HighlightThreshold == 0 {
		config.Detection.HighlightThreshold = d.Detection.HighlightThreshold
	}
	if config.Detection.Quorum == 0 {
		config.Detection.Quorum = d.Detection.Quorum
	}
	if config.Detection.ExtractIntervalMS == 0 {
		config.Detection.ExtractIntervalMS = d.Detection.ExtractIntervalMS
	}
	if config.Detection.HeroPosition == "" {
		config.Detection.HeroPosition = d.Detection.HeroPosition
	}
	if config.Solver.BigBlind == 0 {
		config.Solver.BigBlind = d.Solver.BigBlind
	}
	if config.Solver.DefaultPot == 0 {
		config.Solver.DefaultPot = d.Solver.DefaultPot
	}
	if config.Solver.RaiseFraction == 0 {
		config.Solver.RaiseFraction = d.Solver.RaiseFraction
	}
	if config.Solver.DefaultPlayers == 0 {
		config.Solver.DefaultPlayers = d.Solver.DefaultPlayers
	}

	return &config, nil
}

// Validate checks the configuration for nonsensical values.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Detection.Quorum < 1 || c.Detection.Quorum > 3 {
		return fmt.Errorf("quorum must be between 1 and 3, got %d", c.Detection.Quorum)
	}
	for name, v := range map[string]float64{
		"controls_threshold":  c.Detection.ControlsThreshold,
		"timer_threshold":     c.Detection.TimerThreshold,
		"highlight_threshold": c.Detection.HighlightThreshold,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be in [0,1], got %f", name, v)
		}
	}
	if c.Solver.BigBlind <= 0 {
		return fmt.Errorf("big_blind must be positive, got %f", c.Solver.BigBlind)
	}
	if c.Solver.RaiseFraction <= 0 || c.Solver.RaiseFraction > 2 {
		return fmt.Errorf("raise_fraction must be in (0,2], got %f", c.Solver.RaiseFraction)
	}
	return nil
}

// Cooldown returns the trigger cooldown as a duration.
func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.Detection.CooldownMS) * time.Millisecond
}

// ExtractInterval returns the extractor cadence as a duration.
func (c *Config) ExtractInterval() time.Duration {
	return time.Duration(c.Detection.ExtractIntervalMS) * time.Millisecond
}

// ListenAddr returns the host:port to bind.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}
