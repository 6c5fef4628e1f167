// Package config loads per-command TOML configuration, the
// `--config`-mode alternative to supplying every flag on the command
// line.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// GlobalConfig holds the flags every subcommand accepts.
type GlobalConfig struct {
	Input      string `toml:"input"`
	Output     string `toml:"output"`
	Delimiter  string `toml:"delimiter"`
	NoHeaders  bool   `toml:"noHeaders"`
	Jobs       int    `toml:"jobs"`
	Batch      int    `toml:"batch"`
	// ReportJSON, when non-empty, is a path the command's run report
	// (metadata, row counts, warnings, errors) is marshaled to as JSON
	// alongside the command's primary tabular output.
	ReportJSON string `toml:"reportJSON"`
}

// StatsConfig is the `stats` subcommand's configuration section.
type StatsConfig struct {
	Global        GlobalConfig `toml:"global"`
	Cardinality   bool         `toml:"cardinality"`
	Mode          bool         `toml:"mode"`
	Quantiles     bool         `toml:"quantiles"`
	InferBoolean  bool         `toml:"inferBoolean"`
	InferDate     bool         `toml:"inferDate"`
	PreferDMY     bool         `toml:"preferDMY"`
	DecimalPlaces int          `toml:"decimalPlaces"`
	ModeTieCap    int          `toml:"modeTieCap"`
	StatsMode     string       `toml:"statsMode"` // auto | force | none
	TypesOnly     bool         `toml:"typesOnly"`
}

// FrequencyConfig is the `frequency` subcommand's configuration section.
type FrequencyConfig struct {
	Global        GlobalConfig `toml:"global"`
	Selection     string       `toml:"selection"`
	Limit         int          `toml:"limit"`
	IgnoreCase    bool         `toml:"ignoreCase"`
	NoNulls       bool         `toml:"noNulls"`
	OtherText     string       `toml:"otherText"`
	OtherSorted   bool         `toml:"otherSorted"`
	OtherMinCount int          `toml:"otherMinCount"`
	Asc           bool         `toml:"asc"`
	PctDecPlaces  int          `toml:"pctDecPlaces"`
	Chart         string       `toml:"chart"`
	StatsMode     string       `toml:"statsMode"`
}

// ScriptConfig is the `script` (apply) subcommand's configuration
// section.
type ScriptConfig struct {
	Global     GlobalConfig `toml:"global"`
	Script     string       `toml:"script"`
	FilterMode bool         `toml:"filter"`
	NewColumns []string     `toml:"newColumns"`
	MaxErrors  int          `toml:"maxErrors"`
}

// IndexConfig is the `index` subcommand's configuration section.
type IndexConfig struct {
	Global GlobalConfig `toml:"global"`
	Force  bool         `toml:"force"`
}

// SelectConfig is the `select` subcommand's configuration section.
type SelectConfig struct {
	Global    GlobalConfig `toml:"global"`
	Selection string       `toml:"selection"`
}

// Config is the top-level TOML document; only the section matching
// the invoked subcommand needs to be present.
type Config struct {
	Stats     *StatsConfig     `toml:"stats"`
	Frequency *FrequencyConfig `toml:"frequency"`
	Script    *ScriptConfig    `toml:"script"`
	Index     *IndexConfig     `toml:"index"`
	Select    *SelectConfig    `toml:"select"`
}

// Load reads and decodes a TOML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	var cfg Config
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return &cfg, nil
}

// NormalizeGlobal fills in the documented CLI defaults for any field
// left at its zero value.
func NormalizeGlobal(g GlobalConfig, defaultJobs int) GlobalConfig {
	if g.Delimiter == "" {
		g.Delimiter = ","
	}
	if g.Jobs <= 0 {
		g.Jobs = defaultJobs
	}
	if g.Batch <= 0 {
		g.Batch = 50_000
	}
	return g
}
