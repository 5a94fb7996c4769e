// Package config loads run settings for the simulator from YAML.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/talgya/reson/internal/parser"
)

// Config is a complete run description.
type Config struct {
	Definitions string    `yaml:"definitions"`
	StartTime   time.Time `yaml:"start_time"`
	Duration    string    `yaml:"duration"`     // Time string, e.g. "7d"
	ReportEvery string    `yaml:"report_every"` // Time string, e.g. "1h"
	LogLevel    string    `yaml:"log_level"`    // debug, info, warn, error
	Listen      string    `yaml:"listen"`       // HTTP address for the live API, empty = off

	Sinks Sinks `yaml:"sinks"`
}

// Sinks selects where report rows go. Empty fields are disabled.
type Sinks struct {
	CSV      string `yaml:"csv"`
	JSONLDir string `yaml:"jsonl_dir"`
	SQLite   string `yaml:"sqlite"`
}

// Default mirrors the classic run: one week from Monday 2024-01-01 09:00 UTC,
// hourly rows to output.csv.
func Default() Config {
	return Config{
		StartTime:   time.Date(2024, time.January, 1, 9, 0, 0, 0, time.UTC),
		Duration:    "7d",
		ReportEvery: "1h",
		LogLevel:    "info",
		Sinks: Sinks{
			CSV: "output.csv",
		},
	}
}

// Load reads a YAML file on top of Default.
func Load(path string) (Config, error) {
	c := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return c, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Validate checks every field that can be checked without touching disk.
func (c Config) Validate() error {
	if c.Definitions == "" {
		return fmt.Errorf("definitions: path is required")
	}
	if _, err := c.DurationSeconds(); err != nil {
		return fmt.Errorf("duration: %w", err)
	}
	every, err := c.ReportSeconds()
	if err != nil {
		return fmt.Errorf("report_every: %w", err)
	}
	if every == 0 {
		return fmt.Errorf("report_every: must be at least 1s")
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// DurationSeconds returns the run length in ticks.
func (c Config) DurationSeconds() (uint64, error) {
	v, err := parser.ParseDuration(c.Duration)
	return uint64(v), err
}

// ReportSeconds returns the reporting interval in ticks.
func (c Config) ReportSeconds() (uint64, error) {
	v, err := parser.ParseDuration(c.ReportEvery)
	return uint64(v), err
}

// Level maps LogLevel onto slog.
func (c Config) Level() (slog.Level, error) {
	switch strings.ToLower(c.LogLevel) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("log_level: unknown level %q", c.LogLevel)
}
