package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all daemon configuration.
type Config struct {
	Scan     ScanConfig    `yaml:"scan"`
	Session  SessionConfig `yaml:"session"`
	Cleanup  CleanupConfig `yaml:"cleanup"`
	LogLevel string        `yaml:"log_level"`
}

// ScanConfig holds device discovery settings.
type ScanConfig struct {
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// SessionConfig holds session persistence paths.
type SessionConfig struct {
	DBPath   string `yaml:"db_path"`
	VideoDir string `yaml:"video_dir"`
}

// CleanupConfig holds the session maintenance schedule.
type CleanupConfig struct {
	Schedule      string `yaml:"schedule"` // cron expression
	RetentionDays int    `yaml:"retention_days"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "liftlink")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	home, _ := os.UserHomeDir()
	dataDir := filepath.Join(home, ".local", "share", "liftlink")

	return &Config{
		Scan: ScanConfig{
			TimeoutSeconds: 5,
		},
		Session: SessionConfig{
			DBPath:   filepath.Join(dataDir, "sessions.db"),
			VideoDir: filepath.Join(dataDir, "videos"),
		},
		Cleanup: CleanupConfig{
			Schedule:      "0 3 * * *",
			RetentionDays: 30,
		},
		LogLevel: "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled with
// defaults. Tilde (~) in paths is expanded to the user's home directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.Session.DBPath = expandTilde(cfg.Session.DBPath)
	cfg.Session.VideoDir = expandTilde(cfg.Session.VideoDir)

	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.Scan.TimeoutSeconds <= 0 {
		return fmt.Errorf("scan.timeout_seconds must be > 0")
	}

	if c.Session.DBPath == "" {
		return fmt.Errorf("session.db_path must not be empty")
	}

	if c.Session.VideoDir == "" {
		return fmt.Errorf("session.video_dir must not be empty")
	}

	if c.Cleanup.Schedule == "" {
		return fmt.Errorf("cleanup.schedule must not be empty")
	}

	if c.Cleanup.RetentionDays <= 0 {
		return fmt.Errorf("cleanup.retention_days must be > 0")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
