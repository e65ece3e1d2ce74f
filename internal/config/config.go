package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// AccountConfig binds one credential identity to the contracts polled with
// it. Contracts may be left empty; the daemon then discovers the account's
// mobile contracts at startup.
type AccountConfig struct {
	Username  string   `json:"username"`
	Password  string   `json:"password"`
	Contracts []string `json:"contracts,omitempty"`
}

type LoggingConfig struct {
	Level  string `json:"level"`  // trace, debug, info, warn, error
	Format string `json:"format"` // "console" or "json"
}

type StoreConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"` // defaults under the config dir
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Listen  string `json:"listen,omitempty"`
}

type Config struct {
	IntervalMinutes      int             `json:"interval_minutes"`
	CycleTimeoutSeconds  int             `json:"cycle_timeout_seconds"`
	MinLoginDelaySeconds int             `json:"min_login_delay_seconds"`
	Logging              LoggingConfig   `json:"logging"`
	Store                StoreConfig     `json:"store"`
	Metrics              MetricsConfig   `json:"metrics"`
	Accounts             []AccountConfig `json:"accounts"`
}

func DefaultConfig() Config {
	return Config{
		IntervalMinutes:      15,
		CycleTimeoutSeconds:  10,
		MinLoginDelaySeconds: 30,
		Logging:              LoggingConfig{Level: "info", Format: "console"},
		Store:                StoreConfig{Enabled: true},
		Metrics:              MetricsConfig{Enabled: false, Listen: ":9184"},
	}
}

func (c Config) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

func (c Config) CycleTimeout() time.Duration {
	return time.Duration(c.CycleTimeoutSeconds) * time.Second
}

func (c Config) MinLoginDelay() time.Duration {
	return time.Duration(c.MinLoginDelaySeconds) * time.Second
}

// StorePath resolves the readings database location.
func (c Config) StorePath() string {
	if c.Store.Path != "" {
		return c.Store.Path
	}
	return filepath.Join(ConfigDir(), "readings.db")
}

func ConfigDir() string {
	if dir := os.Getenv("VODAMON_CONFIG_DIR"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "vodamon")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

func Load() (Config, error) {
	return LoadFrom(ConfigPath())
}

// LoadFrom reads the config file, filling defaults for anything unset.
// A missing file yields the defaults, not an error.
func LoadFrom(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.IntervalMinutes <= 0 {
		cfg.IntervalMinutes = 15
	}
	if cfg.CycleTimeoutSeconds <= 0 {
		cfg.CycleTimeoutSeconds = 10
	}
	if cfg.MinLoginDelaySeconds <= 0 {
		cfg.MinLoginDelaySeconds = 30
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}
	if cfg.Metrics.Listen == "" {
		cfg.Metrics.Listen = ":9184"
	}

	return cfg, nil
}

func Save(cfg Config) error {
	return SaveTo(ConfigPath(), cfg)
}

func SaveTo(path string, cfg Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	data = append(data, '\n')

	// Credentials live in this file; keep it owner-only.
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}
