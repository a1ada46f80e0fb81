// Package config manages the patchtroll configuration file.
// It handles defaults, loading and saving, and environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// ConfigFile is the name searched for when no explicit path is given.
const ConfigFile = "patchtroll.toml"

// Environment variables that override credentials in the file.
const (
	EnvUsername = "GERRIT_USERNAME"
	EnvPassword = "GERRIT_PASSWORD"
)

// Config represents the patchtroll configuration.
type Config struct {
	Gerrit GerritConfig `toml:"gerrit"`
	Review ReviewConfig `toml:"review"`
	Daemon DaemonConfig `toml:"daemon"`

	// LogFormat is "text" or "json".
	LogFormat string `toml:"log_format"`

	path string
}

// GerritConfig locates the review service and the changes to watch.
type GerritConfig struct {
	URL      string `toml:"url"`
	Project  string `toml:"project"`
	Tag      string `toml:"tag"`
	Username string `toml:"username,omitempty"`
	Password string `toml:"password,omitempty"`
}

// ReviewConfig controls which changes are reviewed and against what.
type ReviewConfig struct {
	Prefixes   []string `toml:"prefixes"`
	WindowDays int      `toml:"window_days"`

	GitDir       string `toml:"git_dir"`
	MainlineRef  string `toml:"mainline_ref"`
	ChangeRemote string `toml:"change_remote"`

	KconfigHound bool     `toml:"kconfig_hound"`
	KconfigDirs  []string `toml:"kconfig_dirs"`
}

// DaemonConfig controls the polling loop and what it persists.
type DaemonConfig struct {
	SleepSeconds     int    `toml:"sleep_seconds"`
	CooldownSeconds  int    `toml:"cooldown_seconds"`
	StatsFile        string `toml:"stats_file"`
	LedgerPath       string `toml:"ledger_path"`
	PersistBlacklist bool   `toml:"persist_blacklist"`
}

// Default returns the configuration for the ChromiumOS kernel tree.
func Default() *Config {
	return &Config{
		Gerrit: GerritConfig{
			URL:     "https://chromium-review.googlesource.com",
			Project: "chromiumos/third_party/kernel",
			Tag:     "autogenerated:review-o-matic",
		},
		Review: ReviewConfig{
			Prefixes:     []string{"UPSTREAM", "BACKPORT", "FROMGIT", "FROMLIST"},
			WindowDays:   5,
			MainlineRef:  "upstream/master",
			ChangeRemote: "https://chromium.googlesource.com/chromiumos/third_party/kernel",
			KconfigDirs:  []string{"chromeos/config/"},
		},
		Daemon: DaemonConfig{
			SleepSeconds:    120,
			CooldownSeconds: 60,
		},
		LogFormat: "text",
	}
}

// Find looks for ConfigFile in the current directory and its parents.
// It returns "" when there is none.
func Find() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		p := filepath.Join(dir, ConfigFile)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

// Load reads the configuration at path on top of Default. An empty path
// searches for ConfigFile; finding none yields the defaults. Credentials from
// the environment take precedence over the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		found, err := Find()
		if err != nil {
			return nil, fmt.Errorf("failed to locate config: %w", err)
		}
		path = found
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		} else if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
		cfg.path = path
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvUsername); v != "" {
		c.Gerrit.Username = v
	}
	if v := os.Getenv(EnvPassword); v != "" {
		c.Gerrit.Password = v
	}
}

// Validate rejects settings the reviewer cannot run with.
func (c *Config) Validate() error {
	if c.Gerrit.URL == "" {
		return fmt.Errorf("gerrit.url must be set")
	}
	if c.Gerrit.Tag == "" {
		return fmt.Errorf("gerrit.tag must be set")
	}
	if len(c.Review.Prefixes) == 0 {
		return fmt.Errorf("review.prefixes must not be empty")
	}
	if c.Review.WindowDays <= 0 {
		return fmt.Errorf("review.window_days must be positive, got %d", c.Review.WindowDays)
	}
	if c.Daemon.SleepSeconds < 0 || c.Daemon.CooldownSeconds < 0 {
		return fmt.Errorf("daemon sleep and cooldown must not be negative")
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("log_format must be \"text\" or \"json\", got %q", c.LogFormat)
	}
	return nil
}

// Save writes the configuration to path, or to where it was loaded from when
// path is empty.
func (c *Config) Save(path string) error {
	if path == "" {
		path = c.path
	}
	if path == "" {
		path = ConfigFile
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	c.path = path
	return nil
}

// Path returns the file the configuration was loaded from, if any.
func (c *Config) Path() string {
	return c.path
}

// Window is how far back to look for changes.
func (c *Config) Window() time.Duration {
	return time.Duration(c.Review.WindowDays) * 24 * time.Hour
}

// Interval is the pause between daemon sweeps.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.Daemon.SleepSeconds) * time.Second
}

// Cooldown is the extra pause after a failed sweep.
func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.Daemon.CooldownSeconds) * time.Second
}

// QueryPrefixes returns the subject prefixes to query, adding CHROMIUM when
// the config hound is enabled.
func (c *Config) QueryPrefixes() []string {
	prefixes := append([]string(nil), c.Review.Prefixes...)
	if !c.Review.KconfigHound {
		return prefixes
	}
	for _, p := range prefixes {
		if p == "CHROMIUM" {
			return prefixes
		}
	}
	return append(prefixes, "CHROMIUM")
}
