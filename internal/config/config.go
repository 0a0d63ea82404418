package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"autosave/internal/logger"
)

// Config is the machine-level supervisor configuration. Everything has a
// working default; a TOML file and AUTOSAVE_* environment variables can
// override it.
type Config struct {
	// Path is the config file this was loaded from, empty when running on
	// defaults. Forwarded to spawned workers so they load the same file.
	Path string `mapstructure:"-"`

	// StateDir holds the persisted records: jobs/, pids/, state/, logs/,
	// locks/ and the tick history database.
	StateDir string `mapstructure:"state_dir"`

	Log logger.Config `mapstructure:"log"`

	// MetricsListen, when non-empty, makes each worker expose /metrics on
	// this address. Left empty by default; two workers on one machine
	// would collide on the port, so this is an opt-in for single-project
	// setups.
	MetricsListen string `mapstructure:"metrics_listen"`

	Git GitConfig `mapstructure:"git"`

	// StartGrace is how long `start` waits for the spawned worker to be
	// verifiably alive before reporting failure.
	StartGrace time.Duration `mapstructure:"start_grace"`
	// StopWait bounds how long `end` waits after SIGTERM before escalating
	// to SIGKILL.
	StopWait time.Duration `mapstructure:"stop_wait"`
}

// GitConfig parameterizes the snapshot action.
type GitConfig struct {
	Bin          string `mapstructure:"bin"`
	CommitPrefix string `mapstructure:"commit_prefix"`
	Remote       string `mapstructure:"remote"`
}

// HistoryPath is the tick history database location.
func (c *Config) HistoryPath() string { return filepath.Join(c.StateDir, "history.db") }

// LocksDir holds the per-project advisory lock files.
func (c *Config) LocksDir() string { return filepath.Join(c.StateDir, "locks") }

// Load reads configuration from the given file (optional; the default
// location is used when path is empty) plus AUTOSAVE_* env overrides.
// Precedence: flags > env > file > defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("config: resolve home dir: %w", err)
	}

	v.SetDefault("state_dir", filepath.Join(home, ".local", "share", "autosave"))
	v.SetDefault("log.max_size_mb", logger.DefaultMaxSizeMB)
	v.SetDefault("log.max_backups", logger.DefaultMaxBackups)
	v.SetDefault("log.max_age_days", logger.DefaultMaxAgeDays)
	v.SetDefault("metrics_listen", "")
	v.SetDefault("git.bin", "git")
	v.SetDefault("git.commit_prefix", "autosave:")
	v.SetDefault("git.remote", "origin")
	v.SetDefault("start_grace", 2*time.Second)
	v.SetDefault("stop_wait", 3*time.Second)

	v.SetEnvPrefix("AUTOSAVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		// Default location is optional; a missing file means defaults.
		def := filepath.Join(home, ".config", "autosave", "config.toml")
		if _, err := os.Stat(def); err == nil {
			path = def
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	c.Path = path
	if c.Log.Dir == "" {
		c.Log.Dir = filepath.Join(c.StateDir, "logs")
	}
	if c.StartGrace <= 0 {
		c.StartGrace = 2 * time.Second
	}
	if c.StopWait <= 0 {
		c.StopWait = 3 * time.Second
	}
	return &c, nil
}
