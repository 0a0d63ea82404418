package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default rotation parameters for per-project job logs.
const (
	DefaultMaxSizeMB  = 5 // MB
	DefaultMaxBackups = 2
	DefaultMaxAgeDays = 14
)

// Config describes the per-project log stream destination. Each project
// gets one rotated log file Dir/<token>.log; rotation parameters follow
// lumberjack semantics.
type Config struct {
	Dir        string `mapstructure:"dir"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// Writer returns the rotated writer for the named project log.
func (c Config) Writer(name string) (io.WriteCloser, error) {
	if c.Dir == "" {
		return nil, fmt.Errorf("logger: no log directory configured")
	}
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("logger: create log dir: %w", err)
	}
	return &lj.Logger{
		Filename:   c.Path(name),
		MaxSize:    valOr(c.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(c.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(c.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   c.Compress,
	}, nil
}

// Path returns the log file path for the named project log.
func (c Config) Path(name string) string {
	return filepath.Join(c.Dir, name+".log")
}

// NewCLI builds the logger used by short-lived command invocations. It
// writes human-oriented text to stderr so command output on stdout stays
// script-friendly.
func NewCLI(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NewWorker builds the structured logger a worker writes to its project log
// stream.
func NewWorker(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

func valOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
