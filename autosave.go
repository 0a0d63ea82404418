package autosave

import (
	"context"

	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"autosave/internal/action"
	cfg "autosave/internal/config"
	"autosave/internal/history"
	"autosave/internal/identity"
	"autosave/internal/job"
	"autosave/internal/metrics"
	"autosave/internal/store"
	"autosave/internal/supervisor"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type ProjectID = identity.Token

type Descriptor = job.Descriptor

type Config = cfg.Config

type HistorySink = history.Sink

type Tick = history.Tick

type Action = action.Action

type Outcome = action.Outcome

type Store = store.Store

// Sentinel errors for embedders that branch on start/restart outcomes.
var (
	ErrAlreadyRunning    = supervisor.ErrAlreadyRunning
	ErrNotRegistered     = supervisor.ErrNotRegistered
	ErrWorkerNotVerified = supervisor.ErrWorkerNotVerified
)

// Supervisor is a thin facade over internal/supervisor.Supervisor.
// It provides a stable public API for embedding.

type Supervisor struct{ inner *supervisor.Supervisor }

type StartResult = supervisor.StartResult

type StopResult = supervisor.StopResult

type Status = supervisor.Status

// New builds a supervisor over the machine's filesystem-backed state.
func New(c *Config, logger *slog.Logger) (*Supervisor, error) {
	kv, err := store.NewFS(c.StateDir)
	if err != nil {
		return nil, err
	}
	var hist history.Sink
	if h, err := history.OpenSQLite(c.HistoryPath()); err == nil {
		hist = h
	} else {
		hist = history.Nop{}
	}
	act := action.NewGit(c.Git.Bin, c.Git.CommitPrefix, c.Git.Remote, false)
	return &Supervisor{inner: supervisor.New(c, kv, act, hist, logger)}, nil
}

func (s *Supervisor) Start(path string, intervalSec int, push bool) (StartResult, error) {
	return s.inner.Start(path, intervalSec, push)
}
func (s *Supervisor) Stop(path string) (StopResult, error) { return s.inner.Stop(path) }
func (s *Supervisor) Status(path string) (Status, error)   { return s.inner.ProjectStatus(path) }
func (s *Supervisor) Restart(path string) (StartResult, error) {
	return s.inner.Restart(path)
}
func (s *Supervisor) Reconcile(ctx context.Context) error { return s.inner.Reconcile(ctx) }

// LoadConfig reads configuration from path (optional) plus AUTOSAVE_* env
// overrides.
func LoadConfig(path string) (*Config, error) { return cfg.Load(path) }

// ProjectIdentity derives the stable token all persisted records for path
// are keyed by.
func ProjectIdentity(path string) (ProjectID, error) { return identity.ForPath(path) }

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics exposes /metrics on addr using the default registry. It runs
// the server in the caller's goroutine.
func ServeMetrics(addr string) error { return metrics.Serve(addr) }
