package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"autosave/internal/action"
	"autosave/internal/config"
	"autosave/internal/history"
	"autosave/internal/job"
	"autosave/internal/logger"
	"autosave/internal/metrics"
	"autosave/internal/registry"
	"autosave/internal/store"
	"autosave/internal/worker"
)

// historyRetention bounds the tick history database; each worker prunes
// older rows once at startup.
const historyRetention = 30 * 24 * time.Hour

// RunFlags carries the worker parameters passed on the command line at
// spawn time. The worker never re-reads the descriptor store.
type RunFlags struct {
	Path     string
	Interval int
	Name     string
	Push     bool
}

// runWorker is the entry point of a spawned worker process. It builds its
// collaborators from the forwarded flags and ticks until signalled.
func runWorker(global *GlobalFlags, rf *RunFlags) error {
	cfg, err := config.Load(global.ConfigPath)
	if err != nil {
		return err
	}

	d, err := job.New(rf.Path, rf.Interval, rf.Push)
	if err != nil {
		return err
	}
	if rf.Name != "" {
		d.Name = rf.Name
	}

	log := logger.NewWorker(os.Stderr)
	if w, err := cfg.Log.Writer(d.ID.String()); err == nil {
		defer func() { _ = w.Close() }()
		log = logger.NewWorker(w)
	}

	kv, err := store.NewFS(cfg.StateDir)
	if err != nil {
		return err
	}
	defer func() { _ = kv.Close() }()

	var hist history.Sink = history.Nop{}
	if h, err := history.OpenSQLite(cfg.HistoryPath()); err == nil {
		hist = h
		defer func() { _ = h.Close() }()
		if err := h.Prune(context.Background(), historyRetention); err != nil {
			log.Warn("tick history prune failed", "error", err)
		}
	} else {
		log.Warn("tick history unavailable", "error", err)
	}

	if cfg.MetricsListen != "" {
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			log.Warn("metrics registration failed", "error", err)
		}
		go func() {
			if err := metrics.Serve(cfg.MetricsListen); err != nil {
				log.Warn("metrics server stopped", "error", err)
			}
		}()
	}

	act := action.NewGit(cfg.Git.Bin, cfg.Git.CommitPrefix, cfg.Git.Remote, d.Push)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()
	return worker.New(d, act, registry.New(kv), hist, log).Run(ctx)
}
