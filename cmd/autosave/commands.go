package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"autosave/internal/action"
	"autosave/internal/config"
	"autosave/internal/history"
	"autosave/internal/logger"
	"autosave/internal/store"
	"autosave/internal/supervisor"
)

// command binds the CLI handlers to the shared global flags. Each handler
// is a short-lived, run-to-completion invocation: load config, open the
// stores, reconcile, do the one thing, exit.
type command struct {
	flags *GlobalFlags
}

type app struct {
	cfg    *config.Config
	kv     store.Store
	hist   history.Sink
	sup    *supervisor.Supervisor
	logger *slog.Logger
}

func (c command) open() (*app, error) {
	cfg, err := config.Load(c.flags.ConfigPath)
	if err != nil {
		return nil, err
	}
	log := logger.NewCLI(c.flags.Verbose)

	kv, err := store.NewFS(cfg.StateDir)
	if err != nil {
		return nil, err
	}

	// Tick history is informational; a broken database must not block
	// start/stop.
	var hist history.Sink
	if h, err := history.OpenSQLite(cfg.HistoryPath()); err == nil {
		hist = h
	} else {
		log.Warn("tick history unavailable", "error", err)
		hist = history.Nop{}
	}

	act := action.NewGit(cfg.Git.Bin, cfg.Git.CommitPrefix, cfg.Git.Remote, false)
	return &app{
		cfg:    cfg,
		kv:     kv,
		hist:   hist,
		sup:    supervisor.New(cfg, kv, act, hist, log),
		logger: log,
	}, nil
}

func (a *app) close() {
	_ = a.hist.Close()
	_ = a.kv.Close()
}

// reconcileFirst runs the repair pass every user-facing command starts
// with. Its failure never blocks the command the user actually asked for.
func (a *app) reconcileFirst() {
	if err := a.sup.Reconcile(context.Background()); err != nil {
		a.logger.Warn("reconciliation pass failed", "error", err)
	}
}

func (c command) Start(intervalArg string, push bool) error {
	intervalSec, err := strconv.Atoi(intervalArg)
	if err != nil || intervalSec <= 0 {
		return fmt.Errorf("interval must be a positive number of seconds, got %q", intervalArg)
	}

	a, err := c.open()
	if err != nil {
		return err
	}
	defer a.close()
	a.reconcileFirst()

	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	res, err := a.sup.Start(cwd, intervalSec, push)
	if err != nil {
		return err
	}
	fmt.Printf("started %s: snapshot every %ds (push=%v, pid %d)\n",
		res.Descriptor.Name, res.Descriptor.IntervalSec, res.Descriptor.Push, res.PID)
	return nil
}

func (c command) End() error {
	a, err := c.open()
	if err != nil {
		return err
	}
	defer a.close()
	a.reconcileFirst()

	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	res, err := a.sup.Stop(cwd)
	if err != nil {
		// end is idempotent and always exits zero; a failed cleanup is
		// reported, then retried by the next reconcile pass.
		a.logger.Warn("stop incomplete", "error", err)
		return nil
	}
	if res.WasRunning {
		fmt.Printf("stopped (pid %d)\n", res.PID)
	} else {
		fmt.Println("not running")
	}
	return nil
}

func (c command) Status() error {
	a, err := c.open()
	if err != nil {
		return err
	}
	defer a.close()
	a.reconcileFirst()

	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	st, err := a.sup.ProjectStatus(cwd)
	if err != nil {
		return err
	}

	switch {
	case st.Running:
		fmt.Printf("running: %s every %ds (push=%v, pid %d)\n",
			st.Descriptor.Path, st.Descriptor.IntervalSec, st.Descriptor.Push, st.PID)
	case st.Registered:
		fmt.Println("not running (registered; next reconcile pass restarts it)")
	default:
		fmt.Println("not running")
	}
	if st.LastTick != nil {
		fmt.Printf("last tick: %s %s\n",
			st.LastTick.FinishedAt.Format("2006-01-02 15:04:05"), st.LastTick.Status)
	}
	return nil
}

func (c command) Restart() error {
	a, err := c.open()
	if err != nil {
		return err
	}
	defer a.close()
	a.reconcileFirst()

	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	res, err := a.sup.Restart(cwd)
	if err != nil {
		if errors.Is(err, supervisor.ErrNotRegistered) {
			return fmt.Errorf("%w; use 'autosave start' first", err)
		}
		return err
	}
	fmt.Printf("restarted %s (pid %d)\n", res.Descriptor.Name, res.PID)
	return nil
}

func (c command) Reconcile() error {
	a, err := c.open()
	if err != nil {
		return err
	}
	defer a.close()
	return a.sup.Reconcile(context.Background())
}
