// Package worker implements the detached tick loop. A worker is its own OS
// process: it outlives the command that spawned it and is stopped only by
// an external signal. Nothing inside the loop may terminate it.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"autosave/internal/action"
	"autosave/internal/history"
	"autosave/internal/identity"
	"autosave/internal/job"
	"autosave/internal/metrics"
)

// RegistryClearer releases the worker's pid record on graceful stop. The
// `end` command and the reconciler remain the authoritative cleanup; this
// is best-effort.
type RegistryClearer interface {
	Clear(id identity.Token) error
}

// Worker runs the per-interval action loop for one project. Its parameters
// were fixed at spawn time; it never re-reads the descriptor store.
type Worker struct {
	desc   job.Descriptor
	act    action.Action
	reg    RegistryClearer
	hist   history.Sink
	logger *slog.Logger
}

func New(desc job.Descriptor, act action.Action, reg RegistryClearer, hist history.Sink, logger *slog.Logger) *Worker {
	if hist == nil {
		hist = history.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{desc: desc, act: act, reg: reg, hist: hist, logger: logger}
}

// Run ticks until ctx is cancelled. The first tick fires immediately, then
// once per interval. A tick's failure is logged and swallowed; the loop has
// no terminal state reachable from inside it.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker started",
		"project", w.desc.Name,
		"path", w.desc.Path,
		"interval_sec", w.desc.IntervalSec,
		"push", w.desc.Push,
		"pid", os.Getpid())

	ticker := time.NewTicker(w.desc.Interval())
	defer ticker.Stop()

	w.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			w.shutdown()
			return nil
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

// tick performs one cycle: enter the project, run the action, record the
// outcome. Every failure path returns to the caller's loop.
func (w *Worker) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	started := time.Now()

	rec := history.Tick{
		ProjectID: w.desc.ID.String(),
		StartedAt: started,
	}

	if err := w.enterProject(); err != nil {
		// Environment error: a transiently unmounted path must not kill
		// the job.
		w.logger.Warn("project path inaccessible, skipping tick", "path", w.desc.Path, "error", err)
		rec.Status = history.StatusSkipped
		rec.Detail = err.Error()
	} else {
		out, err := w.act.Run(ctx, w.desc.Path)
		switch {
		case err != nil:
			w.logger.Error("tick failed", "error", err)
			rec.Status = history.StatusFailed
			rec.Detail = err.Error()
		case out.Committed:
			w.logger.Info("tick finished", "committed", true, "pushed", out.Pushed, "message", out.Message)
			rec.Status = history.StatusOK
			rec.Detail = out.Message
		default:
			w.logger.Info("tick finished", "committed", false)
			rec.Status = history.StatusOK
		}
	}

	rec.FinishedAt = time.Now()
	metrics.ObserveTick(w.desc.Name, string(rec.Status), rec.FinishedAt.Sub(started))
	if err := w.hist.Append(ctx, rec); err != nil && ctx.Err() == nil {
		w.logger.Warn("failed to record tick history", "error", err)
	}
}

// enterProject changes into the project directory so the action and any
// relative paths it uses operate on the right tree.
func (w *Worker) enterProject() error {
	if err := os.Chdir(w.desc.Path); err != nil {
		return fmt.Errorf("chdir %s: %w", w.desc.Path, err)
	}
	return nil
}

// shutdown runs on graceful stop: release the pid record so status reads
// do not have to discover the stale handle themselves.
func (w *Worker) shutdown() {
	w.logger.Info("worker stopping", "project", w.desc.Name)
	if w.reg != nil {
		if err := w.reg.Clear(w.desc.ID); err != nil {
			w.logger.Warn("failed to clear pid record on shutdown", "error", err)
		}
	}
}
