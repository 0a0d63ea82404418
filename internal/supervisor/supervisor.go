// Package supervisor implements the command surface: start, end, status
// and restart, plus the reconcile pass every command runs first. Commands
// are short-lived, run-to-completion invocations against the
// filesystem-backed stores; concurrent invocations are tolerated, not
// serialized.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"autosave/internal/action"
	"autosave/internal/config"
	"autosave/internal/history"
	"autosave/internal/identity"
	"autosave/internal/job"
	"autosave/internal/reconcile"
	"autosave/internal/registry"
	"autosave/internal/store"
	"autosave/internal/trigger"
	"autosave/internal/worker"
)

var (
	// ErrAlreadyRunning is returned by Start when a live worker exists.
	ErrAlreadyRunning = errors.New("job already running")
	// ErrNotRegistered is returned by Restart when no descriptor exists.
	ErrNotRegistered = errors.New("no job registered for this project")
	// ErrWorkerNotVerified is returned by Start/Restart when the spawned
	// worker dies within the grace period.
	ErrWorkerNotVerified = errors.New("spawned worker could not be verified alive")
)

// TriggerInstaller registers the periodic reconcile trigger.
type TriggerInstaller interface {
	Install(binPath string) error
}

// Supervisor wires the stores, registry, spawner and action together.
type Supervisor struct {
	cfg     *config.Config
	jobs    *job.Store
	reg     reconcile.Registry
	spawner reconcile.Spawner
	act     action.Action
	hist    history.Sink
	trig    TriggerInstaller
	logger  *slog.Logger

	// seams for tests
	probe    func(pid int) bool
	term     func(pid int) error
	kill     func(pid int) error
	bootTime func() (int64, error)
	binPath  func() (string, error)
	sleep    func(time.Duration)
}

// New builds a supervisor over the given store. The action performs the
// per-tick work; hist may be nil when tick history is unavailable.
func New(cfg *config.Config, kv store.Store, act action.Action, hist history.Sink, logger *slog.Logger) *Supervisor {
	if hist == nil {
		hist = history.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		cfg:  cfg,
		jobs: job.NewStore(kv),
		reg:  registry.New(kv),
		spawner: &worker.Spawner{
			Log:        cfg.Log,
			ConfigPath: cfg.Path,
		},
		act:      act,
		hist:     hist,
		trig:     trigger.NewInstaller(logger),
		logger:   logger,
		probe:    registry.PidAlive,
		term:     signalTerm,
		kill:     signalKill,
		bootTime: registry.BootTime,
		binPath:  os.Executable,
		sleep:    time.Sleep,
	}
}

// StartResult reports what Start did.
type StartResult struct {
	Descriptor job.Descriptor
	PID        int
}

// Start registers the project at path and spawns its worker. It fails
// with ErrAlreadyRunning when a live worker exists; a prior descriptor
// with no live worker is overwritten. On the machine's first registration
// the periodic trigger is installed so future reboots self-heal.
func (s *Supervisor) Start(path string, intervalSec int, push bool) (StartResult, error) {
	d, err := job.New(path, intervalSec, push)
	if err != nil {
		return StartResult{}, err
	}

	unlock := s.lockProject(d.ID)
	defer unlock()

	if pid, alive, err := s.reg.Live(d.ID); err != nil {
		return StartResult{}, err
	} else if alive {
		return StartResult{PID: pid}, fmt.Errorf("%w (pid %d)", ErrAlreadyRunning, pid)
	}

	existing, err := s.jobs.All()
	if err != nil {
		return StartResult{}, err
	}
	firstOnMachine := len(existing) == 0

	if err := s.act.Prepare(d.Path); err != nil {
		return StartResult{}, err
	}
	if err := s.jobs.Put(d); err != nil {
		return StartResult{}, err
	}

	pid, err := s.spawner.Spawn(d)
	if err != nil {
		return StartResult{}, err
	}
	if err := s.reg.SetLive(d.ID, pid); err != nil {
		return StartResult{}, err
	}
	if !s.verifyAlive(pid) {
		// Keep the descriptor: the next reconcile pass retries the spawn.
		_ = s.reg.Clear(d.ID)
		return StartResult{}, fmt.Errorf("%w (pid %d)", ErrWorkerNotVerified, pid)
	}

	if firstOnMachine {
		s.installTrigger()
	}
	s.logger.Info("job started", "project", d.Name, "interval_sec", d.IntervalSec, "push", d.Push, "pid", pid)
	return StartResult{Descriptor: d, PID: pid}, nil
}

// StopResult reports what Stop did.
type StopResult struct {
	WasRunning bool
	PID        int
}

// Stop terminates the project's worker and removes both its handle and
// its descriptor. Stopping a project that is not running is a successful
// no-op; a stale registration is cleaned up on the way.
func (s *Supervisor) Stop(path string) (StopResult, error) {
	id, err := identity.ForPath(path)
	if err != nil {
		return StopResult{}, err
	}

	pid, alive, err := s.reg.Live(id)
	if err != nil {
		return StopResult{}, err
	}
	if !alive {
		// Dead-but-registered: honor the user's intent and drop the
		// records so nothing re-spawns this job later.
		if pid != 0 {
			_ = s.reg.Clear(id)
		}
		if _, err := s.jobs.Get(id); err == nil {
			_ = s.jobs.Delete(id)
		}
		return StopResult{WasRunning: false, PID: pid}, nil
	}

	s.terminate(pid)
	if err := s.reg.Clear(id); err != nil {
		return StopResult{}, err
	}
	if err := s.jobs.Delete(id); err != nil {
		return StopResult{}, err
	}
	s.logger.Info("job stopped", "pid", pid)
	return StopResult{WasRunning: true, PID: pid}, nil
}

// Status describes the project's registration and liveness.
type Status struct {
	Registered bool
	Running    bool
	PID        int
	Descriptor job.Descriptor
	LastTick   *history.Tick
}

// ProjectStatus reports the state of the project at path. A
// dead-but-registered handle is opportunistically cleaned up.
func (s *Supervisor) ProjectStatus(path string) (Status, error) {
	id, err := identity.ForPath(path)
	if err != nil {
		return Status{}, err
	}

	var st Status
	d, err := s.jobs.Get(id)
	switch {
	case err == nil:
		st.Registered = true
		st.Descriptor = d
	case job.IsNotFound(err):
	default:
		return Status{}, err
	}

	pid, alive, err := s.reg.Live(id)
	if err != nil {
		return Status{}, err
	}
	if alive {
		st.Running = true
		st.PID = pid
	} else if pid != 0 {
		// stale handle observed: self-heal
		_ = s.reg.Clear(id)
	}

	if tick, err := s.hist.Last(context.Background(), id.String()); err == nil {
		st.LastTick = &tick
	}
	return st, nil
}

// Restart re-spawns the worker from the stored descriptor, replacing any
// prior worker regardless of liveness. Explicit user intent overrides the
// at-most-one check used by Start.
func (s *Supervisor) Restart(path string) (StartResult, error) {
	id, err := identity.ForPath(path)
	if err != nil {
		return StartResult{}, err
	}
	d, err := s.jobs.Get(id)
	if err != nil {
		if job.IsNotFound(err) {
			return StartResult{}, ErrNotRegistered
		}
		return StartResult{}, err
	}

	unlock := s.lockProject(id)
	defer unlock()

	if pid, alive, err := s.reg.Live(id); err == nil && alive {
		s.terminate(pid)
	}

	pid, err := s.spawner.Spawn(d)
	if err != nil {
		return StartResult{}, err
	}
	if err := s.reg.SetLive(id, pid); err != nil {
		return StartResult{}, err
	}
	if !s.verifyAlive(pid) {
		_ = s.reg.Clear(id)
		return StartResult{}, fmt.Errorf("%w (pid %d)", ErrWorkerNotVerified, pid)
	}
	s.logger.Info("job restarted", "project", d.Name, "pid", pid)
	return StartResult{Descriptor: d, PID: pid}, nil
}

// Reconcile runs one reconciliation pass over every registered job.
func (s *Supervisor) Reconcile(ctx context.Context) error {
	r := &reconcile.Reconciler{
		Jobs:     s.jobs,
		Registry: s.reg,
		Spawner:  s.spawner,
		Logger:   s.logger,
		BootTime: s.bootTime,
	}
	return r.Run(ctx)
}

// terminate sends SIGTERM, waits up to StopWait for the process to go
// away, then escalates to SIGKILL. A process that is already gone counts
// as terminated.
func (s *Supervisor) terminate(pid int) {
	if err := s.term(pid); err != nil {
		// Delivery raced with a process that already died.
		return
	}
	deadline := time.Now().Add(s.cfg.StopWait)
	for time.Now().Before(deadline) {
		if !s.probe(pid) {
			return
		}
		s.sleep(50 * time.Millisecond)
	}
	_ = s.kill(pid)
}

// verifyAlive polls the pid through the start grace period; the worker
// must still be alive at the end of it.
func (s *Supervisor) verifyAlive(pid int) bool {
	deadline := time.Now().Add(s.cfg.StartGrace)
	for time.Now().Before(deadline) {
		if !s.probe(pid) {
			return false
		}
		s.sleep(100 * time.Millisecond)
	}
	return s.probe(pid)
}

// lockProject takes the per-project advisory lock that narrows the
// check-then-spawn window. Lock failure degrades to the unlocked
// behavior instead of failing the command.
func (s *Supervisor) lockProject(id identity.Token) func() {
	if err := os.MkdirAll(s.cfg.LocksDir(), 0o755); err != nil {
		s.logger.Debug("cannot create locks dir, proceeding unlocked", "error", err)
		return func() {}
	}
	fl := flock.New(filepath.Join(s.cfg.LocksDir(), id.String()+".lock"))
	locked, err := fl.TryLock()
	if err != nil || !locked {
		s.logger.Debug("project lock unavailable, proceeding unlocked", "project", id)
		return func() {}
	}
	return func() { _ = fl.Unlock() }
}

// installTrigger is best-effort: a machine without systemd or cron still
// gets working start/stop, it just will not self-heal after reboot.
func (s *Supervisor) installTrigger() {
	bin, err := s.binPath()
	if err != nil {
		s.logger.Warn("cannot resolve executable for trigger install", "error", err)
		return
	}
	if err := s.trig.Install(bin); err != nil {
		s.logger.Warn("periodic trigger not installed; jobs will not auto-restore after reboot", "error", err)
	}
}
