// Package reconcile restores workers after a reboot or a crash by
// comparing persisted descriptors and pid records against observed
// reality. It runs at the start of every supervisor invocation and from
// the periodic OS trigger.
package reconcile

import (
	"context"
	"log/slog"
	"os"

	"github.com/shirou/gopsutil/v3/host"

	"autosave/internal/identity"
	"autosave/internal/job"
)

// JobLister enumerates every registered job.
type JobLister interface {
	All() ([]job.Descriptor, error)
}

// Registry is the slice of the process registry the reconciler needs.
type Registry interface {
	Live(id identity.Token) (pid int, alive bool, err error)
	SetLive(id identity.Token, pid int) error
	Clear(id identity.Token) error
	LastBoot() (int64, bool, error)
	SetLastBoot(ts int64) error
}

// Spawner starts a worker for a descriptor and returns its pid.
type Spawner interface {
	Spawn(d job.Descriptor) (int, error)
}

// Reconciler wires the algorithm to its collaborators. BootTime and
// PathExists default to the OS but are injectable for tests.
type Reconciler struct {
	Jobs     JobLister
	Registry Registry
	Spawner  Spawner
	Logger   *slog.Logger

	BootTime   func() (int64, error)
	PathExists func(string) bool
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// defaultBootTime reads the OS boot timestamp. An error means "boot time
// unknown" and sends Run down the per-job probing branch.
func defaultBootTime() (int64, error) {
	bt, err := host.BootTime()
	if err != nil {
		return 0, err
	}
	return int64(bt), nil
}

// Run executes one reconciliation pass.
//
// When the OS reports a boot time and it differs from the stored marker,
// every worker died with the old boot: all registered jobs are re-spawned
// unconditionally (the small double-spawn risk right after a real reboot
// is accepted, since a reboot guarantees no old worker survived). When
// boot time is unavailable, fall back to probing each job's recorded pid
// and re-spawn only the dead ones.
func (r *Reconciler) Run(ctx context.Context) error {
	log := r.Logger
	if log == nil {
		log = slog.Default()
	}
	bootTime := r.BootTime
	if bootTime == nil {
		bootTime = defaultBootTime
	}
	pathExists := r.PathExists
	if pathExists == nil {
		pathExists = dirExists
	}

	currentBoot, err := bootTime()
	if err != nil {
		log.Debug("boot time unavailable, probing per-job liveness", "error", err)
		return r.probeAndRepair(ctx, log, pathExists)
	}

	stored, ok, err := r.Registry.LastBoot()
	if err != nil {
		return err
	}
	if ok && stored == currentBoot {
		// Same boot: workers either survive or crashed individually.
		return r.probeAndRepair(ctx, log, pathExists)
	}

	log.Info("boot change detected, restoring all registered jobs", "boot", currentBoot)
	if err := r.Registry.SetLastBoot(currentBoot); err != nil {
		return err
	}
	all, err := r.Jobs.All()
	if err != nil {
		return err
	}
	for _, d := range all {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !pathExists(d.Path) {
			log.Warn("project path missing, skipping", "project", d.Name, "path", d.Path)
			continue
		}
		r.respawn(log, d)
	}
	return nil
}

// probeAndRepair re-spawns only jobs whose recorded worker is absent or
// dead. An already-live job is never touched.
func (r *Reconciler) probeAndRepair(ctx context.Context, log *slog.Logger, pathExists func(string) bool) error {
	all, err := r.Jobs.All()
	if err != nil {
		return err
	}
	for _, d := range all {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, alive, err := r.Registry.Live(d.ID)
		if err != nil {
			log.Warn("cannot read pid record, skipping", "project", d.Name, "error", err)
			continue
		}
		if alive {
			continue
		}
		if !pathExists(d.Path) {
			log.Warn("project path missing, skipping", "project", d.Name, "path", d.Path)
			continue
		}
		log.Info("worker dead, re-spawning", "project", d.Name)
		r.respawn(log, d)
	}
	return nil
}

// respawn starts a worker and records its handle. A failed spawn is
// logged, never fatal: the next reconciliation retries it.
func (r *Reconciler) respawn(log *slog.Logger, d job.Descriptor) {
	pid, err := r.Spawner.Spawn(d)
	if err != nil {
		log.Error("failed to spawn worker", "project", d.Name, "error", err)
		return
	}
	if err := r.Registry.SetLive(d.ID, pid); err != nil {
		log.Error("failed to record worker pid", "project", d.Name, "pid", pid, "error", err)
	}
}
