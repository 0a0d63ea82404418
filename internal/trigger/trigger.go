// Package trigger registers an OS-level periodic mechanism that invokes
// the reconciler with no human interaction: shortly after every boot and
// at least hourly thereafter as a safety net against missed boot events.
package trigger

import (
	"errors"
	"fmt"
	"log/slog"
)

// Backend is one way of installing the periodic trigger. Backends are
// tried in order; the first success wins.
type Backend interface {
	Name() string
	// Available reports whether this backend can work on this machine at
	// all (binary present and so on); Install may still fail.
	Available() bool
	// Install registers the trigger to invoke `binPath reconcile`.
	// Installing an already-installed trigger must succeed (idempotent).
	Install(binPath string) error
}

// Installer walks its backends in order.
type Installer struct {
	Backends []Backend
	Logger   *slog.Logger
}

// NewInstaller returns the default chain: systemd user timer first,
// crontab fallback.
func NewInstaller(logger *slog.Logger) *Installer {
	return &Installer{
		Backends: []Backend{NewSystemd(), NewCrontab()},
		Logger:   logger,
	}
}

// Install tries each backend until one succeeds.
func (i *Installer) Install(binPath string) error {
	log := i.Logger
	if log == nil {
		log = slog.Default()
	}
	var errs []error
	for _, b := range i.Backends {
		if !b.Available() {
			log.Debug("trigger backend unavailable", "backend", b.Name())
			continue
		}
		if err := b.Install(binPath); err != nil {
			log.Warn("trigger backend failed", "backend", b.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", b.Name(), err))
			continue
		}
		log.Info("periodic trigger installed", "backend", b.Name())
		return nil
	}
	if len(errs) == 0 {
		return errors.New("trigger: no backend available on this machine")
	}
	return fmt.Errorf("trigger: all backends failed: %w", errors.Join(errs...))
}
