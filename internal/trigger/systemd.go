package trigger

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const systemdUnitName = "autosave-reconcile"

const systemdServiceTmpl = `[Unit]
Description=autosave job reconciler

[Service]
Type=oneshot
ExecStart=%s reconcile
`

const systemdTimerTmpl = `[Unit]
Description=autosave reconcile timer

[Timer]
OnBootSec=2min
OnUnitActiveSec=1h
Persistent=true

[Install]
WantedBy=timers.target
`

// Systemd installs a per-user systemd timer. Preferred because the timer
// survives reboots and fires within minutes of boot without a crontab.
type Systemd struct {
	runner  CommandRunner
	unitDir string // override for tests; default ~/.config/systemd/user
}

func NewSystemd() *Systemd {
	return &Systemd{runner: execCommandRunner{}}
}

func (s *Systemd) Name() string { return "systemd-user-timer" }

func (s *Systemd) Available() bool {
	if _, err := exec.LookPath("systemctl"); err != nil {
		return false
	}
	// A user manager requires a runtime dir; without one (bare server
	// session, containers) systemctl --user cannot connect.
	return os.Getenv("XDG_RUNTIME_DIR") != ""
}

func (s *Systemd) Install(binPath string) error {
	dir := s.unitDir
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolve home dir: %w", err)
		}
		dir = filepath.Join(home, ".config", "systemd", "user")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create unit dir: %w", err)
	}

	service := fmt.Sprintf(systemdServiceTmpl, binPath)
	if err := os.WriteFile(filepath.Join(dir, systemdUnitName+".service"), []byte(service), 0o644); err != nil {
		return fmt.Errorf("write service unit: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, systemdUnitName+".timer"), []byte(systemdTimerTmpl), 0o644); err != nil {
		return fmt.Errorf("write timer unit: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := s.runner.Run(ctx, "systemctl", "--user", "daemon-reload"); err != nil {
		return fmt.Errorf("daemon-reload: %w", err)
	}
	if _, err := s.runner.Run(ctx, "systemctl", "--user", "enable", "--now", systemdUnitName+".timer"); err != nil {
		return fmt.Errorf("enable timer: %w", err)
	}
	return nil
}

// CommandRunner executes an external command and returns combined output.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

type execCommandRunner struct{}

func (execCommandRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	trimmed := strings.TrimSpace(string(out))
	if err != nil {
		if trimmed != "" {
			return trimmed, fmt.Errorf("%s: %w: %s", name, err, trimmed)
		}
		return trimmed, fmt.Errorf("%s: %w", name, err)
	}
	return trimmed, nil
}
