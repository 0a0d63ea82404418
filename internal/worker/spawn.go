package worker

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"autosave/internal/job"
	"autosave/internal/logger"
)

// RunCommand is the hidden CLI command a spawned worker re-execs into.
const RunCommand = "run"

// Spawner starts detached worker processes by re-executing the supervisor
// binary with the hidden run command. The child gets its own session so it
// survives the invoking command, the shell, and the whole parent tree.
type Spawner struct {
	// Bin overrides the executable path, for tests. Empty means self.
	Bin string
	// Log provides the per-project log stream the child's own stderr is
	// pointed at (worker slog output goes through lumberjack inside the
	// child; this file catches panics and anything before setup).
	Log logger.Config
	// ConfigPath is forwarded so the child loads the same configuration.
	ConfigPath string
}

// Spawn launches a worker for the descriptor and returns its pid. The
// descriptor's parameters are passed on the command line; the worker never
// re-reads the descriptor store.
func (s *Spawner) Spawn(d job.Descriptor) (int, error) {
	bin := s.Bin
	if bin == "" {
		exe, err := os.Executable()
		if err != nil {
			return 0, fmt.Errorf("worker: resolve executable: %w", err)
		}
		bin = exe
	}

	args := []string{
		RunCommand,
		"--path", d.Path,
		"--interval", strconv.Itoa(d.IntervalSec),
		"--name", d.Name,
	}
	if d.Push {
		args = append(args, "--push")
	}
	if s.ConfigPath != "" {
		args = append(args, "--config", s.ConfigPath)
	}

	// #nosec G204 -- re-exec of our own binary with validated descriptor fields
	cmd := exec.Command(bin, args...)
	cmd.SysProcAttr = detachSysProcAttr()
	cmd.Stdin = nil

	if s.Log.Dir != "" {
		if err := os.MkdirAll(s.Log.Dir, 0o755); err != nil {
			return 0, fmt.Errorf("worker: create log dir: %w", err)
		}
		// #nosec G304 -- path is derived from the project token
		f, err := os.OpenFile(s.Log.Path(d.ID.String()), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return 0, fmt.Errorf("worker: open log file: %w", err)
		}
		defer func() { _ = f.Close() }()
		cmd.Stdout = f
		cmd.Stderr = f
	}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("worker: spawn for %s: %w", d.Name, err)
	}
	pid := cmd.Process.Pid
	// Detach: the child must not become a zombie waiting on us, nor we on it.
	if err := cmd.Process.Release(); err != nil {
		return pid, fmt.Errorf("worker: release child %d: %w", pid, err)
	}
	return pid, nil
}
