package trigger

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// crontab entry marker; lines carrying it are owned by this tool and
// replaced wholesale on reinstall.
const cronMarker = "# autosave-reconcile"

// hourlySchedule is the safety-net schedule written next to the @reboot
// line. Validated before installation so a typo here can never wedge the
// user's crontab.
const hourlySchedule = "0 * * * *"

// Crontab installs a @reboot plus hourly crontab pair. The fallback when
// no systemd user manager is reachable.
type Crontab struct {
	runner CommandRunner
}

func NewCrontab() *Crontab {
	return &Crontab{runner: execCommandRunner{}}
}

func (c *Crontab) Name() string { return "crontab" }

func (c *Crontab) Available() bool {
	_, err := exec.LookPath("crontab")
	return err == nil
}

func (c *Crontab) Install(binPath string) error {
	if _, err := cron.ParseStandard(hourlySchedule); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", hourlySchedule, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// `crontab -l` exits non-zero when no crontab exists; that is an
	// empty starting point, not a failure.
	existing, _ := c.runner.Run(ctx, "crontab", "-l")

	updated := renderCrontab(existing, binPath)
	if updated == existing {
		return nil
	}
	if _, err := c.runner.Run(ctx, "sh", "-c", "printf '%s\n' "+shellQuote(updated)+" | crontab -"); err != nil {
		return fmt.Errorf("write crontab: %w", err)
	}
	return nil
}

// renderCrontab returns the crontab content with exactly one marked
// @reboot line and one marked hourly line, preserving everything else.
func renderCrontab(existing, binPath string) string {
	var kept []string
	for _, line := range strings.Split(existing, "\n") {
		if strings.Contains(line, cronMarker) || strings.TrimSpace(line) == "" {
			continue
		}
		kept = append(kept, line)
	}
	kept = append(kept,
		fmt.Sprintf("@reboot %s reconcile %s", binPath, cronMarker),
		fmt.Sprintf("%s %s reconcile %s", hourlySchedule, binPath, cronMarker),
	)
	return strings.Join(kept, "\n")
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
