package action

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Runner executes an external command inside dir and returns its combined
// output. It exists so tests can substitute a fake instead of a real git
// binary.
type Runner interface {
	Run(ctx context.Context, dir, name string, args ...string) (string, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, dir, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run()
	out := strings.TrimSpace(buf.String())
	if err != nil {
		if out != "" {
			return out, fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, out)
		}
		return out, fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return out, nil
}

// Git snapshots a project by staging everything and committing, optionally
// pushing afterwards.
type Git struct {
	Bin          string // git binary, default "git"
	CommitPrefix string
	Remote       string
	Push         bool

	runner Runner
	now    func() time.Time
}

// NewGit builds the snapshot action.
func NewGit(bin, commitPrefix, remote string, push bool) *Git {
	if bin == "" {
		bin = "git"
	}
	if commitPrefix == "" {
		commitPrefix = "autosave:"
	}
	if remote == "" {
		remote = "origin"
	}
	return &Git{
		Bin:          bin,
		CommitPrefix: commitPrefix,
		Remote:       remote,
		Push:         push,
		runner:       execRunner{},
		now:          time.Now,
	}
}

// Prepare ensures path is a git repository and seeds a default .gitignore
// when none exists. An existing ignore file is never touched.
func (g *Git) Prepare(path string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := g.runner.Run(ctx, path, g.Bin, "rev-parse", "--is-inside-work-tree"); err != nil {
		if _, err := g.runner.Run(ctx, path, g.Bin, "init"); err != nil {
			return fmt.Errorf("action: init repository: %w", err)
		}
	}
	return seedIgnoreFile(path)
}

// Run performs one snapshot cycle: detect changes, stage, commit, push.
// No changes is a successful no-op tick.
func (g *Git) Run(ctx context.Context, path string) (Outcome, error) {
	status, err := g.runner.Run(ctx, path, g.Bin, "status", "--porcelain")
	if err != nil {
		return Outcome{}, fmt.Errorf("action: detect changes: %w", err)
	}
	if status == "" {
		return Outcome{}, nil
	}

	out := Outcome{Changed: true}
	if _, err := g.runner.Run(ctx, path, g.Bin, "add", "-A"); err != nil {
		return out, fmt.Errorf("action: stage changes: %w", err)
	}

	out.Message = fmt.Sprintf("%s %s", g.CommitPrefix, g.now().Format("2006-01-02 15:04:05"))
	if _, err := g.runner.Run(ctx, path, g.Bin, "commit", "-m", out.Message); err != nil {
		return out, fmt.Errorf("action: commit: %w", err)
	}
	out.Committed = true

	if g.Push {
		if _, err := g.runner.Run(ctx, path, g.Bin, "push", g.Remote, "HEAD"); err != nil {
			return out, fmt.Errorf("action: push: %w", err)
		}
		out.Pushed = true
	}
	return out, nil
}

// defaultIgnore is the seed content written into a project on first
// registration when the project has no ignore file of its own.
const defaultIgnore = `# common build and editor noise
*.log
*.tmp
*.swp
.DS_Store
node_modules/
__pycache__/
*.pyc
.env
`

func seedIgnoreFile(path string) error {
	target := filepath.Join(path, ".gitignore")
	f, err := os.OpenFile(target, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return fmt.Errorf("action: seed ignore file: %w", err)
	}
	defer func() { _ = f.Close() }()
	if _, err := f.WriteString(defaultIgnore); err != nil {
		return fmt.Errorf("action: write ignore file: %w", err)
	}
	return nil
}
