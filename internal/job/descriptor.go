package job

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"autosave/internal/identity"
)

// Descriptor holds the persisted parameters of a configured job. One
// descriptor exists per project identity; it is created by `start`, read by
// the reconciler and `restart`, and removed by `end`.
type Descriptor struct {
	ID          identity.Token
	Path        string // absolute project path
	IntervalSec int
	Name        string // display name, defaults to the path's base name
	Push        bool   // push after each commit
}

// Interval returns the tick interval as a duration.
func (d Descriptor) Interval() time.Duration {
	return time.Duration(d.IntervalSec) * time.Second
}

func (d Descriptor) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("job: descriptor missing id")
	}
	if d.Path == "" || !filepath.IsAbs(d.Path) {
		return fmt.Errorf("job: descriptor path must be absolute, got %q", d.Path)
	}
	if d.IntervalSec <= 0 {
		return fmt.Errorf("job: interval must be a positive number of seconds, got %d", d.IntervalSec)
	}
	return nil
}

// Encode renders the pipe-delimited record: path|interval|name|push.
// The path is the only field that could contain a pipe; that is rejected at
// descriptor creation rather than escaped, matching the one-line-per-record
// layout.
func (d Descriptor) Encode() ([]byte, error) {
	if strings.ContainsRune(d.Path, '|') || strings.ContainsRune(d.Name, '|') {
		return nil, fmt.Errorf("job: path or name contains a pipe character: %q", d.Path)
	}
	rec := strings.Join([]string{
		d.Path,
		strconv.Itoa(d.IntervalSec),
		d.Name,
		strconv.FormatBool(d.Push),
	}, "|")
	return []byte(rec + "\n"), nil
}

// Decode parses a record produced by Encode.
func Decode(id identity.Token, data []byte) (Descriptor, error) {
	line := strings.TrimSpace(string(data))
	parts := strings.Split(line, "|")
	if len(parts) != 4 {
		return Descriptor{}, fmt.Errorf("job: malformed descriptor for %s: %q", id, line)
	}
	interval, err := strconv.Atoi(parts[1])
	if err != nil {
		return Descriptor{}, fmt.Errorf("job: bad interval in descriptor for %s: %w", id, err)
	}
	push, err := strconv.ParseBool(parts[3])
	if err != nil {
		return Descriptor{}, fmt.Errorf("job: bad push flag in descriptor for %s: %w", id, err)
	}
	d := Descriptor{
		ID:          id,
		Path:        parts[0],
		IntervalSec: interval,
		Name:        parts[2],
		Push:        push,
	}
	if err := d.Validate(); err != nil {
		return Descriptor{}, err
	}
	return d, nil
}

// New builds a descriptor for path, deriving the identity token and display
// name.
func New(path string, intervalSec int, push bool) (Descriptor, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Descriptor{}, fmt.Errorf("job: resolve %q: %w", path, err)
	}
	id, err := identity.ForPath(abs)
	if err != nil {
		return Descriptor{}, err
	}
	d := Descriptor{
		ID:          id,
		Path:        filepath.Clean(abs),
		IntervalSec: intervalSec,
		Name:        filepath.Base(abs),
		Push:        push,
	}
	if err := d.Validate(); err != nil {
		return Descriptor{}, err
	}
	return d, nil
}
