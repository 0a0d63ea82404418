// Package history records per-tick outcomes so `status` can report what
// the last tick did without tailing the log stream.
package history

import (
	"context"
	"errors"
	"time"
)

// ErrNoTicks is returned by Last when a project has no recorded ticks.
var ErrNoTicks = errors.New("no ticks recorded")

// Status classifies a tick outcome.
type Status string

const (
	StatusOK      Status = "ok"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped" // project path inaccessible, tick not attempted
)

// Tick is one recorded invocation of the action.
type Tick struct {
	ID         string // uuid
	ProjectID  string
	StartedAt  time.Time
	FinishedAt time.Time
	Status     Status
	Detail     string // error text or commit message
}

// Sink stores tick records. Implementations must be safe for use by
// concurrently running workers.
type Sink interface {
	Append(ctx context.Context, t Tick) error
	Last(ctx context.Context, projectID string) (Tick, error)
	Close() error
}

// Nop discards everything; used when history is unavailable so a broken
// history database can never stop a worker.
type Nop struct{}

func (Nop) Append(context.Context, Tick) error { return nil }
func (Nop) Last(context.Context, string) (Tick, error) {
	return Tick{}, ErrNoTicks
}
func (Nop) Close() error { return nil }
