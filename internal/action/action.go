// Package action holds the per-tick work a job performs. The supervisor
// itself does not know what an action does, only that it can be prepared
// once at registration, invoked once per tick, and may fail without
// consequence for the tick loop.
package action

import "context"

// Outcome describes what a single invocation did.
type Outcome struct {
	Changed   bool   // the project had uncommitted changes
	Committed bool   // a snapshot commit was created
	Pushed    bool   // the commit was pushed to the remote
	Message   string // commit message, when one was created
}

// Action is the external collaborator contract.
type Action interface {
	// Prepare performs one-time project setup at registration.
	Prepare(path string) error
	// Run performs one tick's work inside path.
	Run(ctx context.Context, path string) (Outcome, error)
}
