//go:build !windows

package worker

import "syscall"

// detachSysProcAttr puts the child in a new session so it is not tied to
// the invoking terminal or its process group.
func detachSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}
