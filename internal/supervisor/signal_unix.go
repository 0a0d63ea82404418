//go:build !windows

package supervisor

import "syscall"

// signalTerm asks the worker to stop gracefully. ESRCH surfaces as an
// error, which terminate reads as "already gone".
func signalTerm(pid int) error {
	return syscall.Kill(pid, syscall.SIGTERM)
}

func signalKill(pid int) error {
	return syscall.Kill(pid, syscall.SIGKILL)
}
