//go:build windows

package supervisor

import "os"

// Windows has no SIGTERM; termination is always forceful.
func signalTerm(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}

func signalKill(pid int) error {
	return signalTerm(pid)
}
