//go:build !windows

package registry

import "syscall"

func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	return syscall.Kill(pid, 0) == nil
}

// sendGraceful and sendForceful target the process group (negative pid) so
// a child spawned with Setpgid receives the signal along with anything it
// forked, matching the Supervisor's spawn attributes (spec §4.5).
func sendGraceful(pid int) error {
	return syscall.Kill(-pid, syscall.SIGTERM)
}

func sendForceful(pid int) error {
	return syscall.Kill(-pid, syscall.SIGKILL)
}
