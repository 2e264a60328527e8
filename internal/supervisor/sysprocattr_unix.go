//go:build !windows

package supervisor

import "syscall"

// buildSysProcAttr puts the child in its own process group so the
// registry's graceful/forceful signals (sent to -pid) reach the child and
// anything it forks, without also hitting the daemon itself.
func buildSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Setpgid: true,
	}
}
