//go:build windows

package supervisor

import "syscall"

// buildSysProcAttr creates the child in its own process group on Windows so
// CREATE_NEW_PROCESS_GROUP-style signaling can target it independently of
// the daemon.
func buildSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}
