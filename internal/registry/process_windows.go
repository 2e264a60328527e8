//go:build windows

package registry

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
)

func isProcessAlive(pid int) bool {
	out, err := exec.Command("tasklist", "/FI", fmt.Sprintf("PID eq %d", pid)).CombinedOutput()
	if err != nil {
		return false
	}
	return strings.Contains(string(out), fmt.Sprintf("%d", pid))
}

// sendGraceful on Windows calls Signal(os.Interrupt), which the os package
// does not deliver on Windows and reports as an error; no CTRL_BREAK_EVENT
// is sent, so Terminate ignores the error and ends with sendForceful once
// its wait expires. There is no process-group equivalent of the unix
// implementation's group kill.
func sendGraceful(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Signal(os.Interrupt)
}

func sendForceful(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Kill()
}
