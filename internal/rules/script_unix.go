//go:build !windows

package rules

import (
	"os/exec"
	"syscall"
)

// setProcGroup puts the child in its own process group so a timeout kill
// reaches every descendant, not just the direct child.
func setProcGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func killProcGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	// Negative pid signals the whole group. Fall back to a direct kill if
	// the group is already gone.
	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil {
		cmd.Process.Kill()
	}
}
