//go:build windows

package rules

import "os/exec"

// Windows has no process groups in the POSIX sense; killing the direct
// child is the best this process can do without job objects.
func setProcGroup(cmd *exec.Cmd) {}

func killProcGroup(cmd *exec.Cmd) {
	if cmd.Process != nil {
		cmd.Process.Kill()
	}
}
