//go:build !windows

package supervisor

import (
	"os/exec"
	"syscall"
)

// setupProcessGroup puts the worker subprocess in its own process group so
// the termination protocol can signal the whole tree, not just the direct
// child, mirroring the teacher's Setpgid dance.
func setupProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
		Pgid:    0,
	}
}

// interruptProcessGroup sends SIGTERM to the process group, spec §4.2
// step 5's soft signal.
func interruptProcessGroup(cmd *exec.Cmd) error {
	return syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
}

// killProcessGroup sends SIGKILL to the process group, spec §4.2 step 5's
// hard kill after the grace period elapses.
func killProcessGroup(cmd *exec.Cmd) error {
	return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
}
