//go:build windows

package supervisor

import (
	"os/exec"
	"syscall"
)

// setupProcessGroup creates a new console/process group on Windows so the
// termination protocol can target the whole tree with CTRL_BREAK_EVENT.
func setupProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}

// interruptProcessGroup has no graceful equivalent to SIGTERM on Windows
// for a detached process group; CTRL_BREAK_EVENT is the closest analogue.
func interruptProcessGroup(cmd *exec.Cmd) error {
	d, err := syscall.LoadDLL("kernel32.dll")
	if err != nil {
		return cmd.Process.Kill()
	}
	p, err := d.FindProc("GenerateConsoleCtrlEvent")
	if err != nil {
		return cmd.Process.Kill()
	}
	r, _, err := p.Call(syscall.CTRL_BREAK_EVENT, uintptr(cmd.Process.Pid))
	if r == 0 {
		return err
	}
	return nil
}

// killProcessGroup forcibly terminates the process on Windows.
func killProcessGroup(cmd *exec.Cmd) error {
	return cmd.Process.Kill()
}
