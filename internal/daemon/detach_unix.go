//go:build !windows

package daemon

import (
	"os"
	"os/exec"
	"syscall"
)

// detach starts the worker in a new session so terminal signals aimed at
// the host do not reach it. The worker leads its own process group.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}
}

// terminate sends SIGTERM to the worker's process group.
func terminate(p *os.Process) error {
	if err := syscall.Kill(-p.Pid, syscall.SIGTERM); err == nil {
		return nil
	}
	return p.Signal(syscall.SIGTERM)
}

// killGroup sends SIGKILL to the worker's process group.
func killGroup(pid int) error {
	return syscall.Kill(-pid, syscall.SIGKILL)
}
