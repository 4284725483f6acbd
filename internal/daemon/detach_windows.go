//go:build windows

package daemon

import (
	"os"
	"os/exec"
	"syscall"
)

const createNewProcessGroup = 0x00000200

// detach starts the worker in its own process group.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: createNewProcessGroup,
	}
}

// terminate asks the worker to exit. Windows cannot deliver an interrupt
// to another process group, so this kills directly.
func terminate(p *os.Process) error {
	return p.Kill()
}

// killGroup is covered by the process-tree kill on Windows.
func killGroup(pid int) error {
	return nil
}
