// Package infra implements infrastructure concerns (process, telemetry, registry, hooks).
package infra

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/eliteGoblin/focusd/attnmon/internal/domain"
)

// ProcessManagerImpl implements domain.ProcessManager using gopsutil.
type ProcessManagerImpl struct{}

// NewProcessManager creates a new process manager.
func NewProcessManager() domain.ProcessManager {
	return &ProcessManagerImpl{}
}

// FindByName returns PIDs of processes matching the pattern (case-insensitive).
func (pm *ProcessManagerImpl) FindByName(pattern string) ([]int, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, errors.Wrap(err, "failed to list processes")
	}

	var found []int
	patternLower := strings.ToLower(pattern)

	for _, p := range procs {
		name, err := p.Name()
		if err != nil {
			continue // Process may have exited
		}
		if strings.Contains(strings.ToLower(name), patternLower) {
			found = append(found, int(p.Pid))
		}
	}

	return found, nil
}

// Name returns the executable name of a running process.
func (pm *ProcessManagerImpl) Name(pid int) (string, error) {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return "", errors.Wrapf(err, "process %d not found", pid)
	}
	name, err := p.Name()
	if err != nil {
		return "", errors.Wrapf(err, "failed to read name of process %d", pid)
	}
	return name, nil
}

// Kill terminates a process by PID using SIGKILL.
func (pm *ProcessManagerImpl) Kill(pid int) error {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return errors.Wrapf(err, "process %d not found", pid)
	}
	return errors.Wrapf(p.Kill(), "failed to kill process %d", pid)
}

// KillTree kills the descendants of pid depth-first, then pid itself.
// Children that exit concurrently are ignored.
func (pm *ProcessManagerImpl) KillTree(pid int) error {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return errors.Wrapf(err, "process %d not found", pid)
	}
	killTree(p)
	if err := p.Kill(); err != nil && pm.IsRunning(pid) {
		return errors.Wrapf(err, "failed to kill process %d", pid)
	}
	return nil
}

func killTree(p *process.Process) {
	children, err := p.Children()
	if err != nil {
		return
	}
	for _, c := range children {
		killTree(c)
		_ = c.Kill()
	}
}

// IsRunning checks if a PID exists and is running.
func (pm *ProcessManagerImpl) IsRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	ok, err := process.PidExists(int32(pid))
	if err != nil || !ok {
		return false
	}
	// Reaped-but-listed zombies count as gone.
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return false
	}
	status, err := p.Status()
	if err != nil {
		return true
	}
	for _, s := range status {
		if s == process.Zombie {
			return false
		}
	}
	return true
}

// GetCurrentPID returns the current process PID.
func (pm *ProcessManagerImpl) GetCurrentPID() int {
	return os.Getpid()
}

// Ensure ProcessManagerImpl implements domain.ProcessManager.
var _ domain.ProcessManager = (*ProcessManagerImpl)(nil)
