package infra

import (
	"os"
	"os/exec"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessManager_CurrentProcess(t *testing.T) {
	pm := NewProcessManager()

	assert.Equal(t, os.Getpid(), pm.GetCurrentPID())
	assert.True(t, pm.IsRunning(os.Getpid()))

	name, err := pm.Name(os.Getpid())
	require.NoError(t, err)
	assert.NotEmpty(t, name)

	pids, err := pm.FindByName(name)
	require.NoError(t, err)
	assert.Contains(t, pids, os.Getpid())
}

func TestProcessManager_InvalidPID(t *testing.T) {
	pm := NewProcessManager()

	assert.False(t, pm.IsRunning(0))
	assert.False(t, pm.IsRunning(-1))
}

func TestProcessManager_KillTree(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}
	pm := NewProcessManager()

	cmd := exec.Command("sh", "-c", "sleep 30 & sleep 30; wait")
	require.NoError(t, cmd.Start())
	done := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(done)
	}()

	require.NoError(t, pm.KillTree(cmd.Process.Pid))
	<-done
	assert.False(t, pm.IsRunning(cmd.Process.Pid))
}

func TestProcessManager_ExitedProcess(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses true")
	}
	pm := NewProcessManager()

	cmd := exec.Command("true")
	require.NoError(t, cmd.Run())

	assert.False(t, pm.IsRunning(cmd.Process.Pid))
	assert.Error(t, pm.Kill(cmd.Process.Pid))
}
