//go:build !windows

// Package fixtures provides test helpers for integration tests.
package fixtures

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
)

// FakeWorker writes shell scripts that stand in for the vision worker.
type FakeWorker struct {
	Dir string
}

// NewFakeWorker creates a generator writing scripts into dir.
func NewFakeWorker(dir string) *FakeWorker {
	return &FakeWorker{Dir: dir}
}

// Script writes an executable /bin/sh script and returns its path.
func (w *FakeWorker) Script(name, body string) (string, error) {
	path := filepath.Join(w.Dir, name)
	content := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(content), 0755); err != nil {
		return "", err
	}
	return path, nil
}

// Streaming writes a worker that prints one line per sample and then
// idles until it is signalled.
func (w *FakeWorker) Streaming(name string, samples ...bool) (string, error) {
	var b strings.Builder
	for _, open := range samples {
		fmt.Fprintf(&b, "echo %t\n", open)
	}
	b.WriteString("while :; do sleep 1; done")
	return w.Script(name, b.String())
}

// Stubborn writes a worker that ignores SIGTERM.
func (w *FakeWorker) Stubborn(name string) (string, error) {
	return w.Script(name, "trap '' TERM\necho true\nwhile :; do sleep 1; done")
}

// Finite writes a worker that prints lines and exits.
func (w *FakeWorker) Finite(name string, lines ...string) (string, error) {
	var b strings.Builder
	for _, l := range lines {
		fmt.Fprintf(&b, "echo '%s'\n", l)
	}
	b.WriteString("exit 0")
	return w.Script(name, b.String())
}

// Spawn starts path in its own process group, the way an orphaned worker
// would be left running. The caller owns the returned command.
func (w *FakeWorker) Spawn(path string) (*exec.Cmd, error) {
	cmd := exec.Command(path)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return cmd, nil
}

// DeadPID returns the PID of a process that has already exited.
func DeadPID() (int, error) {
	cmd := exec.Command("true")
	if err := cmd.Run(); err != nil {
		return 0, err
	}
	return cmd.Process.Pid, nil
}
