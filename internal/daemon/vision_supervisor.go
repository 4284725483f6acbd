package daemon

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/attnmon/internal/domain"
)

// ErrWorkerSpawn wraps failures to start the vision worker.
var ErrWorkerSpawn = errors.New("failed to spawn vision worker")

// VisionConfig holds vision supervisor configuration.
type VisionConfig struct {
	Command     []string      // Worker executable and arguments
	StopTimeout time.Duration // Grace period between SIGTERM and force kill
	SampleQueue int           // Capacity of the reader to consumer channel
}

// DefaultVisionConfig returns default vision supervisor configuration.
func DefaultVisionConfig() VisionConfig {
	return VisionConfig{
		StopTimeout: 3 * time.Second,
		SampleQueue: 64,
	}
}

// VisionSupervisor runs the external eye-state worker and feeds its
// samples to a debouncer.
//
// Two goroutines run per worker: a reader that parses stdout lines and
// waits for the process, and a consumer that is the only caller of the
// debouncer. Worker exit is logged and never restarted.
type VisionSupervisor struct {
	config         VisionConfig
	debouncer      domain.EyeDebouncer
	registry       domain.WorkerRegistry
	processManager domain.ProcessManager
	logger         *zap.Logger

	mu           sync.Mutex
	running      bool
	cmd          *exec.Cmd
	stopCh       chan struct{}
	exited       chan struct{}
	consumerDone chan struct{}
}

// NewVisionSupervisor creates a supervisor. registry and pm may be nil,
// which disables stale-worker reaping and process-tree kills.
func NewVisionSupervisor(
	config VisionConfig,
	debouncer domain.EyeDebouncer,
	registry domain.WorkerRegistry,
	pm domain.ProcessManager,
	logger *zap.Logger,
) *VisionSupervisor {
	defaults := DefaultVisionConfig()
	if config.StopTimeout <= 0 {
		config.StopTimeout = defaults.StopTimeout
	}
	if config.SampleQueue <= 0 {
		config.SampleQueue = defaults.SampleQueue
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VisionSupervisor{
		config:         config,
		debouncer:      debouncer,
		registry:       registry,
		processManager: pm,
		logger:         logger,
	}
}

// ParseSample converts one worker output line into an eyes-open sample.
// Only "true" and "false" (any case, surrounding space ignored) are valid.
func ParseSample(line string) (open bool, ok bool) {
	s := strings.TrimSpace(line)
	switch {
	case strings.EqualFold(s, "true"):
		return true, true
	case strings.EqualFold(s, "false"):
		return false, true
	}
	return false, false
}

// Start spawns the worker in its own session and begins streaming samples.
// A spawn failure is logged and returned wrapping ErrWorkerSpawn; the
// supervisor stays idle. A worker recorded by another live host makes
// Start return ErrAlreadyRunning. Start waits for the consumer of a previous run
// to finish, so it must not be called from an eye event subscriber.
func (s *VisionSupervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	prev := s.consumerDone
	s.mu.Unlock()

	if prev != nil {
		<-prev
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyRunning
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(s.config.Command) == 0 || s.config.Command[0] == "" {
		err := fmt.Errorf("%w: no worker command configured", ErrWorkerSpawn)
		s.logger.Error("vision worker not started", zap.Error(err))
		return err
	}

	if err := s.reapStale(); err != nil {
		s.logger.Error("vision worker not started", zap.Error(err))
		return err
	}

	cmd := exec.Command(s.config.Command[0], s.config.Command[1:]...)
	detach(cmd)
	cmd.Stderr = &lineLogger{logger: s.logger.With(zap.String("stream", "stderr"))}
	cmd.WaitDelay = time.Second

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrWorkerSpawn, err)
		s.logger.Error("vision worker not started", zap.Error(err))
		return err
	}
	if err := cmd.Start(); err != nil {
		err = fmt.Errorf("%w: %w", ErrWorkerSpawn, err)
		s.logger.Error("vision worker not started",
			zap.String("command", s.config.Command[0]),
			zap.Error(err))
		return err
	}

	s.running = true
	s.cmd = cmd
	s.stopCh = make(chan struct{})
	s.exited = make(chan struct{})
	s.consumerDone = make(chan struct{})

	s.record(cmd)

	samples := make(chan bool, s.config.SampleQueue)
	go s.read(cmd, stdout, samples, s.stopCh, s.exited)
	go s.consume(samples, s.stopCh, s.consumerDone)

	s.logger.Info("vision worker started",
		zap.String("command", s.config.Command[0]),
		zap.Int("pid", cmd.Process.Pid))
	return nil
}

// Stop terminates the worker: SIGTERM, a bounded wait, then a forced kill
// of the whole process tree. It never waits on the consumer goroutine, so
// it is safe to call from a subscriber. Stop before Start, or a second
// Stop, is a no-op.
func (s *VisionSupervisor) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	cmd, exited := s.cmd, s.exited
	s.running = false
	s.cmd = nil
	close(s.stopCh)
	s.clearRecord()
	s.mu.Unlock()

	pid := cmd.Process.Pid
	s.logger.Info("stopping vision worker", zap.Int("pid", pid))

	if err := terminate(cmd.Process); err != nil {
		s.logger.Debug("graceful stop failed", zap.Int("pid", pid), zap.Error(err))
	}

	var stopErr error
	select {
	case <-exited:
	case <-time.After(s.config.StopTimeout):
		s.logger.Warn("vision worker ignored SIGTERM, killing",
			zap.Int("pid", pid),
			zap.Duration("timeout", s.config.StopTimeout))
		stopErr = s.kill(cmd)
		select {
		case <-exited:
		case <-time.After(s.config.StopTimeout):
			s.logger.Error("vision worker did not exit after kill", zap.Int("pid", pid))
			_ = cmd.Process.Release()
		}
	}

	return stopErr
}

// Running reports whether a worker is active.
func (s *VisionSupervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// PID returns the worker PID, or 0 when none is running.
func (s *VisionSupervisor) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil || s.cmd.Process == nil {
		return 0
	}
	return s.cmd.Process.Pid
}

// Done is closed once the consumer of the current run has reset the
// debouncer and exited. It is nil before the first Start.
func (s *VisionSupervisor) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consumerDone
}

// read parses worker stdout until EOF, then reaps the process.
func (s *VisionSupervisor) read(cmd *exec.Cmd, stdout io.Reader, samples chan<- bool, stopCh, exited chan struct{}) {
	defer close(exited)
	defer close(samples)

	var parsed, discarded int
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		open, ok := ParseSample(scanner.Text())
		if !ok {
			discarded++
			s.logger.Debug("discarded worker line", zap.String("line", scanner.Text()))
			continue
		}
		parsed++
		select {
		case samples <- open:
		case <-stopCh:
			// Keep draining so the worker never blocks on a full pipe.
		}
	}
	if err := scanner.Err(); err != nil {
		s.logger.Debug("worker stream read error", zap.Error(err))
	}

	waitErr := cmd.Wait()
	s.logger.Info("vision worker stream ended",
		zap.Int("pid", cmd.Process.Pid),
		zap.Int("samples", parsed),
		zap.Int("discarded", discarded),
		zap.String("exit", exitStatus(waitErr)))

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == cmd {
		// Exited on its own; a later Start is allowed without Stop.
		s.running = false
		s.cmd = nil
		s.clearRecord()
	}
}

// consume is the only goroutine that touches the debouncer while a run
// is active. It resets the debouncer on exit.
func (s *VisionSupervisor) consume(samples <-chan bool, stopCh, done chan struct{}) {
	defer close(done)
	defer s.debouncer.Reset()

	for {
		select {
		case open, ok := <-samples:
			if !ok {
				return
			}
			s.debouncer.Ingest(open)
		case <-stopCh:
			return
		}
	}
}

func (s *VisionSupervisor) kill(cmd *exec.Cmd) error {
	pid := cmd.Process.Pid
	if err := killGroup(pid); err != nil {
		s.logger.Debug("process group kill failed", zap.Int("pid", pid), zap.Error(err))
	}
	if s.processManager != nil {
		err := s.processManager.KillTree(pid)
		if err == nil {
			return nil
		}
		s.logger.Debug("process tree kill failed", zap.Int("pid", pid), zap.Error(err))
	}
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to kill vision worker %d: %w", pid, err)
	}
	return nil
}

// reapStale kills a worker left behind by a host that died without
// calling Stop. The record is cleared only once it is known to be stale;
// a worker still owned by a live host keeps its record and blocks Start.
// Called with s.mu held.
func (s *VisionSupervisor) reapStale() error {
	if s.registry == nil {
		return nil
	}
	rec, err := s.registry.Load()
	if err != nil {
		s.logger.Warn("failed to read worker registry", zap.Error(err))
		return nil
	}
	if rec == nil {
		return nil
	}

	if s.processManager == nil || !s.processManager.IsRunning(rec.PID) {
		s.clearRecord()
		return nil
	}
	if rec.HostPID != s.processManager.GetCurrentPID() && s.processManager.IsRunning(rec.HostPID) {
		return fmt.Errorf("%w: vision worker %d is owned by live host %d", ErrAlreadyRunning, rec.PID, rec.HostPID)
	}

	name, err := s.processManager.Name(rec.PID)
	if err != nil || !sameExecutable(name, rec.Executable) {
		// PID reused by an unrelated process.
		s.clearRecord()
		return nil
	}
	if err := s.processManager.KillTree(rec.PID); err != nil {
		return fmt.Errorf("%w: stale worker %d could not be reaped: %w", ErrWorkerSpawn, rec.PID, err)
	}
	s.logger.Info("reaped stale vision worker", zap.Int("pid", rec.PID), zap.String("name", name))
	s.clearRecord()
	return nil
}

func (s *VisionSupervisor) record(cmd *exec.Cmd) {
	if s.registry == nil {
		return
	}
	rec := domain.WorkerRecord{
		PID:        cmd.Process.Pid,
		Executable: s.config.Command[0],
		StartedAt:  time.Now().Unix(),
		HostPID:    os.Getpid(),
	}
	if err := s.registry.Save(rec); err != nil {
		s.logger.Warn("failed to record vision worker", zap.Error(err))
	}
}

func (s *VisionSupervisor) clearRecord() {
	if s.registry == nil {
		return
	}
	if err := s.registry.Clear(); err != nil {
		s.logger.Warn("failed to clear worker registry", zap.Error(err))
	}
}

// sameExecutable compares a process name against a recorded executable
// path. Process names may be truncated by the OS.
func sameExecutable(name, executable string) bool {
	base := strings.TrimSuffix(strings.ToLower(filepath.Base(executable)), ".exe")
	name = strings.TrimSuffix(strings.ToLower(name), ".exe")
	if name == "" || base == "" {
		return false
	}
	return name == base || strings.HasPrefix(base, name)
}

func exitStatus(err error) string {
	if err == nil {
		return "exit status 0"
	}
	return err.Error()
}

// lineLogger logs each complete line written to it at debug level.
type lineLogger struct {
	logger *zap.Logger
	buf    []byte
}

func (l *lineLogger) Write(p []byte) (int, error) {
	l.buf = append(l.buf, p...)
	for {
		i := bytes.IndexByte(l.buf, '\n')
		if i < 0 {
			break
		}
		if line := strings.TrimSpace(string(l.buf[:i])); line != "" {
			l.logger.Debug("vision worker output", zap.String("line", line))
		}
		l.buf = l.buf[i+1:]
	}
	return len(p), nil
}
