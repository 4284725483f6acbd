package infra

import (
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/attnmon/internal/domain"
	"github.com/eliteGoblin/focusd/attnmon/internal/eventbus"
)

// Hook event kinds.
const (
	HookWindow = "window"
	HookEye    = "eye"
)

// Hook runs Command when an event of kind Event transitions into State.
// State is an activity label for window hooks and "open"/"closed" for eye
// hooks; an empty State matches every transition of that kind.
type Hook struct {
	Event   string   `json:"event" yaml:"event" mapstructure:"event"`
	State   string   `json:"state" yaml:"state" mapstructure:"state"`
	Command []string `json:"command" yaml:"command" mapstructure:"command"`
}

// HookRunner starts intervention commands on transitions. Commands run
// detached from the publisher: HandleEvent only starts the process.
type HookRunner struct {
	hooks  []Hook
	logger *zap.Logger
	wg     sync.WaitGroup

	mu      sync.Mutex
	running map[*os.Process]string

	window *eventbus.FuncSubscriber[domain.WindowEvent]
	eye    *eventbus.FuncSubscriber[domain.EyeEvent]
}

// NewHookRunner creates a runner for hooks. Hooks with an unknown event
// kind or an empty command are rejected.
func NewHookRunner(hooks []Hook, logger *zap.Logger) (*HookRunner, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	for i, h := range hooks {
		if h.Event != HookWindow && h.Event != HookEye {
			return nil, errors.Errorf("hook %d: unknown event %q", i, h.Event)
		}
		if len(h.Command) == 0 || h.Command[0] == "" {
			return nil, errors.Errorf("hook %d: empty command", i)
		}
	}
	r := &HookRunner{hooks: hooks, logger: logger, running: make(map[*os.Process]string)}
	r.window = eventbus.Func(r.onWindow)
	r.eye = eventbus.Func(r.onEye)
	return r, nil
}

// WindowSubscriber returns the subscriber to attach to the window bus.
func (r *HookRunner) WindowSubscriber() eventbus.Subscriber[domain.WindowEvent] {
	return r.window
}

// EyeSubscriber returns the subscriber to attach to the eye bus.
func (r *HookRunner) EyeSubscriber() eventbus.Subscriber[domain.EyeEvent] {
	return r.eye
}

// Wait blocks until every started hook has exited.
func (r *HookRunner) Wait() {
	r.wg.Wait()
}

// Shutdown waits up to timeout for running hooks, then kills the rest
// and waits for them to be reaped.
func (r *HookRunner) Shutdown(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return
	case <-time.After(timeout):
	}

	r.mu.Lock()
	for p, name := range r.running {
		r.logger.Warn("killing hook still running at shutdown",
			zap.String("command", name),
			zap.Int("pid", p.Pid))
		_ = p.Kill()
	}
	r.mu.Unlock()
	<-done
}

func (r *HookRunner) onWindow(e domain.WindowEvent) error {
	env := []string{
		"ATTNMON_EVENT=" + HookWindow,
		"ATTNMON_PREVIOUS=" + string(e.Previous),
		"ATTNMON_CURRENT=" + string(e.Current),
		"ATTNMON_TITLE=" + e.Title,
	}
	return r.fire(HookWindow, string(e.Current), env)
}

func (r *HookRunner) onEye(e domain.EyeEvent) error {
	env := []string{
		"ATTNMON_EVENT=" + HookEye,
		"ATTNMON_CURRENT=" + string(e.State()),
		"ATTNMON_EYES_CLOSED=" + strconv.FormatBool(e.Closed),
	}
	return r.fire(HookEye, string(e.State()), env)
}

func (r *HookRunner) fire(kind, state string, env []string) error {
	var failed []string
	for _, h := range r.hooks {
		if h.Event != kind || (h.State != "" && !strings.EqualFold(h.State, state)) {
			continue
		}
		if err := r.start(h, env); err != nil {
			failed = append(failed, err.Error())
		}
	}
	if len(failed) > 0 {
		return errors.New(strings.Join(failed, "; "))
	}
	return nil
}

func (r *HookRunner) start(h Hook, env []string) error {
	cmd := exec.Command(h.Command[0], h.Command[1:]...)
	cmd.Env = append(os.Environ(), env...)
	if err := cmd.Start(); err != nil {
		return errors.Wrapf(err, "failed to start hook %s", h.Command[0])
	}

	r.logger.Info("hook started",
		zap.String("event", h.Event),
		zap.String("command", h.Command[0]),
		zap.Int("pid", cmd.Process.Pid))

	r.mu.Lock()
	r.running[cmd.Process] = h.Command[0]
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		err := cmd.Wait()

		r.mu.Lock()
		delete(r.running, cmd.Process)
		r.mu.Unlock()

		if err != nil {
			r.logger.Warn("hook exited with error",
				zap.String("command", h.Command[0]),
				zap.Error(err))
		}
	}()
	return nil
}
