// Package daemon implements the long-running window and vision monitors.
package daemon

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/attnmon/internal/domain"
	"github.com/eliteGoblin/focusd/attnmon/internal/eventbus"
)

// ErrAlreadyRunning is returned by Start on a monitor that is running.
var ErrAlreadyRunning = errors.New("already running")

// Scheduler supplies the delay between monitor ticks.
type Scheduler interface {
	After(d time.Duration) <-chan time.Time
}

type timeScheduler struct{}

func (timeScheduler) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// WindowMonitorConfig holds window monitor configuration.
type WindowMonitorConfig struct {
	PollInterval time.Duration // Delay between the end of one tick and the next
}

// DefaultWindowMonitorConfig returns default window monitor configuration.
func DefaultWindowMonitorConfig() WindowMonitorConfig {
	return WindowMonitorConfig{
		PollInterval: 500 * time.Millisecond,
	}
}

// WindowMonitor polls the foreground window and publishes a WindowEvent
// whenever the activity label changes.
// Each tick runs fetch, classify and publish to completion before the
// next delay starts, so ticks never overlap.
type WindowMonitor struct {
	config     WindowMonitorConfig
	telemetry  domain.TelemetryProvider
	classifier domain.ActivityClassifier
	bus        *eventbus.Bus[domain.WindowEvent]
	scheduler  Scheduler
	logger     *zap.Logger
	now        func() time.Time

	mu      sync.Mutex
	state   domain.ActivityState
	running bool
	stopCh  chan struct{}
	done    chan struct{}
}

// NewWindowMonitor creates a new window monitor.
func NewWindowMonitor(
	config WindowMonitorConfig,
	tp domain.TelemetryProvider,
	classifier domain.ActivityClassifier,
	bus *eventbus.Bus[domain.WindowEvent],
	logger *zap.Logger,
) *WindowMonitor {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultWindowMonitorConfig().PollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	done := make(chan struct{})
	close(done)
	return &WindowMonitor{
		config:     config,
		telemetry:  tp,
		classifier: classifier,
		bus:        bus,
		scheduler:  timeScheduler{},
		logger:     logger,
		now:        time.Now,
		state:      domain.ActivityState{Label: domain.LabelUnclassified},
		done:       done,
	}
}

// SetScheduler replaces the tick scheduler. Call before Start.
func (m *WindowMonitor) SetScheduler(s Scheduler) {
	m.scheduler = s
}

// SetNow overrides the clock used for event timestamps.
func (m *WindowMonitor) SetNow(now func() time.Time) {
	m.now = now
}

// Start primes the stored label from the current window without
// publishing, then starts the polling loop.
// Start waits for a previously stopped loop to exit, so it must not be
// called from a window event subscriber.
func (m *WindowMonitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return ErrAlreadyRunning
	}
	prev := m.done
	m.mu.Unlock()

	<-prev

	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return ErrAlreadyRunning
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.done = make(chan struct{})
	stopCh, done := m.stopCh, m.done
	m.mu.Unlock()

	m.prime(ctx)

	m.logger.Info("window monitor started",
		zap.Duration("interval", m.config.PollInterval),
		zap.String("label", string(m.State().Label)))

	go m.loop(ctx, stopCh, done)
	return nil
}

// Stop ends the polling loop. It does not wait for an in-flight tick,
// so it is safe to call from a subscriber. Calling Stop more than once,
// or before Start, is a no-op.
func (m *WindowMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}
	m.running = false
	close(m.stopCh)
	m.logger.Info("window monitor stopping")
}

// Done is closed when the current loop has exited.
func (m *WindowMonitor) Done() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.done
}

// Running reports whether the loop is active.
func (m *WindowMonitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// State returns a copy of the change-detection state.
func (m *WindowMonitor) State() domain.ActivityState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyState(m.state)
}

func (m *WindowMonitor) loop(ctx context.Context, stopCh, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("window monitor stopped", zap.Error(ctx.Err()))
			m.markStopped(stopCh)
			return
		case <-stopCh:
			m.logger.Info("window monitor stopped")
			return
		case <-m.scheduler.After(m.config.PollInterval):
		}

		// Stop may have landed while we were waiting on the timer.
		select {
		case <-stopCh:
			m.logger.Info("window monitor stopped")
			return
		default:
		}

		m.Tick(ctx)
	}
}

// markStopped clears the running flag when the loop ends via its context.
func (m *WindowMonitor) markStopped(stopCh chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running && m.stopCh == stopCh {
		m.running = false
		close(m.stopCh)
	}
}

// Tick runs one evaluation: fetch, classify when the window or tab
// changed, and publish when the label changed.
func (m *WindowMonitor) Tick(ctx context.Context) {
	prev := m.State()

	next, title, evaluated := m.observe(ctx, prev, false)

	m.mu.Lock()
	m.state = next
	m.mu.Unlock()

	if !evaluated || next.Label == prev.Label {
		return
	}

	m.logger.Info("activity changed",
		zap.String("previous", string(prev.Label)),
		zap.String("current", string(next.Label)),
		zap.String("title", title))

	if m.bus != nil {
		m.bus.Publish(domain.WindowEvent{
			Previous: prev.Label,
			Current:  next.Label,
			Title:    title,
			At:       m.now(),
		})
	}
}

func (m *WindowMonitor) prime(ctx context.Context) {
	next, _, _ := m.observe(ctx, m.State(), true)

	m.mu.Lock()
	m.state = next
	m.mu.Unlock()
}

// observe reads telemetry and computes the next state. evaluated is false
// when the window and tab are unchanged, in which case the label carries over.
func (m *WindowMonitor) observe(ctx context.Context, prev domain.ActivityState, force bool) (domain.ActivityState, string, bool) {
	win, ok := m.telemetry.WindowSnapshot(ctx)
	if !ok {
		m.logger.Debug("window snapshot unavailable")
		return domain.ActivityState{Label: domain.LabelUnclassified}, "", true
	}

	var tab *domain.TabSnapshot
	browser := m.classifier.IsBrowser(win.ProcessName)
	if browser {
		if t, ok := m.telemetry.TabSnapshot(ctx); ok {
			tab = t
		} else {
			m.logger.Debug("tab snapshot unavailable",
				zap.String("process", win.ProcessName))
		}
	}

	next := domain.ActivityState{
		Label:     prev.Label,
		Handle:    win.Handle,
		HasHandle: true,
		Tab:       tab,
	}

	handleChanged := !prev.HasHandle || prev.Handle != win.Handle
	tabChanged := browser && !tab.Equal(prev.Tab)
	if !force && !handleChanged && !tabChanged {
		return next, win.Title, false
	}

	next.Label = m.classifier.Classify(win, tab)
	m.logger.Debug("classified",
		zap.String("handle", win.Handle),
		zap.String("process", win.ProcessName),
		zap.Bool("browser", browser),
		zap.String("label", string(next.Label)))
	return next, win.Title, true
}

func copyState(s domain.ActivityState) domain.ActivityState {
	if s.Tab != nil {
		tab := *s.Tab
		s.Tab = &tab
	}
	return s
}
