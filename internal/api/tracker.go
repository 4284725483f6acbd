package api

import (
	"sync"

	"github.com/eliteGoblin/focusd/attnmon/internal/domain"
	"github.com/eliteGoblin/focusd/attnmon/internal/eventbus"
)

// Tracker subscribes to both buses, keeps the latest snapshot and
// forwards every event to the broadcaster.
type Tracker struct {
	mu    sync.RWMutex
	state Snapshot
	out   *Broadcaster

	window *eventbus.FuncSubscriber[domain.WindowEvent]
	eye    *eventbus.FuncSubscriber[domain.EyeEvent]
}

// NewTracker creates a tracker starting from an unclassified, open state.
// out may be nil.
func NewTracker(out *Broadcaster) *Tracker {
	t := &Tracker{
		state: Snapshot{Label: domain.LabelUnclassified, Eye: domain.EyeOpen},
		out:   out,
	}
	t.window = eventbus.Func(t.onWindow)
	t.eye = eventbus.Func(t.onEye)
	return t
}

// WindowSubscriber returns the subscriber to attach to the window bus.
func (t *Tracker) WindowSubscriber() eventbus.Subscriber[domain.WindowEvent] {
	return t.window
}

// EyeSubscriber returns the subscriber to attach to the eye bus.
func (t *Tracker) EyeSubscriber() eventbus.Subscriber[domain.EyeEvent] {
	return t.eye
}

// Seed sets the label the window monitor primed without publishing.
func (t *Tracker) Seed(label domain.ActivityLabel) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.Label = label
}

// Snapshot returns the latest state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

func (t *Tracker) onWindow(e domain.WindowEvent) error {
	t.mu.Lock()
	t.state.Label = e.Current
	t.state.Title = e.Title
	t.state.WindowEvents++
	t.state.UpdatedAt = e.At
	t.mu.Unlock()

	if t.out != nil {
		env := newEnvelope(MsgWindow, e.At)
		env.Window = &e
		t.out.Broadcast(env)
	}
	return nil
}

func (t *Tracker) onEye(e domain.EyeEvent) error {
	t.mu.Lock()
	t.state.Eye = e.State()
	t.state.EyeEvents++
	t.state.UpdatedAt = e.At
	t.mu.Unlock()

	if t.out != nil {
		env := newEnvelope(MsgEye, e.At)
		env.Eye = &e
		t.out.Broadcast(env)
	}
	return nil
}
