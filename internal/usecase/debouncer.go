package usecase

import (
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/attnmon/internal/domain"
	"github.com/eliteGoblin/focusd/attnmon/internal/eventbus"
)

// Debounce strategy names accepted by NewEyeDebouncer.
const (
	StrategyUnanimous = "unanimous"
	StrategySustained = "sustained"
)

// DefaultWindowSize is the number of samples the unanimity window holds.
const DefaultWindowSize = 5

// DebouncerConfig selects and parameterizes a debounce strategy.
type DebouncerConfig struct {
	Strategy   string
	WindowSize int
	Threshold  time.Duration
}

// NewEyeDebouncer builds the debouncer named by cfg.Strategy.
// An empty strategy selects the unanimity window.
func NewEyeDebouncer(cfg DebouncerConfig, bus *eventbus.Bus[domain.EyeEvent], logger *zap.Logger) domain.EyeDebouncer {
	if cfg.Strategy == StrategySustained {
		return NewSustainedClosureDebouncer(cfg.Threshold, bus, logger)
	}
	return NewUnanimityDebouncer(cfg.WindowSize, bus, logger)
}

// UnanimityDebouncer emits a transition only when the last N samples agree.
// A single disagreeing sample anywhere in the window blocks a verdict.
type UnanimityDebouncer struct {
	bus    *eventbus.Bus[domain.EyeEvent]
	logger *zap.Logger
	now    func() time.Time

	buf   []bool
	next  int
	count int
	state domain.EyeState
}

// NewUnanimityDebouncer creates a debouncer over a ring of size samples.
// size <= 0 selects DefaultWindowSize.
func NewUnanimityDebouncer(size int, bus *eventbus.Bus[domain.EyeEvent], logger *zap.Logger) *UnanimityDebouncer {
	if size <= 0 {
		size = DefaultWindowSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UnanimityDebouncer{
		bus:    bus,
		logger: logger,
		now:    time.Now,
		buf:    make([]bool, size),
		state:  domain.EyeOpen,
	}
}

// Ingest appends a sample and publishes on a unanimous change of state.
func (d *UnanimityDebouncer) Ingest(open bool) {
	d.buf[d.next] = open
	d.next = (d.next + 1) % len(d.buf)
	if d.count < len(d.buf) {
		d.count++
	}
	if d.count < len(d.buf) {
		return
	}

	candidate, ok := d.verdict()
	if !ok || candidate == d.state {
		return
	}
	d.state = candidate
	d.logger.Info("eye state changed",
		zap.String("state", string(candidate)),
		zap.String("strategy", StrategyUnanimous))
	publishEye(d.bus, candidate == domain.EyeClosed, d.now())
}

func (d *UnanimityDebouncer) verdict() (domain.EyeState, bool) {
	first := d.buf[0]
	for _, v := range d.buf[1:] {
		if v != first {
			return "", false
		}
	}
	if first {
		return domain.EyeOpen, true
	}
	return domain.EyeClosed, true
}

// Reset clears the window and returns to EyeOpen without publishing.
func (d *UnanimityDebouncer) Reset() {
	for i := range d.buf {
		d.buf[i] = false
	}
	d.next = 0
	d.count = 0
	d.state = domain.EyeOpen
}

// State returns the last emitted state.
func (d *UnanimityDebouncer) State() domain.EyeState {
	return d.state
}

// Len returns the number of buffered samples.
func (d *UnanimityDebouncer) Len() int {
	return d.count
}

// SetNow overrides the clock used for event timestamps.
func (d *UnanimityDebouncer) SetNow(now func() time.Time) {
	d.now = now
}

// SustainedClosureDebouncer emits CLOSED once the eyes stay closed for
// the threshold. Any open sample resets the timer. OPEN is published on
// reopen only if CLOSED was published for that closure.
type SustainedClosureDebouncer struct {
	bus       *eventbus.Bus[domain.EyeEvent]
	logger    *zap.Logger
	now       func() time.Time
	threshold time.Duration

	closedSince time.Time
	closing     bool
	state       domain.EyeState
}

// NewSustainedClosureDebouncer creates a threshold debouncer.
func NewSustainedClosureDebouncer(threshold time.Duration, bus *eventbus.Bus[domain.EyeEvent], logger *zap.Logger) *SustainedClosureDebouncer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SustainedClosureDebouncer{
		bus:       bus,
		logger:    logger,
		now:       time.Now,
		threshold: threshold,
		state:     domain.EyeOpen,
	}
}

// Ingest consumes one sample.
func (d *SustainedClosureDebouncer) Ingest(open bool) {
	now := d.now()

	if open {
		d.closing = false
		if d.state == domain.EyeClosed {
			d.state = domain.EyeOpen
			d.logger.Info("eye state changed",
				zap.String("state", string(domain.EyeOpen)),
				zap.String("strategy", StrategySustained))
			publishEye(d.bus, false, now)
		}
		return
	}

	if !d.closing {
		d.closing = true
		d.closedSince = now
	}
	if d.state == domain.EyeClosed {
		return
	}
	if now.Sub(d.closedSince) >= d.threshold {
		d.state = domain.EyeClosed
		d.logger.Info("eye state changed",
			zap.String("state", string(domain.EyeClosed)),
			zap.String("strategy", StrategySustained),
			zap.Duration("closed_for", now.Sub(d.closedSince)))
		publishEye(d.bus, true, now)
	}
}

// Reset drops the timer and returns to EyeOpen without publishing.
func (d *SustainedClosureDebouncer) Reset() {
	d.closing = false
	d.closedSince = time.Time{}
	d.state = domain.EyeOpen
}

// State returns the last emitted state.
func (d *SustainedClosureDebouncer) State() domain.EyeState {
	return d.state
}

// SetNow overrides the clock (tests).
func (d *SustainedClosureDebouncer) SetNow(now func() time.Time) {
	d.now = now
}

func publishEye(bus *eventbus.Bus[domain.EyeEvent], closed bool, at time.Time) {
	if bus == nil {
		return
	}
	bus.Publish(domain.EyeEvent{Closed: closed, At: at})
}

var (
	_ domain.EyeDebouncer = (*UnanimityDebouncer)(nil)
	_ domain.EyeDebouncer = (*SustainedClosureDebouncer)(nil)
)
