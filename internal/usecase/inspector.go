package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/attnmon/internal/domain"
)

// Inspector runs a single telemetry read and classification on demand.
// It backs the classify command and does not touch monitor state.
type Inspector struct {
	telemetry  domain.TelemetryProvider
	classifier domain.ActivityClassifier
	profile    string
	logger     *zap.Logger
}

// NewInspector creates an inspector for the given rule profile.
func NewInspector(
	tp domain.TelemetryProvider,
	classifier domain.ActivityClassifier,
	profile string,
	logger *zap.Logger,
) *Inspector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Inspector{
		telemetry:  tp,
		classifier: classifier,
		profile:    profile,
		logger:     logger,
	}
}

// Inspect fetches the current snapshots and classifies them.
// Telemetry failures yield an unclassified result, never an error.
func (i *Inspector) Inspect(ctx context.Context) domain.Inspection {
	start := time.Now()

	result := domain.Inspection{
		Profile:    i.profile,
		Label:      domain.LabelUnclassified,
		ExecutedAt: start,
	}

	win, ok := i.telemetry.WindowSnapshot(ctx)
	if !ok {
		i.logger.Debug("window snapshot unavailable")
		result.DurationMs = time.Since(start).Milliseconds()
		return result
	}
	result.Window = win
	result.HasWindow = true

	if i.classifier.IsBrowser(win.ProcessName) {
		result.Browser = true
		if tab, ok := i.telemetry.TabSnapshot(ctx); ok {
			result.Tab = tab
		} else {
			i.logger.Debug("tab snapshot unavailable",
				zap.String("process", win.ProcessName))
		}
	}

	result.Label = i.classifier.Classify(win, result.Tab)
	result.DurationMs = time.Since(start).Milliseconds()

	i.logger.Debug("inspected",
		zap.String("profile", i.profile),
		zap.String("label", string(result.Label)),
		zap.String("title", win.Title))

	return result
}

// InspectSnapshot classifies caller-supplied snapshots without telemetry.
func (i *Inspector) InspectSnapshot(win domain.WindowSnapshot, tab *domain.TabSnapshot) domain.Inspection {
	start := time.Now()
	return domain.Inspection{
		Profile:    i.profile,
		Window:     win,
		HasWindow:  true,
		Tab:        tab,
		Browser:    i.classifier.IsBrowser(win.ProcessName),
		Label:      i.classifier.Classify(win, tab),
		ExecutedAt: start,
		DurationMs: time.Since(start).Milliseconds(),
	}
}
