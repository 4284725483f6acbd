package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/attnmon/internal/domain"
)

// DefaultTelemetryTimeout bounds each helper command invocation.
const DefaultTelemetryTimeout = time.Second

// CommandTelemetryConfig names the helper commands that report the
// foreground window and the active browser tab as one JSON object on stdout.
type CommandTelemetryConfig struct {
	WindowCommand []string
	TabCommand    []string
	Timeout       time.Duration
}

// windowPayload is the window helper's output. The handle may be printed
// as a number or a string.
type windowPayload struct {
	Handle      json.RawMessage `json:"handle"`
	Title       string          `json:"title"`
	ProcessName string          `json:"process_name"`
	PID         int             `json:"pid"`
}

// runFunc executes argv and returns its stdout.
type runFunc func(ctx context.Context, argv []string) ([]byte, error)

// CommandTelemetry implements domain.TelemetryProvider by running external
// helper commands. Every failure is reported as an absent snapshot.
type CommandTelemetry struct {
	cfg            CommandTelemetryConfig
	processManager domain.ProcessManager
	logger         *zap.Logger
	run            runFunc
}

// NewCommandTelemetry creates a command-backed telemetry provider.
// pm resolves process names when the window helper only reports a PID.
func NewCommandTelemetry(cfg CommandTelemetryConfig, pm domain.ProcessManager, logger *zap.Logger) *CommandTelemetry {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTelemetryTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommandTelemetry{
		cfg:            cfg,
		processManager: pm,
		logger:         logger,
		run:            runCommand,
	}
}

// WindowSnapshot runs the window helper.
func (t *CommandTelemetry) WindowSnapshot(ctx context.Context) (domain.WindowSnapshot, bool) {
	var p windowPayload
	if err := t.fetch(ctx, t.cfg.WindowCommand, &p); err != nil {
		t.logger.Debug("window telemetry unavailable", zap.Error(err))
		return domain.WindowSnapshot{}, false
	}

	snap := domain.WindowSnapshot{
		Handle:      decodeHandle(p.Handle),
		Title:       p.Title,
		ProcessName: p.ProcessName,
		PID:         p.PID,
	}
	if snap.ProcessName == "" && snap.PID > 0 && t.processManager != nil {
		if name, err := t.processManager.Name(snap.PID); err == nil {
			snap.ProcessName = name
		} else {
			t.logger.Debug("failed to resolve process name",
				zap.Int("pid", snap.PID),
				zap.Error(err))
		}
	}

	if snap.Handle == "" && snap.Title == "" && snap.ProcessName == "" {
		return domain.WindowSnapshot{}, false
	}
	if snap.Handle == "" {
		// Focus switches are detected by handle, so a helper that omits it
		// still needs a stable per-window identity.
		snap.Handle = fallbackHandle(snap)
	}
	return snap, true
}

func fallbackHandle(snap domain.WindowSnapshot) string {
	return fmt.Sprintf("pid:%d/%s/%s", snap.PID, snap.ProcessName, snap.Title)
}

// TabSnapshot runs the tab helper.
func (t *CommandTelemetry) TabSnapshot(ctx context.Context) (*domain.TabSnapshot, bool) {
	var tab domain.TabSnapshot
	if err := t.fetch(ctx, t.cfg.TabCommand, &tab); err != nil {
		t.logger.Debug("tab telemetry unavailable", zap.Error(err))
		return nil, false
	}
	if tab.Title == "" && tab.URL == "" {
		return nil, false
	}
	return &tab, true
}

func (t *CommandTelemetry) fetch(ctx context.Context, argv []string, out interface{}) error {
	if len(argv) == 0 {
		return errors.New("no helper command configured")
	}

	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	data, err := t.run(ctx, argv)
	if err != nil {
		return errors.Wrapf(err, "helper %s failed", argv[0])
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return errors.Errorf("helper %s reported nothing", argv[0])
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.Wrapf(err, "helper %s printed invalid JSON", argv[0])
	}
	return nil
}

func decodeHandle(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

func runCommand(ctx context.Context, argv []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	// Grandchildren may hold stdout open past the kill.
	cmd.WaitDelay = 200 * time.Millisecond
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, errors.Wrap(err, msg)
		}
		return nil, err
	}
	return out, nil
}

// Ensure CommandTelemetry implements domain.TelemetryProvider.
var _ domain.TelemetryProvider = (*CommandTelemetry)(nil)
