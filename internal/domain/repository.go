package domain

import "context"

// ProcessManager handles OS process operations.
// Implementation: uses gopsutil for cross-platform support.
type ProcessManager interface {
	// FindByName returns PIDs of processes matching the pattern.
	FindByName(pattern string) ([]int, error)

	// Name returns the executable name of a running process.
	Name(pid int) (string, error)

	// Kill terminates a process by PID (SIGKILL).
	Kill(pid int) error

	// KillTree kills a process and all of its descendants.
	KillTree(pid int) error

	// IsRunning checks if a PID exists and is running.
	IsRunning(pid int) bool

	// GetCurrentPID returns the current process PID.
	GetCurrentPID() int
}

// TelemetryProvider supplies foreground window and browser tab snapshots.
// Implementations must return promptly and never fail loudly: any failure
// is reported as ok == false.
type TelemetryProvider interface {
	// WindowSnapshot returns the current foreground window.
	WindowSnapshot(ctx context.Context) (WindowSnapshot, bool)

	// TabSnapshot returns the active tab of the foreground browser.
	// Only meaningful when the foreground window is a browser.
	TabSnapshot(ctx context.Context) (*TabSnapshot, bool)
}

// ActivityClassifier maps a snapshot to an activity label.
type ActivityClassifier interface {
	// Classify labels the window, using the tab when present.
	Classify(window WindowSnapshot, tab *TabSnapshot) ActivityLabel

	// IsBrowser reports whether processName is a recognized browser.
	IsBrowser(processName string) bool
}

// EyeDebouncer filters the raw eye sample stream into stable transitions.
// Implementations are owned by a single goroutine and are not thread-safe.
type EyeDebouncer interface {
	// Ingest consumes one sample; open is true when the eyes are open.
	Ingest(open bool)

	// Reset drops all history and returns to EyeOpen.
	Reset()

	// State returns the last emitted state.
	State() EyeState
}

// WorkerRegistry records the running vision worker.
// Implementation: small JSON file in the user cache directory.
type WorkerRegistry interface {
	// Save records the worker.
	Save(rec WorkerRecord) error

	// Load returns the recorded worker, or nil when none is recorded.
	Load() (*WorkerRecord, error)

	// Clear removes the record.
	Clear() error

	// Path returns the registry file path (for status output and tests).
	Path() string
}

// RuleStore provides access to named classification rule profiles.
type RuleStore interface {
	// Get returns the rules of a profile.
	Get(id string) (*ClassificationRules, error)

	// List returns all profile IDs.
	List() []string
}
