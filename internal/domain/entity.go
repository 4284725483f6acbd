// Package domain contains core entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

import "time"

// ActivityLabel is the classification of the foreground activity.
type ActivityLabel string

const (
	LabelWhitelisted  ActivityLabel = "whitelisted"
	LabelBlacklisted  ActivityLabel = "blacklisted"
	LabelUnclassified ActivityLabel = "unclassified"
)

// ParseActivityLabel converts a label name into an ActivityLabel.
func ParseActivityLabel(s string) (ActivityLabel, bool) {
	switch ActivityLabel(s) {
	case LabelWhitelisted, LabelBlacklisted, LabelUnclassified:
		return ActivityLabel(s), true
	}
	return "", false
}

// EyeState is the debounced eye state.
type EyeState string

const (
	EyeOpen   EyeState = "open"
	EyeClosed EyeState = "closed"
)

// WindowSnapshot is a point-in-time read of the foreground window.
type WindowSnapshot struct {
	Handle      string `json:"handle"`
	Title       string `json:"title"`
	ProcessName string `json:"process_name"`
	PID         int    `json:"pid,omitempty"`
}

// TabSnapshot is a point-in-time read of the active browser tab.
// Either field may be empty when the browser did not expose it.
type TabSnapshot struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Equal reports whether two optional tab snapshots carry the same content.
func (t *TabSnapshot) Equal(o *TabSnapshot) bool {
	if t == nil || o == nil {
		return t == o
	}
	return *t == *o
}

// ActivityState is the window monitor's change-detection memory.
type ActivityState struct {
	Label     ActivityLabel
	Handle    string
	HasHandle bool // false after a failed snapshot
	Tab       *TabSnapshot
}

// WindowEvent is published when the activity label changes.
type WindowEvent struct {
	Previous ActivityLabel `json:"previous"`
	Current  ActivityLabel `json:"current"`
	Title    string        `json:"title"`
	At       time.Time     `json:"at"`
}

// EyeEvent is published when the debounced eye state changes.
type EyeEvent struct {
	Closed bool      `json:"closed"`
	At     time.Time `json:"at"`
}

// State returns the eye state the event transitions into.
func (e EyeEvent) State() EyeState {
	if e.Closed {
		return EyeClosed
	}
	return EyeOpen
}

// ClassificationRules holds the static domain and keyword tables used by
// the activity classifier. All entries are expected lower-case.
type ClassificationRules struct {
	SelfProcessNames        []string `json:"self_process_names" yaml:"self_process_names" mapstructure:"self_process_names"`
	BrowserProcesses        []string `json:"browser_processes" yaml:"browser_processes" mapstructure:"browser_processes"`
	WhitelistDomains        []string `json:"whitelist_domains" yaml:"whitelist_domains" mapstructure:"whitelist_domains"`
	BlacklistDomains        []string `json:"blacklist_domains" yaml:"blacklist_domains" mapstructure:"blacklist_domains"`
	SearchEngineDomains     []string `json:"search_engine_domains" yaml:"search_engine_domains" mapstructure:"search_engine_domains"`
	VideoDomains            []string `json:"video_domains" yaml:"video_domains" mapstructure:"video_domains"`
	WorkTitleKeywords       []string `json:"work_title_keywords" yaml:"work_title_keywords" mapstructure:"work_title_keywords"`
	NonWorkTitleKeywords    []string `json:"nonwork_title_keywords" yaml:"nonwork_title_keywords" mapstructure:"nonwork_title_keywords"`
	WindowBlacklistKeywords []string `json:"window_blacklist_keywords" yaml:"window_blacklist_keywords" mapstructure:"window_blacklist_keywords"`
	WindowWhitelistKeywords []string `json:"window_whitelist_keywords" yaml:"window_whitelist_keywords" mapstructure:"window_whitelist_keywords"`
}

// WorkerRecord stores the identity of a running vision worker.
// Persisted to a small JSON file so a crashed host can reap it on restart.
type WorkerRecord struct {
	PID        int    `json:"pid"`
	Executable string `json:"executable"`
	StartedAt  int64  `json:"started_at"`
	HostPID    int    `json:"host_pid"`
}

// Inspection is the result of one on-demand classification pass.
type Inspection struct {
	Profile    string         `json:"profile"`
	Window     WindowSnapshot `json:"window"`
	HasWindow  bool           `json:"has_window"`
	Tab        *TabSnapshot   `json:"tab,omitempty"`
	Browser    bool           `json:"browser"`
	Label      ActivityLabel  `json:"label"`
	ExecutedAt time.Time      `json:"executed_at"`
	DurationMs int64          `json:"duration_ms"`
}
