package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/eliteGoblin/focusd/attnmon/internal/policy"
	"github.com/eliteGoblin/focusd/attnmon/internal/usecase"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// isolate points the user config and cache directories at a temp dir.
func isolate(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(dir, "cache"))
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")

	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 500*time.Millisecond, cfg.Window.PollInterval)
	assert.Equal(t, usecase.StrategyUnanimous, cfg.Debounce.Strategy)
	assert.Equal(t, 5, cfg.Debounce.WindowSize)
	assert.Equal(t, 2*time.Second, cfg.Debounce.Threshold)
	assert.Equal(t, 3*time.Second, cfg.Vision.StopTimeout)
	assert.Equal(t, time.Second, cfg.Telemetry.Timeout)
	assert.Equal(t, policy.DefaultProfileID, cfg.Classifier.Profile)
	assert.False(t, cfg.Vision.Enabled)
	assert.Empty(t, cfg.API.Listen)
	assert.Empty(t, cfg.Source())
	assert.Equal(t, "attnmon.log", filepath.Base(cfg.LogFile))
}

func TestLoad_File(t *testing.T) {
	isolate(t)
	path := writeConfig(t, `
log_level: debug
window:
  poll_interval: 250ms
debounce:
  strategy: sustained
  threshold: 4s
vision:
  enabled: true
  command: ["/opt/eye-worker", "--camera", "0"]
  stop_timeout: 1s
telemetry:
  window_command: ["attnmon-window"]
  tab_command: ["attnmon-tab"]
  timeout: 750ms
hooks:
  - event: window
    state: blacklisted
    command: ["notify-send", "Back to work"]
api:
  listen: 127.0.0.1:7777
`)

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, path, cfg.Source())
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 250*time.Millisecond, cfg.Window.PollInterval)
	assert.Equal(t, usecase.StrategySustained, cfg.Debounce.Strategy)
	assert.Equal(t, 4*time.Second, cfg.Debounce.Threshold)
	assert.Equal(t, []string{"/opt/eye-worker", "--camera", "0"}, cfg.Vision.Command)
	assert.Equal(t, []string{"attnmon-window"}, cfg.Telemetry.WindowCommand)
	assert.Equal(t, 750*time.Millisecond, cfg.Telemetry.Timeout)
	require.Len(t, cfg.Hooks, 1)
	assert.Equal(t, "blacklisted", cfg.Hooks[0].State)
	assert.Equal(t, []string{"notify-send", "Back to work"}, cfg.Hooks[0].Command)
	assert.Equal(t, "127.0.0.1:7777", cfg.API.Listen)

	dc := cfg.DebouncerConfig()
	assert.Equal(t, usecase.StrategySustained, dc.Strategy)
	assert.Equal(t, 4*time.Second, dc.Threshold)
}

func TestLoad_EnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("ATTNMON_WINDOW_POLL_INTERVAL", "1s")
	t.Setenv("ATTNMON_DEBOUNCE_WINDOW_SIZE", "7")
	t.Setenv("ATTNMON_API_LISTEN", ":9999")

	cfg, err := Load("")

	require.NoError(t, err)
	assert.Equal(t, time.Second, cfg.Window.PollInterval)
	assert.Equal(t, 7, cfg.Debounce.WindowSize)
	assert.Equal(t, ":9999", cfg.API.Listen)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	isolate(t)

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))

	assert.Error(t, err)
}

func TestLoad_InvalidFile(t *testing.T) {
	isolate(t)
	path := writeConfig(t, `
debounce:
  strategy: majority
  window_size: 0
`)

	_, err := Load(path)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "debounce.strategy")
}

func validConfig(t *testing.T) *Config {
	t.Helper()
	isolate(t)
	cfg, err := Load("")
	require.NoError(t, err)
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		field  string
	}{
		{"log level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"poll interval", func(c *Config) { c.Window.PollInterval = 0 }, "window.poll_interval"},
		{"window size low", func(c *Config) { c.Debounce.WindowSize = 0 }, "debounce.window_size"},
		{"window size high", func(c *Config) { c.Debounce.WindowSize = 65 }, "debounce.window_size"},
		{"threshold", func(c *Config) {
			c.Debounce.Strategy = usecase.StrategySustained
			c.Debounce.Threshold = 0
		}, "debounce.threshold"},
		{"vision command", func(c *Config) { c.Vision.Enabled = true }, "vision.command"},
		{"stop timeout", func(c *Config) { c.Vision.StopTimeout = -time.Second }, "vision.stop_timeout"},
		{"telemetry timeout", func(c *Config) { c.Telemetry.Timeout = 0 }, "telemetry.timeout"},
		{"unknown profile", func(c *Config) { c.Classifier.Profile = "gaming" }, "classifier.profile"},
		{"custom without rules", func(c *Config) { c.Classifier.Profile = policy.CustomProfileID }, "classifier.profile"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)

			err := cfg.Validate()

			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestRuleRegistry_CustomProfile(t *testing.T) {
	isolate(t)
	path := writeConfig(t, `
classifier:
  profile: custom
rules:
  blacklist_domains: ["news.ycombinator.com"]
  window_blacklist_keywords: ["steam"]
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.True(t, cfg.HasCustomRules())

	store := policy.NewRuleStore(cfg.RuleRegistry())
	assert.Equal(t, []string{"custom", "study"}, store.List())

	rules, err := store.Get(policy.CustomProfileID)
	require.NoError(t, err)
	assert.Equal(t, []string{"news.ycombinator.com"}, rules.BlacklistDomains)
	assert.Contains(t, rules.WhitelistDomains, "khanacademy.org", "unset tables come from the study profile")
}

func TestRuleRegistry_NoCustomRules(t *testing.T) {
	cfg := validConfig(t)

	assert.Equal(t, []string{"study"}, cfg.RuleRegistry().List())
}

func TestYAML_RoundTrip(t *testing.T) {
	cfg := validConfig(t)

	data, err := cfg.YAML()
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, yaml.Unmarshal(data, &decoded))
	assert.Equal(t, "info", decoded["log_level"])
	window := decoded["window"].(map[string]interface{})
	assert.Equal(t, "500ms", window["poll_interval"])
}
