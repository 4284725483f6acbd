// Package config loads attnmon configuration from file, environment and flags.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/eliteGoblin/focusd/attnmon/internal/domain"
	"github.com/eliteGoblin/focusd/attnmon/internal/infra"
	"github.com/eliteGoblin/focusd/attnmon/internal/policy"
	"github.com/eliteGoblin/focusd/attnmon/internal/usecase"
)

// EnvPrefix is the prefix of environment overrides (ATTNMON_WINDOW_POLL_INTERVAL...).
const EnvPrefix = "ATTNMON"

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the effective attnmon configuration.
type Config struct {
	LogLevel   string                     `json:"log_level" yaml:"log_level" mapstructure:"log_level"`
	LogFile    string                     `json:"log_file" yaml:"log_file" mapstructure:"log_file"`
	StateDir   string                     `json:"state_dir" yaml:"state_dir" mapstructure:"state_dir"`
	Window     WindowConfig               `json:"window" yaml:"window" mapstructure:"window"`
	Debounce   DebounceConfig             `json:"debounce" yaml:"debounce" mapstructure:"debounce"`
	Vision     VisionConfig               `json:"vision" yaml:"vision" mapstructure:"vision"`
	Telemetry  TelemetryConfig            `json:"telemetry" yaml:"telemetry" mapstructure:"telemetry"`
	Classifier ClassifierConfig           `json:"classifier" yaml:"classifier" mapstructure:"classifier"`
	Rules      domain.ClassificationRules `json:"rules" yaml:"rules" mapstructure:"rules"`
	Hooks      []infra.Hook               `json:"hooks" yaml:"hooks" mapstructure:"hooks"`
	API        APIConfig                  `json:"api" yaml:"api" mapstructure:"api"`

	source string
}

// WindowConfig configures the window monitor.
type WindowConfig struct {
	PollInterval time.Duration `json:"poll_interval" yaml:"poll_interval" mapstructure:"poll_interval"`
}

// DebounceConfig selects the eye debounce strategy.
type DebounceConfig struct {
	Strategy   string        `json:"strategy" yaml:"strategy" mapstructure:"strategy"`
	WindowSize int           `json:"window_size" yaml:"window_size" mapstructure:"window_size"`
	Threshold  time.Duration `json:"threshold" yaml:"threshold" mapstructure:"threshold"`
}

// VisionConfig configures the vision worker.
type VisionConfig struct {
	Enabled     bool          `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Command     []string      `json:"command" yaml:"command" mapstructure:"command"`
	StopTimeout time.Duration `json:"stop_timeout" yaml:"stop_timeout" mapstructure:"stop_timeout"`
}

// TelemetryConfig names the window and tab helper commands.
type TelemetryConfig struct {
	WindowCommand []string      `json:"window_command" yaml:"window_command" mapstructure:"window_command"`
	TabCommand    []string      `json:"tab_command" yaml:"tab_command" mapstructure:"tab_command"`
	Timeout       time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
}

// ClassifierConfig selects the rule profile.
type ClassifierConfig struct {
	Profile string `json:"profile" yaml:"profile" mapstructure:"profile"`
}

// APIConfig configures the event stream server. An empty Listen disables it.
type APIConfig struct {
	Listen string `json:"listen" yaml:"listen" mapstructure:"listen"`
}

// SetDefaults registers every default on v. Keys without a default are
// invisible to environment overrides.
func SetDefaults(v *viper.Viper) {
	stateDir, err := infra.StateDir()
	if err != nil {
		stateDir = filepath.Join(".", ".attnmon")
	}

	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", filepath.Join(stateDir, "attnmon.log"))
	v.SetDefault("state_dir", stateDir)

	v.SetDefault("window.poll_interval", 500*time.Millisecond)

	v.SetDefault("debounce.strategy", usecase.StrategyUnanimous)
	v.SetDefault("debounce.window_size", usecase.DefaultWindowSize)
	v.SetDefault("debounce.threshold", 2*time.Second)

	v.SetDefault("vision.enabled", false)
	v.SetDefault("vision.command", []string{})
	v.SetDefault("vision.stop_timeout", 3*time.Second)

	v.SetDefault("telemetry.window_command", []string{})
	v.SetDefault("telemetry.tab_command", []string{})
	v.SetDefault("telemetry.timeout", infra.DefaultTelemetryTimeout)

	v.SetDefault("classifier.profile", policy.DefaultProfileID)

	v.SetDefault("api.listen", "")
}

// Loader reads configuration through a private viper instance.
type Loader struct {
	v    *viper.Viper
	path string
}

// NewLoader creates a loader. An empty path searches the user config
// directory for config.yaml; a missing file there is not an error.
func NewLoader(path string) *Loader {
	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(infra.ExpandHome(path))
	} else {
		v.SetConfigName("config")
		if dir, err := infra.ConfigDir(); err == nil {
			v.AddConfigPath(dir)
		}
	}
	return &Loader{v: v, path: path}
}

// Viper exposes the underlying instance for flag binding.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Load reads, decodes and validates the configuration.
func (l *Loader) Load() (*Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if l.path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.source = l.v.ConfigFileUsed()
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load is a shortcut for NewLoader(path).Load().
func Load(path string) (*Config, error) {
	return NewLoader(path).Load()
}

// Source returns the config file that was read, or "" for defaults only.
func (c *Config) Source() string {
	return c.source
}

func (c *Config) normalize() {
	c.LogFile = infra.ExpandHome(c.LogFile)
	c.StateDir = infra.ExpandHome(c.StateDir)
	c.Debounce.Strategy = strings.ToLower(strings.TrimSpace(c.Debounce.Strategy))
	if len(c.Vision.Command) > 0 {
		c.Vision.Command[0] = infra.ExpandHome(c.Vision.Command[0])
	}
}

// Validate checks every setting and reports all problems at once.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...interface{}) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]interface{}{ErrInvalidConfig}, args...)...))
	}

	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		fail("log_level %q", c.LogLevel)
	}
	if c.Window.PollInterval <= 0 {
		fail("window.poll_interval must be positive")
	}

	switch c.Debounce.Strategy {
	case usecase.StrategyUnanimous:
		if c.Debounce.WindowSize < 1 || c.Debounce.WindowSize > 64 {
			fail("debounce.window_size must be between 1 and 64, got %d", c.Debounce.WindowSize)
		}
	case usecase.StrategySustained:
		if c.Debounce.Threshold <= 0 {
			fail("debounce.threshold must be positive")
		}
	default:
		fail("debounce.strategy %q (want %s or %s)", c.Debounce.Strategy, usecase.StrategyUnanimous, usecase.StrategySustained)
	}

	if c.Vision.Enabled && (len(c.Vision.Command) == 0 || c.Vision.Command[0] == "") {
		fail("vision.command is required when vision is enabled")
	}
	if c.Vision.StopTimeout <= 0 {
		fail("vision.stop_timeout must be positive")
	}
	if c.Telemetry.Timeout <= 0 {
		fail("telemetry.timeout must be positive")
	}

	switch c.Classifier.Profile {
	case policy.DefaultProfileID:
	case policy.CustomProfileID:
		if !c.HasCustomRules() {
			fail("classifier.profile %q needs a rules section", c.Classifier.Profile)
		}
	default:
		fail("classifier.profile %q (want %s or %s)", c.Classifier.Profile, policy.DefaultProfileID, policy.CustomProfileID)
	}

	for i, h := range c.Hooks {
		if h.Event != infra.HookWindow && h.Event != infra.HookEye {
			fail("hooks[%d].event %q", i, h.Event)
		}
		if len(h.Command) == 0 {
			fail("hooks[%d].command is empty", i)
		}
	}

	return errors.Join(errs...)
}

// DebouncerConfig converts the debounce section for usecase.NewEyeDebouncer.
func (c *Config) DebouncerConfig() usecase.DebouncerConfig {
	return usecase.DebouncerConfig{
		Strategy:   c.Debounce.Strategy,
		WindowSize: c.Debounce.WindowSize,
		Threshold:  c.Debounce.Threshold,
	}
}

// HasCustomRules reports whether the rules section sets any table.
func (c *Config) HasCustomRules() bool {
	r := c.Rules
	return len(r.SelfProcessNames)+len(r.BrowserProcesses)+
		len(r.WhitelistDomains)+len(r.BlacklistDomains)+
		len(r.SearchEngineDomains)+len(r.VideoDomains)+
		len(r.WorkTitleKeywords)+len(r.NonWorkTitleKeywords)+
		len(r.WindowBlacklistKeywords)+len(r.WindowWhitelistKeywords) > 0
}

// RuleRegistry builds the profile registry: the built-in profiles plus a
// custom profile when the rules section is set.
func (c *Config) RuleRegistry(selfNames ...string) *policy.Registry {
	reg := policy.NewRegistry(selfNames...)
	if c.HasCustomRules() {
		base, _ := reg.Get(policy.DefaultProfileID)
		reg.Register(policy.NewCustomProfile(c.Rules, base))
	}
	return reg
}

// YAML renders the effective configuration.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
