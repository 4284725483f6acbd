// Package main is the CLI entry point for attnmon.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"
	"gopkg.in/yaml.v3"

	"github.com/eliteGoblin/focusd/attnmon/internal/api"
	"github.com/eliteGoblin/focusd/attnmon/internal/config"
	"github.com/eliteGoblin/focusd/attnmon/internal/daemon"
	"github.com/eliteGoblin/focusd/attnmon/internal/domain"
	"github.com/eliteGoblin/focusd/attnmon/internal/eventbus"
	"github.com/eliteGoblin/focusd/attnmon/internal/infra"
	"github.com/eliteGoblin/focusd/attnmon/internal/policy"
	"github.com/eliteGoblin/focusd/attnmon/internal/usecase"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

// hookShutdownTimeout bounds how long run waits for intervention hooks on exit.
const hookShutdownTimeout = 3 * time.Second

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "attnmon",
	Short: "Attention monitor - tracks what you look at and whether you are awake",
	Long: `attnmon watches the foreground window and the active browser tab,
labels the activity as whitelisted, blacklisted or unclassified, and
optionally runs a vision worker that reports whether your eyes are open.

Transitions are published to intervention hooks and an optional
websocket event stream.`,
	Version:      Version,
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the window monitor and vision worker in the foreground",
	Long: `Starts the window monitor, the vision worker (when vision.enabled is set),
the intervention hooks and the event stream API (when api.listen is set).
Stops cleanly on SIGINT or SIGTERM.`,
	RunE: runRun,
}

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Classify a window once",
	Long: `Classifies a window described by flags, or the live foreground window
with --live (requires telemetry.window_command).`,
	RunE: runClassify,
}

var rulesCmd = &cobra.Command{
	Use:   "rules [profile]",
	Short: "List rule profiles or dump one",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runRules,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the recorded vision worker",
	RunE:  runStatus,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE:  runConfigShow,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Prints version, commit, and build time. Use --json for machine-readable output.`,
	Run:   runVersion,
}

var (
	cfgFile  string
	logLevel string
	logFile  string
	logQuiet bool

	jsonOutput   bool
	configFormat string

	classifyTitle    string
	classifyProcess  string
	classifyURL      string
	classifyTabTitle string
	classifyProfile  string
	classifyLive     bool
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default ~/.config/attnmon/config.yaml)")
	pf.StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.StringVar(&logFile, "log-file", "", "rotating log file")

	runCmd.Flags().BoolVar(&logQuiet, "quiet", false, "Log to the file only, not stderr")

	classifyCmd.Flags().StringVar(&classifyTitle, "title", "", "Window title")
	classifyCmd.Flags().StringVar(&classifyProcess, "process", "", "Process name of the window")
	classifyCmd.Flags().StringVar(&classifyURL, "url", "", "Active tab URL (browsers)")
	classifyCmd.Flags().StringVar(&classifyTabTitle, "tab-title", "", "Active tab title (browsers)")
	classifyCmd.Flags().StringVar(&classifyProfile, "profile", "", "Rule profile (default from config)")
	classifyCmd.Flags().BoolVar(&classifyLive, "live", false, "Read the foreground window through telemetry")
	classifyCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the inspection as JSON")

	configShowCmd.Flags().StringVar(&configFormat, "format", "yaml", "Output format (yaml or json)")
	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")

	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(rulesCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads the config file with persistent flags taking precedence.
func loadConfig() (*config.Config, error) {
	loader := config.NewLoader(cfgFile)
	v := loader.Viper()
	pf := rootCmd.PersistentFlags()
	if err := v.BindPFlag("log_level", pf.Lookup("log-level")); err != nil {
		return nil, err
	}
	if err := v.BindPFlag("log_file", pf.Lookup("log-file")); err != nil {
		return nil, err
	}
	return loader.Load()
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := createLogger(cfg, !logQuiet)
	defer func() { _ = logger.Sync() }()

	logger.Info("attnmon starting",
		zap.String("version", Version),
		zap.String("config", cfg.Source()),
		zap.String("profile", cfg.Classifier.Profile))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pm := infra.NewProcessManager()
	classifier, err := buildClassifier(cfg, cfg.Classifier.Profile)
	if err != nil {
		return err
	}

	windows := eventbus.New[domain.WindowEvent]("window", logger)
	eyes := eventbus.New[domain.EyeEvent]("eye", logger)

	hooks, err := infra.NewHookRunner(cfg.Hooks, logger)
	if err != nil {
		return fmt.Errorf("failed to configure hooks: %w", err)
	}
	windows.Subscribe(hooks.WindowSubscriber())
	eyes.Subscribe(hooks.EyeSubscriber())
	defer hooks.Shutdown(hookShutdownTimeout)

	var (
		tracker *api.Tracker
		server  *api.Server
	)
	if cfg.API.Listen != "" {
		broadcaster := api.NewBroadcaster(logger)
		tracker = api.NewTracker(broadcaster)
		windows.Subscribe(tracker.WindowSubscriber())
		eyes.Subscribe(tracker.EyeSubscriber())
		server = api.NewServer(tracker, broadcaster, Version, logger)
	}

	telemetry := infra.NewCommandTelemetry(infra.CommandTelemetryConfig{
		WindowCommand: cfg.Telemetry.WindowCommand,
		TabCommand:    cfg.Telemetry.TabCommand,
		Timeout:       cfg.Telemetry.Timeout,
	}, pm, logger)
	if len(cfg.Telemetry.WindowCommand) == 0 {
		logger.Warn("telemetry.window_command is not set, every window will be unclassified")
	}

	monitor := daemon.NewWindowMonitor(
		daemon.WindowMonitorConfig{PollInterval: cfg.Window.PollInterval},
		telemetry,
		classifier,
		windows,
		logger,
	)

	g, gctx := errgroup.WithContext(ctx)

	if err := monitor.Start(gctx); err != nil {
		return fmt.Errorf("failed to start window monitor: %w", err)
	}
	if tracker != nil {
		tracker.Seed(monitor.State().Label)
	}
	g.Go(func() error {
		<-gctx.Done()
		monitor.Stop()
		<-monitor.Done()
		return nil
	})

	if cfg.Vision.Enabled {
		debouncer := usecase.NewEyeDebouncer(cfg.DebouncerConfig(), eyes, logger)
		supervisor := daemon.NewVisionSupervisor(
			daemon.VisionConfig{
				Command:     cfg.Vision.Command,
				StopTimeout: cfg.Vision.StopTimeout,
			},
			debouncer,
			infra.NewFileRegistry(cfg.StateDir),
			pm,
			logger,
		)
		// A worker that cannot start leaves window monitoring running.
		if err := supervisor.Start(gctx); err == nil {
			g.Go(func() error {
				<-gctx.Done()
				return supervisor.Stop()
			})
		}
	}

	if server != nil {
		g.Go(func() error {
			return server.Run(gctx, cfg.API.Listen)
		})
	}

	err = g.Wait()
	logger.Info("attnmon stopped", zap.Error(err))
	return err
}

func runClassify(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := createCLILogger(cfg)
	defer func() { _ = logger.Sync() }()

	profile := classifyProfile
	if profile == "" {
		profile = cfg.Classifier.Profile
	}
	classifier, err := buildClassifier(cfg, profile)
	if err != nil {
		return err
	}

	var result domain.Inspection
	if classifyLive {
		if len(cfg.Telemetry.WindowCommand) == 0 {
			return fmt.Errorf("--live needs telemetry.window_command in the config")
		}
		telemetry := infra.NewCommandTelemetry(infra.CommandTelemetryConfig{
			WindowCommand: cfg.Telemetry.WindowCommand,
			TabCommand:    cfg.Telemetry.TabCommand,
			Timeout:       cfg.Telemetry.Timeout,
		}, infra.NewProcessManager(), logger)
		result = usecase.NewInspector(telemetry, classifier, profile, logger).Inspect(cmd.Context())
	} else {
		if classifyTitle == "" && classifyProcess == "" && classifyURL == "" {
			return fmt.Errorf("one of --title, --process, --url or --live is required")
		}
		win := domain.WindowSnapshot{Title: classifyTitle, ProcessName: classifyProcess}
		var tab *domain.TabSnapshot
		if classifyURL != "" || classifyTabTitle != "" {
			tab = &domain.TabSnapshot{Title: classifyTabTitle, URL: classifyURL}
		}
		result = usecase.NewInspector(nil, classifier, profile, logger).InspectSnapshot(win, tab)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	if !result.HasWindow && classifyLive {
		fmt.Println("No foreground window reported by telemetry.")
	} else {
		fmt.Printf("Window:  %s (%s)\n", result.Window.Title, result.Window.ProcessName)
		if result.Tab != nil {
			fmt.Printf("Tab:     %s %s\n", result.Tab.Title, result.Tab.URL)
		}
	}
	fmt.Printf("Profile: %s\n", result.Profile)
	fmt.Printf("Label:   %s\n", strings.ToUpper(string(result.Label)))
	return nil
}

func runRules(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	registry := cfg.RuleRegistry(selfNames()...)

	if len(args) == 0 {
		fmt.Println("\n=== Rule Profiles ===")
		for _, p := range registry.GetAll() {
			marker := " "
			if p.ID() == cfg.Classifier.Profile {
				marker = "*"
			}
			fmt.Printf("%s [%s] %s\n", marker, p.ID(), p.Name())
		}
		fmt.Println("=====================")
		return nil
	}

	rules, err := policy.NewRuleStore(registry).Get(args[0])
	if err != nil {
		return err
	}
	out, err := yaml.Marshal(rules)
	if err != nil {
		return err
	}
	fmt.Print(string(out))
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	pm := infra.NewProcessManager()
	registry := infra.NewFileRegistry(cfg.StateDir)

	fmt.Println("\n=== attnmon Status ===")
	fmt.Printf("Config: %s\n", orDefault(cfg.Source(), "(defaults)"))
	fmt.Printf("Profile: %s\n", cfg.Classifier.Profile)
	fmt.Printf("Vision: %s\n", enabled(cfg.Vision.Enabled))
	fmt.Printf("API: %s\n", orDefault(cfg.API.Listen, "disabled"))

	if pids, err := pm.FindByName("attnmon"); err == nil {
		var hosts []int
		for _, pid := range pids {
			if pid != pm.GetCurrentPID() {
				hosts = append(hosts, pid)
			}
		}
		if len(hosts) > 0 {
			fmt.Printf("Hosts: %v\n", hosts)
		} else {
			fmt.Println("Hosts: none running")
		}
	}

	rec, err := registry.Load()
	switch {
	case err != nil:
		fmt.Printf("Worker: unknown (%v)\n", err)
	case rec == nil:
		fmt.Println("Worker: NOT RUNNING")
	default:
		workerAlive := pm.IsRunning(rec.PID)
		hostAlive := pm.IsRunning(rec.HostPID)
		switch {
		case workerAlive && hostAlive:
			fmt.Println("Worker: RUNNING")
		case workerAlive:
			fmt.Println("Worker: ORPHANED (host is gone, reaped on next run)")
		default:
			fmt.Println("Worker: NOT RUNNING (stale record)")
		}
		fmt.Printf("  PID: %d (host %d)\n", rec.PID, rec.HostPID)
		fmt.Printf("  Executable: %s\n", rec.Executable)
		if rec.StartedAt > 0 {
			started := time.Unix(rec.StartedAt, 0)
			fmt.Printf("  Started: %s ago\n", time.Since(started).Round(time.Second))
		}
	}
	fmt.Printf("Registry: %s\n", registry.Path())
	fmt.Println("======================")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	switch configFormat {
	case "yaml", "yml":
		out, err := cfg.YAML()
		if err != nil {
			return err
		}
		fmt.Print(string(out))
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(cfg)
	default:
		return fmt.Errorf("unknown format %q (want yaml or json)", configFormat)
	}
	return nil
}

func runVersion(cmd *cobra.Command, args []string) {
	if jsonOutput {
		fmt.Printf(`{"version":"%s","commit":"%s","build_time":"%s"}`+"\n",
			Version, Commit, BuildTime)
	} else {
		fmt.Printf("attnmon %s (commit: %s, built: %s)\n",
			Version, Commit, BuildTime)
	}
}

// buildClassifier resolves the named profile and builds its classifier.
func buildClassifier(cfg *config.Config, profile string) (*usecase.Classifier, error) {
	rules, err := policy.NewRuleStore(cfg.RuleRegistry(selfNames()...)).Get(profile)
	if err != nil {
		return nil, err
	}
	return usecase.NewClassifier(*rules), nil
}

// selfNames returns the process names under which attnmon itself runs.
func selfNames() []string {
	names := []string{"attnmon"}
	if exe, err := os.Executable(); err == nil {
		base := filepath.Base(exe)
		if base != "attnmon" {
			names = append(names, base)
		}
	}
	return names
}

// createLogger builds the daemon logger: JSON to a rotating file and,
// unless quiet, console lines to stderr.
func createLogger(cfg *config.Config, stderr bool) *zap.Logger {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var cores []zapcore.Core
	if cfg.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o755); err == nil {
			file := &lumberjack.Logger{
				Filename:   cfg.LogFile,
				MaxSize:    1, // megabytes
				MaxBackups: 3,
			}
			cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(file), level))
		}
	}
	if stderr || len(cores) == 0 {
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stderr), level))
	}

	return zap.New(zapcore.NewTee(cores...))
}

// createCLILogger logs warnings and above to stderr for one-shot commands.
func createCLILogger(cfg *config.Config) *zap.Logger {
	zcfg := zap.NewDevelopmentConfig()
	zcfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if level, err := zapcore.ParseLevel(cfg.LogLevel); err == nil && level == zapcore.DebugLevel {
		zcfg.Level = zap.NewAtomicLevelAt(level)
	}
	logger, err := zcfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func enabled(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled"
}
