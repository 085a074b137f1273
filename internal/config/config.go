package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete onboard engine configuration
type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Session  SessionConfig  `mapstructure:"session"`
	Poll     PollConfig     `mapstructure:"poll"`
	Autosave AutosaveConfig `mapstructure:"autosave"`
	Progress ProgressConfig `mapstructure:"progress"`
	Persist  PersistConfig  `mapstructure:"persist"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Frame    FrameConfig    `mapstructure:"frame"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// APIConfig controls the connection to the onboarding progress API
type APIConfig struct {
	// BaseURL is the root of the progress/auth/form API
	BaseURL string `mapstructure:"base_url"`
	// TimeoutSeconds is the per-request timeout (default: 15)
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// SessionConfig controls token-expiry monitoring and the logout countdown
type SessionConfig struct {
	// CheckIntervalSeconds is how often expiry is compared to now (default: 5)
	CheckIntervalSeconds int `mapstructure:"check_interval_seconds"`
	// WarningThresholdSeconds is the remaining lifetime at which the expiry
	// warning is raised (default: 30)
	WarningThresholdSeconds int `mapstructure:"warning_threshold_seconds"`
	// CountdownTickSeconds is the resolution of the warning countdown (default: 1)
	CountdownTickSeconds int `mapstructure:"countdown_tick_seconds"`
}

// PollConfig controls the bounded progress poller that observes webhook effects
type PollConfig struct {
	// IntervalSeconds is the delay between progress fetches (default: 3)
	IntervalSeconds int `mapstructure:"interval_seconds"`
	// MaxAttempts bounds the poller; polling stops after this many fetches
	// even if no transition was observed (default: 20, ~60s)
	MaxAttempts int `mapstructure:"max_attempts"`
}

// AutosaveConfig controls the debounced draft persistence pipeline
type AutosaveConfig struct {
	// DebounceMs is the quiet period after the last mutation before a save
	// fires (default: 3000)
	DebounceMs int `mapstructure:"debounce_ms"`
}

// ProgressConfig controls step advancement policy
type ProgressConfig struct {
	// ClearTasksOnRollback also clears the re-entered step's completed tasks
	// when the user goes back. When false (default) tasks are preserved and
	// only a forward advance clears them.
	ClearTasksOnRollback bool `mapstructure:"clear_tasks_on_rollback"`
	// ValidatedSteps lists the steps that must pass the validation gate
	// before advancing (default: [2, 3]). Step 1 advances on any booking
	// signal without local validation.
	ValidatedSteps []int `mapstructure:"validated_steps"`
	// RequiredTasks maps a step (keyed as a decimal string, the way viper
	// renders map keys) to the task ids that must appear in tasks_completed
	// before advancing past it. Steps absent from the map require no tasks.
	RequiredTasks map[string][]string `mapstructure:"required_tasks"`
}

// PersistConfig controls the local persistence tiers behind the port
type PersistConfig struct {
	// Dir is the directory for the durable local tier (default: <config dir>/drafts)
	Dir string `mapstructure:"dir"`
}

// WebhookConfig controls the fire-and-forget external notification
type WebhookConfig struct {
	// URL is the fixed third-party endpoint notified on step transitions.
	// Empty disables notification.
	URL string `mapstructure:"url"`
}

// FrameConfig controls inbound embedded-frame message handling
type FrameConfig struct {
	// AllowedOrigins are substrings an inbound message origin must contain
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Level is one of "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level"`
	// File is the log destination; empty writes to stderr
	File string `mapstructure:"file"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:        "http://localhost:8080",
			TimeoutSeconds: 15,
		},
		Session: SessionConfig{
			CheckIntervalSeconds:    5,
			WarningThresholdSeconds: 30,
			CountdownTickSeconds:    1,
		},
		Poll: PollConfig{
			IntervalSeconds: 3,
			MaxAttempts:     20,
		},
		Autosave: AutosaveConfig{
			DebounceMs: 3000,
		},
		Progress: ProgressConfig{
			ClearTasksOnRollback: false, // forward-only clearing by default
			ValidatedSteps:       []int{2, 3},
			RequiredTasks: map[string][]string{
				"3": {"sign_agreement", "setup_payment"},
			},
		},
		Persist: PersistConfig{
			Dir: "", // empty means <config dir>/drafts
		},
		Webhook: WebhookConfig{
			URL: "",
		},
		Frame: FrameConfig{
			AllowedOrigins: []string{},
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
}

// Timeout returns the API request timeout as a time.Duration
func (c *APIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// CheckInterval returns the expiry check interval as a time.Duration
func (c *SessionConfig) CheckInterval() time.Duration {
	return time.Duration(c.CheckIntervalSeconds) * time.Second
}

// WarningThreshold returns the warning threshold as a time.Duration
func (c *SessionConfig) WarningThreshold() time.Duration {
	return time.Duration(c.WarningThresholdSeconds) * time.Second
}

// CountdownTick returns the countdown resolution as a time.Duration
func (c *SessionConfig) CountdownTick() time.Duration {
	return time.Duration(c.CountdownTickSeconds) * time.Second
}

// Interval returns the poll interval as a time.Duration
func (c *PollConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// Debounce returns the autosave debounce as a time.Duration
func (c *AutosaveConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

// RequiresValidation reports whether the given step must pass the gate
// before an advance is attempted.
func (c *ProgressConfig) RequiresValidation(step int) bool {
	for _, s := range c.ValidatedSteps {
		if s == step {
			return true
		}
	}
	return false
}

// TasksRequiredFor returns the task ids that must be completed before
// advancing past the given step. Nil when the step has no task policy.
func (c *ProgressConfig) TasksRequiredFor(step int) []string {
	return c.RequiredTasks[strconv.Itoa(step)]
}

// DraftDir resolves the durable local tier directory.
func (c *PersistConfig) DraftDir() string {
	if c.Dir != "" {
		return c.Dir
	}
	return filepath.Join(ConfigDir(), "drafts")
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	viper.SetDefault("api.base_url", defaults.API.BaseURL)
	viper.SetDefault("api.timeout_seconds", defaults.API.TimeoutSeconds)

	viper.SetDefault("session.check_interval_seconds", defaults.Session.CheckIntervalSeconds)
	viper.SetDefault("session.warning_threshold_seconds", defaults.Session.WarningThresholdSeconds)
	viper.SetDefault("session.countdown_tick_seconds", defaults.Session.CountdownTickSeconds)

	viper.SetDefault("poll.interval_seconds", defaults.Poll.IntervalSeconds)
	viper.SetDefault("poll.max_attempts", defaults.Poll.MaxAttempts)

	viper.SetDefault("autosave.debounce_ms", defaults.Autosave.DebounceMs)

	viper.SetDefault("progress.clear_tasks_on_rollback", defaults.Progress.ClearTasksOnRollback)
	viper.SetDefault("progress.validated_steps", defaults.Progress.ValidatedSteps)
	viper.SetDefault("progress.required_tasks", defaults.Progress.RequiredTasks)

	viper.SetDefault("persist.dir", defaults.Persist.Dir)

	viper.SetDefault("webhook.url", defaults.Webhook.URL)

	viper.SetDefault("frame.allowed_origins", defaults.Frame.AllowedOrigins)

	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.file", defaults.Logging.File)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "onboard")
	}
	// Fall back to ~/.config/onboard
	home, err := os.UserHomeDir()
	if err != nil {
		return ".onboard"
	}
	return filepath.Join(home, ".config", "onboard")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
