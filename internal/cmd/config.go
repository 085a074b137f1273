package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/veritahealth/onboard/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or modify onboard configuration",
	Long: `View or modify onboard configuration.

Without arguments, displays the current configuration.
Use subcommands to modify settings or create a config file.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the user's config file.

Keys use dot notation, e.g.:
  onboard config set api.base_url https://api.example.com
  onboard config set poll.max_attempts 30
  onboard config set autosave.debounce_ms 5000

Valid keys:
  api.base_url                      - Root of the progress/auth/form API
  api.timeout_seconds               - Per-request timeout
  session.check_interval_seconds    - Token expiry check interval
  session.warning_threshold_seconds - Remaining lifetime that raises the warning
  session.countdown_tick_seconds    - Warning countdown resolution
  poll.interval_seconds             - Delay between progress polls
  poll.max_attempts                 - Poll attempt budget per step
  autosave.debounce_ms              - Quiet period before a draft save fires
  progress.clear_tasks_on_rollback  - Also clear tasks on go-back (true/false)
  persist.dir                       - Durable local draft directory
  webhook.url                       - Step-notification endpoint (empty disables)
  logging.level                     - debug, info, warn, or error
  logging.file                      - Log destination (empty is stderr)`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long:  `Create a default config file at ~/.config/onboard/config.yaml with all available options.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	RunE:  runConfigPath,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	fmt.Println("Current configuration:")
	fmt.Println()

	// Show where config is being read from
	if viper.ConfigFileUsed() != "" {
		fmt.Printf("Config file: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Printf("Config file: (none - using defaults)\n")
	}
	fmt.Println()

	fmt.Println("api:")
	fmt.Printf("  base_url: %s\n", cfg.API.BaseURL)
	fmt.Printf("  timeout_seconds: %d\n", cfg.API.TimeoutSeconds)

	fmt.Println("session:")
	fmt.Printf("  check_interval_seconds: %d\n", cfg.Session.CheckIntervalSeconds)
	fmt.Printf("  warning_threshold_seconds: %d\n", cfg.Session.WarningThresholdSeconds)
	fmt.Printf("  countdown_tick_seconds: %d\n", cfg.Session.CountdownTickSeconds)

	fmt.Println("poll:")
	fmt.Printf("  interval_seconds: %d\n", cfg.Poll.IntervalSeconds)
	fmt.Printf("  max_attempts: %d\n", cfg.Poll.MaxAttempts)

	fmt.Println("autosave:")
	fmt.Printf("  debounce_ms: %d\n", cfg.Autosave.DebounceMs)

	fmt.Println("progress:")
	fmt.Printf("  clear_tasks_on_rollback: %v\n", cfg.Progress.ClearTasksOnRollback)
	fmt.Printf("  validated_steps: %v\n", cfg.Progress.ValidatedSteps)
	fmt.Printf("  required_tasks: %v\n", cfg.Progress.RequiredTasks)

	fmt.Println("persist:")
	fmt.Printf("  dir: %s\n", cfg.Persist.DraftDir())

	fmt.Println("webhook:")
	fmt.Printf("  url: %s\n", cfg.Webhook.URL)

	fmt.Println("logging:")
	fmt.Printf("  level: %s\n", cfg.Logging.Level)
	fmt.Printf("  file: %s\n", cfg.Logging.File)

	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key := args[0]
	value := args[1]

	// Validate the key exists
	validKeys := map[string]string{
		"api.base_url":                      "string",
		"api.timeout_seconds":               "int",
		"session.check_interval_seconds":    "int",
		"session.warning_threshold_seconds": "int",
		"session.countdown_tick_seconds":    "int",
		"poll.interval_seconds":             "int",
		"poll.max_attempts":                 "int",
		"autosave.debounce_ms":              "int",
		"progress.clear_tasks_on_rollback":  "bool",
		"persist.dir":                       "string",
		"webhook.url":                       "string",
		"logging.level":                     "string",
		"logging.file":                      "string",
	}

	keyType, ok := validKeys[key]
	if !ok {
		return fmt.Errorf("unknown configuration key: %s\nRun 'onboard config set --help' to see valid keys", key)
	}

	// Validate the value based on type
	var typedValue interface{}
	switch keyType {
	case "string":
		if key == "logging.level" && !isValidLogLevel(value) {
			return fmt.Errorf("invalid value for %s: %s\nValid options: debug, info, warn, error", key, value)
		}
		typedValue = value
	case "bool":
		if value != "true" && value != "false" {
			return fmt.Errorf("invalid value for %s: expected true or false", key)
		}
		typedValue = value == "true"
	case "int":
		intVal, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for %s: expected integer", key)
		}
		if intVal < 0 {
			return fmt.Errorf("invalid value for %s: must be non-negative", key)
		}
		typedValue = intVal
	}

	// Ensure config directory exists
	configDir := config.ConfigDir()
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Set the value in viper
	viper.Set(key, typedValue)

	// Write to config file
	configFile := config.ConfigFile()
	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Printf("Set %s = %v\n", key, typedValue)
	fmt.Printf("Config saved to %s\n", configFile)

	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	configDir := config.ConfigDir()
	configFile := config.ConfigFile()

	// Check if config file already exists
	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config file already exists at %s\nUse 'onboard config set' to modify values", configFile)
	}

	// Create config directory
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Generate a commented config file
	configContent := `# Onboard Configuration

# Progress/auth/form API connection
api:
  base_url: http://localhost:8080
  # Per-request timeout in seconds
  timeout_seconds: 15

# Session expiry monitoring
session:
  # How often the token expiry is compared to now
  check_interval_seconds: 5
  # Remaining lifetime at which the expiry warning is raised
  warning_threshold_seconds: 30
  # Resolution of the logout countdown while the warning is active
  countdown_tick_seconds: 1

# Bounded progress polling (observes relayed webhook effects)
poll:
  interval_seconds: 3
  max_attempts: 20

# Debounced draft autosave
autosave:
  # Quiet period after the last edit before a save fires
  debounce_ms: 3000

# Step advancement policy
progress:
  # Also clear the re-entered step's completed tasks on go-back
  clear_tasks_on_rollback: false
  # Steps that must pass draft validation before advancing
  validated_steps: [2, 3]
  # Tasks that must be completed before advancing past a step
  required_tasks:
    "3": [sign_agreement, setup_payment]

# Local draft persistence (empty uses <config dir>/drafts)
persist:
  dir: ""

# Fire-and-forget step notification (empty disables)
webhook:
  url: ""

# Embedded-frame origin allow-list (substring match)
frame:
  allowed_origins: []

# Logging
logging:
  level: info
  # Log destination; empty writes to stderr
  file: ""
`

	if err := os.WriteFile(configFile, []byte(configContent), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Printf("Created config file at %s\n", configFile)
	fmt.Println("Edit this file to customize onboard's behavior.")

	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	configFile := config.ConfigFile()

	if viper.ConfigFileUsed() != "" {
		fmt.Printf("Active config: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Printf("Default path: %s (not created)\n", configFile)
	}

	// Also show config search paths
	fmt.Println("\nSearch paths:")
	fmt.Printf("  1. %s\n", filepath.Join(config.ConfigDir(), "config.yaml"))
	fmt.Printf("  2. $HOME/.config/onboard/config.yaml\n")
	fmt.Printf("  3. ./config.yaml (current directory)\n")
	fmt.Println("\nEnvironment variables: ONBOARD_* (e.g., ONBOARD_API_BASE_URL)")

	return nil
}

func isValidLogLevel(level string) bool {
	switch strings.ToLower(level) {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}
