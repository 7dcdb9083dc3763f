package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kastheco/haven/log"
)

const (
	ConfigFileName = "config.json"
	// WorkspacesDirName is the subdirectory of the config dir where
	// per-project workspace files live.
	WorkspacesDirName = "workspaces"
)

// GetConfigDir returns the path to the application's configuration directory,
// XDG-compliant ~/.config/haven/.
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get config home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "haven"), nil
}

// WorkspacesDir returns the directory holding per-project workspace files.
func WorkspacesDir() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, WorkspacesDirName), nil
}

// Config represents the application configuration.
type Config struct {
	// Shell is the shell spawned in new terminal panes. Empty means
	// $SHELL, falling back to /bin/bash.
	Shell string `json:"shell"`
	// PtyGracePeriodMs is how long a released session's process is kept
	// alive waiting for a remount before it is killed. Tuned to absorb
	// UI remount churn; not correctness-critical.
	PtyGracePeriodMs int `json:"pty_grace_period_ms"`
	// SaveDebounceMs is the quiet period after the last workspace change
	// before the workspace file is written.
	SaveDebounceMs int `json:"save_debounce_ms"`
	// ScrollbackLines caps the terminal emulator's scrollback per session.
	ScrollbackLines int `json:"scrollback_lines"`
	// WorktreeDirName is the directory under the repo root where worktrees
	// are provisioned. Relative to the repository root.
	WorktreeDirName string `json:"worktree_dir_name"`
	// TelemetryEnabled controls whether crash reporting via Sentry is active.
	// Defaults to true when not set.
	TelemetryEnabled *bool `json:"telemetry_enabled,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	trueVal := true
	return &Config{
		Shell:            "",
		PtyGracePeriodMs: 1000,
		SaveDebounceMs:   800,
		ScrollbackLines:  10000,
		WorktreeDirName:  ".worktrees",
		TelemetryEnabled: &trueVal,
	}
}

// IsTelemetryEnabled returns whether Sentry telemetry is enabled.
// Defaults to true when the field is not set.
func (c *Config) IsTelemetryEnabled() bool {
	if c.TelemetryEnabled == nil {
		return true
	}
	return *c.TelemetryEnabled
}

// GracePeriod returns the PTY grace period as a duration, repairing
// non-positive values to the default.
func (c *Config) GracePeriod() time.Duration {
	if c.PtyGracePeriodMs <= 0 {
		return time.Second
	}
	return time.Duration(c.PtyGracePeriodMs) * time.Millisecond
}

// SaveDebounce returns the workspace save debounce as a duration, repairing
// non-positive values to the default.
func (c *Config) SaveDebounce() time.Duration {
	if c.SaveDebounceMs <= 0 {
		return 800 * time.Millisecond
	}
	return time.Duration(c.SaveDebounceMs) * time.Millisecond
}

// ResolveShell returns the shell to spawn in panes: the configured override,
// else $SHELL, else /bin/bash.
func (c *Config) ResolveShell() string {
	if c.Shell != "" {
		return c.Shell
	}
	if shell := os.Getenv("SHELL"); shell != "" {
		return shell
	}
	return "/bin/bash"
}

// LoadConfig loads the config file, creating it with defaults on first run.
// A malformed file is repaired to defaults rather than failing startup.
func LoadConfig() *Config {
	configDir, err := GetConfigDir()
	if err != nil {
		log.ErrorLog.Printf("failed to get config directory: %v", err)
		return DefaultConfig()
	}

	configPath := filepath.Join(configDir, ConfigFileName)
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			defaultCfg := DefaultConfig()
			if saveErr := SaveConfig(defaultCfg); saveErr != nil {
				log.WarningLog.Printf("failed to save default config: %v", saveErr)
			}
			return defaultCfg
		}
		log.WarningLog.Printf("failed to read config file: %v", err)
		return DefaultConfig()
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		log.ErrorLog.Printf("failed to parse config file, using defaults: %v", err)
		return DefaultConfig()
	}
	return cfg
}

// SaveConfig writes the config file.
func SaveConfig(config *Config) error {
	configDir, err := GetConfigDir()
	if err != nil {
		return fmt.Errorf("failed to get config directory: %w", err)
	}
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(filepath.Join(configDir, ConfigFileName), data, 0644)
}
