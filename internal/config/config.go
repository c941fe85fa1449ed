package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	VaultDir string `toml:"vault_dir"`
	LogDir   string `toml:"log_dir"`
	DropDir  string `toml:"drop_dir"`
}

// Workflow contains poll intervals for watchers and the executor.
type Workflow struct {
	WatcherPollInterval  int `toml:"watcher_poll_interval"`
	ExecutorPollInterval int `toml:"executor_poll_interval"`
	ErrorRetryInterval   int `toml:"error_retry_interval"`
}

// Supervisor contains health-check and restart-backoff tuning.
type Supervisor struct {
	HealthInterval int `toml:"health_interval"`
	StartGrace     int `toml:"start_grace"`
	StopGrace      int `toml:"stop_grace"`
	BackoffBase    int `toml:"backoff_base"`
	BackoffCap     int `toml:"backoff_cap"`
	HealthyResets  int `toml:"healthy_resets"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Process declares an additional managed process beyond the built-in
// filesystem watcher and executor. Args are passed verbatim to exec.
type Process struct {
	Name     string   `toml:"name"`
	Command  []string `toml:"command"`
	Disabled bool     `toml:"disabled"`
}

// Config encapsulates all configuration values for warden.
//
// Configuration sections by subsystem:
//   - Paths: vault, log, and drop directories
//   - Workflow: watcher/executor poll intervals
//   - Supervisor: health-check cadence and restart backoff
//   - Notifications: ntfy push notification settings
//   - Logging: log format, level, and retention
//   - Actions: action kind to command mapping for the exec actuator
//   - Processes: extra managed processes
type Config struct {
	Paths         Paths               `toml:"paths"`
	Workflow      Workflow            `toml:"workflow"`
	Supervisor    Supervisor          `toml:"supervisor"`
	Notifications Notifications       `toml:"notifications"`
	Logging       Logging             `toml:"logging"`
	Actions       map[string][]string `toml:"actions"`
	Processes     []Process           `toml:"process"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/warden/config.toml")
}

// SampleConfig returns the embedded annotated sample configuration.
func SampleConfig() string {
	return sampleConfig
}

// Load locates, parses, and validates a configuration file. The returned config
// has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("warden.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.VaultDir, c.Paths.LogDir, c.Paths.DropDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}
