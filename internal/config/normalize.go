package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeNotifications()
	c.normalizeLogging()
	c.normalizeWorkflow()
	c.normalizeSupervisor()
	c.normalizeActions()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.VaultDir) == "" {
		c.Paths.VaultDir = defaultVaultDir
	}
	if c.Paths.VaultDir, err = expandPath(c.Paths.VaultDir); err != nil {
		return fmt.Errorf("paths.vault_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.VaultDir, "logs")
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.DropDir) == "" {
		c.Paths.DropDir = filepath.Join(c.Paths.VaultDir, "drop")
	}
	if c.Paths.DropDir, err = expandPath(c.Paths.DropDir); err != nil {
		return fmt.Errorf("paths.drop_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeNotifications() {
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("WARDEN_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = value
		}
	}
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNtfyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.WatcherPollInterval <= 0 {
		c.Workflow.WatcherPollInterval = defaultWatcherPollInterval
	}
	if c.Workflow.ExecutorPollInterval <= 0 {
		c.Workflow.ExecutorPollInterval = defaultExecutorPollInterval
	}
	if c.Workflow.ErrorRetryInterval <= 0 {
		c.Workflow.ErrorRetryInterval = defaultErrorRetryInterval
	}
}

func (c *Config) normalizeSupervisor() {
	if c.Supervisor.HealthInterval <= 0 {
		c.Supervisor.HealthInterval = defaultHealthInterval
	}
	if c.Supervisor.StartGrace <= 0 {
		c.Supervisor.StartGrace = defaultStartGrace
	}
	if c.Supervisor.StopGrace <= 0 {
		c.Supervisor.StopGrace = defaultStopGrace
	}
	if c.Supervisor.BackoffBase <= 0 {
		c.Supervisor.BackoffBase = defaultBackoffBase
	}
	if c.Supervisor.BackoffCap <= 0 {
		c.Supervisor.BackoffCap = defaultBackoffCap
	}
	if c.Supervisor.HealthyResets <= 0 {
		c.Supervisor.HealthyResets = defaultHealthyResets
	}
}

func (c *Config) normalizeActions() {
	if c.Actions == nil {
		c.Actions = map[string][]string{}
		return
	}
	normalized := make(map[string][]string, len(c.Actions))
	for kind, command := range c.Actions {
		kind = strings.ToLower(strings.TrimSpace(kind))
		if kind == "" {
			continue
		}
		normalized[kind] = command
	}
	c.Actions = normalized
}
