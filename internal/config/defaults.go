package config

const (
	defaultVaultDir             = "~/.local/share/warden/vault"
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultLogRetentionDays     = 60
	defaultWatcherPollInterval  = 10
	defaultExecutorPollInterval = 5
	defaultErrorRetryInterval   = 10
	defaultHealthInterval       = 30
	defaultStartGrace           = 2
	defaultStopGrace            = 5
	defaultBackoffBase          = 2
	defaultBackoffCap           = 32
	defaultHealthyResets        = 3
	defaultNtfyRequestTimeout   = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			VaultDir: defaultVaultDir,
		},
		Workflow: Workflow{
			WatcherPollInterval:  defaultWatcherPollInterval,
			ExecutorPollInterval: defaultExecutorPollInterval,
			ErrorRetryInterval:   defaultErrorRetryInterval,
		},
		Supervisor: Supervisor{
			HealthInterval: defaultHealthInterval,
			StartGrace:     defaultStartGrace,
			StopGrace:      defaultStopGrace,
			BackoffBase:    defaultBackoffBase,
			BackoffCap:     defaultBackoffCap,
			HealthyResets:  defaultHealthyResets,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyRequestTimeout,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
		Actions: map[string][]string{},
	}
}
