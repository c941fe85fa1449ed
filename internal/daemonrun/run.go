package daemonrun

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"warden/internal/actuator"
	"warden/internal/audit"
	"warden/internal/config"
	"warden/internal/daemon"
	"warden/internal/deps"
	"warden/internal/executor"
	"warden/internal/gate"
	"warden/internal/ipc"
	"warden/internal/logging"
	"warden/internal/notifications"
	"warden/internal/supervisor"
	"warden/internal/vault"
	"warden/internal/watcher"
)

// Options configures daemon process runtime behavior.
type Options struct {
	// LogLevel overrides the configured level when set.
	LogLevel string
	// ConfigPath is the resolved config file, propagated to child processes.
	ConfigPath string
}

// WatcherProcess and ExecutorProcess are the built-in managed processes; the
// supervisor launches them by re-executing the warden binary with hidden
// subcommands.
const (
	WatcherProcess  = "watcher-filesystem"
	ExecutorProcess = "executor"
)

// Run starts the warden daemon runtime loop: supervisor, gate sweep, and the
// IPC control socket. It returns when a signal arrives or an IPC client
// requests shutdown.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("warden-%s.log", runID))
	logger, err := logging.New(logging.Options{
		Level:       levelOrDefault(opts.LogLevel, cfg.Logging.Level),
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logPath},
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update warden.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "warden-*.log", Exclude: []string{logPath}},
	)

	pidPath := filepath.Join(cfg.Paths.LogDir, "warden.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, auditLog, err := openVault(cfg, "gate")
	if err != nil {
		logger.Error("open vault", logging.Error(err))
		return err
	}

	for _, status := range deps.Missing(deps.CheckActions(cfg.Actions)) {
		logger.Warn("action command unavailable",
			logging.String(logging.FieldActionKind, status.Kind),
			logging.String("command", status.Command),
			logging.String(logging.FieldErrorHint, status.Detail),
			logging.String(logging.FieldImpact, "approved items of this kind will be rejected"))
	}

	notifier := notifications.NewService(cfg)

	specs, err := processSpecs(cfg, opts)
	if err != nil {
		return err
	}
	childOut, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open child log sink: %w", err)
	}
	defer childOut.Close()

	sup, err := supervisor.New(specs, supervisor.Options{
		HealthInterval: time.Duration(cfg.Supervisor.HealthInterval) * time.Second,
		StartGrace:     time.Duration(cfg.Supervisor.StartGrace) * time.Second,
		StopGrace:      time.Duration(cfg.Supervisor.StopGrace) * time.Second,
		Backoff: supervisor.Backoff{
			Base: time.Duration(cfg.Supervisor.BackoffBase) * time.Second,
			Cap:  time.Duration(cfg.Supervisor.BackoffCap) * time.Second,
		},
		HealthyResets: cfg.Supervisor.HealthyResets,
		Stdout:        io.MultiWriter(os.Stdout, childOut),
		Stderr:        io.MultiWriter(os.Stderr, childOut),
		RecordEvent: func(process, event, detail string) {
			err := auditLog.Append(signalCtx, audit.Record{
				ItemID:  audit.SystemItem,
				Actor:   "daemon",
				Outcome: event,
				Detail:  process + ": " + detail,
			})
			if err != nil {
				logger.Warn("audit append failed", logging.Error(err))
			}
		},
	}, notifier, logger)
	if err != nil {
		return fmt.Errorf("create supervisor: %w", err)
	}

	g := gate.New(store, notifier, logger)
	d, err := daemon.New(cfg, store, sup, g, notifier, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}

	socketPath := filepath.Join(cfg.Paths.LogDir, ipc.SocketFileName)
	ipcServer, err := ipc.NewServer(signalCtx, socketPath, d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(signalCtx); err != nil {
		logger.Error("daemon start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_start_failed"),
			logging.String(logging.FieldErrorHint, "check the lock file and vault directory permissions"),
			logging.String(logging.FieldImpact, "no items will be processed"))
		return err
	}
	defer d.Stop()

	select {
	case <-signalCtx.Done():
	case <-d.ShutdownRequested():
	}
	if err := d.Err(); err != nil {
		logger.Error("warden daemon exiting after background failure",
			logging.Error(err),
			logging.String(logging.FieldImpact, "managed processes are down"))
		return err
	}
	logger.Info("warden daemon shutting down")
	return nil
}

// RunWatcher is the entry point of the supervised filesystem-watcher child.
func RunWatcher(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger, err := childLogger(cfg, opts)
	if err != nil {
		return err
	}

	store, _, err := openVault(cfg, WatcherProcess)
	if err != nil {
		return err
	}
	ledger, err := watcher.OpenLedger(filepath.Join(cfg.Paths.LogDir, "watcher.db"))
	if err != nil {
		return err
	}
	defer ledger.Close()

	fw, err := watcher.NewFilesystem(cfg.Paths.DropDir, store, ledger, logger)
	if err != nil {
		return err
	}
	runner := watcher.NewRunner(fw, logger,
		time.Duration(cfg.Workflow.WatcherPollInterval)*time.Second,
		time.Duration(cfg.Workflow.ErrorRetryInterval)*time.Second)

	err = runner.Run(signalCtx)
	if err == context.Canceled {
		return nil
	}
	return err
}

// RunExecutor is the entry point of the supervised executor child.
func RunExecutor(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger, err := childLogger(cfg, opts)
	if err != nil {
		return err
	}

	store, _, err := openVault(cfg, executor.Actor)
	if err != nil {
		return err
	}
	registry, err := actuator.FromConfig(cfg, logger)
	if err != nil {
		return err
	}
	notifier := notifications.NewService(cfg)

	exec := executor.New(store, registry, notifier, logger,
		time.Duration(cfg.Workflow.ExecutorPollInterval)*time.Second)
	err = exec.Run(signalCtx)
	if err == context.Canceled {
		return nil
	}
	return err
}

// openVault opens the shared audit log and the vault store for one actor.
func openVault(cfg *config.Config, actor string) (*vault.Store, *audit.Log, error) {
	auditLog, err := audit.Open(filepath.Join(cfg.Paths.LogDir, audit.FileName))
	if err != nil {
		return nil, nil, err
	}
	store, err := vault.Open(cfg.Paths.VaultDir, auditLog, actor)
	if err != nil {
		return nil, nil, err
	}
	if err := store.Init(); err != nil {
		return nil, nil, err
	}
	return store, auditLog, nil
}

// processSpecs builds the supervised process list: the built-in children by
// re-executing this binary, plus any extra configured processes.
func processSpecs(cfg *config.Config, opts Options) ([]supervisor.Spec, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolve own binary: %w", err)
	}
	childArgs := func(sub string) []string {
		args := []string{exe, sub}
		if opts.ConfigPath != "" {
			args = append(args, "--config", opts.ConfigPath)
		}
		return args
	}
	specs := []supervisor.Spec{
		{Name: WatcherProcess, Command: childArgs("run-watcher")},
		{Name: ExecutorProcess, Command: childArgs("run-executor")},
	}
	for _, proc := range cfg.Processes {
		if proc.Disabled {
			continue
		}
		specs = append(specs, supervisor.Spec{Name: proc.Name, Command: proc.Command})
	}
	return specs, nil
}

func childLogger(cfg *config.Config, opts Options) (*slog.Logger, error) {
	return logging.New(logging.Options{
		Level:       levelOrDefault(opts.LogLevel, cfg.Logging.Level),
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout"},
	})
}

func levelOrDefault(override, configured string) string {
	if override != "" {
		return override
	}
	return configured
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "warden.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
