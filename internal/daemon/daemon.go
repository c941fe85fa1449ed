package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"warden/internal/config"
	"warden/internal/gate"
	"warden/internal/logging"
	"warden/internal/notifications"
	"warden/internal/supervisor"
	"warden/internal/vault"
)

// LockFileName is the single-instance lock below the log directory.
const LockFileName = "warden.lock"

// Daemon ties the supervisor and the gate sweep together and enforces
// single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *vault.Store
	sup      *supervisor.Supervisor
	gate     *gate.Gate
	notifier notifications.Service
	logPath  string

	lockPath string
	lock     *flock.Flock

	running  atomic.Bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	shutdown chan struct{}
	once     sync.Once

	errMu  sync.Mutex
	runErr error
}

// Status represents daemon runtime information.
type Status struct {
	Running   bool
	PID       int
	LockPath  string
	VaultDir  string
	Counts    map[vault.State]int
	Processes []supervisor.Status
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *vault.Store, sup *supervisor.Supervisor, g *gate.Gate, notifier notifications.Service, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || sup == nil || g == nil {
		return nil, errors.New("daemon requires config, store, supervisor, and gate")
	}
	if notifier == nil {
		notifier = notifications.NewNop()
	}
	lockPath := filepath.Join(cfg.Paths.LogDir, LockFileName)
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		sup:      sup,
		gate:     g,
		notifier: notifier,
		logPath:  filepath.Join(cfg.Paths.LogDir, "warden.log"),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
		shutdown: make(chan struct{}),
	}, nil
}

// Start acquires the instance lock and launches the supervisor and the gate
// sweep loop.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another warden instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.sup.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Error("supervisor aborted", logging.Error(err))
			d.setRunErr(err)
			d.RequestShutdown()
		}
	}()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.sweepLoop(runCtx)
	}()

	d.running.Store(true)
	d.logger.Info("warden daemon started", logging.String("lock", d.lockPath))
	if err := d.notifier.Publish(ctx, notifications.EventDaemonStarted, nil); err != nil {
		d.logger.Warn("start notification failed", logging.Error(err))
	}
	return nil
}

// sweepLoop runs the gate hygiene sweep on the watcher poll interval.
func (d *Daemon) sweepLoop(ctx context.Context) {
	interval := time.Duration(d.cfg.Workflow.WatcherPollInterval) * time.Second
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := d.gate.Sweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Error("gate sweep failed", logging.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("warden daemon stopped")
	if err := d.notifier.Publish(context.Background(), notifications.EventDaemonStopped, nil); err != nil {
		d.logger.Warn("stop notification failed", logging.Error(err))
	}
}

func (d *Daemon) setRunErr(err error) {
	d.errMu.Lock()
	defer d.errMu.Unlock()
	if d.runErr == nil {
		d.runErr = err
	}
}

// Err reports why background processing aborted, or nil after a clean run.
func (d *Daemon) Err() error {
	d.errMu.Lock()
	defer d.errMu.Unlock()
	return d.runErr
}

// RequestShutdown asks the daemon process to exit. Safe to call repeatedly.
func (d *Daemon) RequestShutdown() {
	d.once.Do(func() { close(d.shutdown) })
}

// ShutdownRequested signals when an IPC client asked the daemon to exit.
func (d *Daemon) ShutdownRequested() <-chan struct{} {
	return d.shutdown
}

// ListItems returns items in the given states, or every state when none are
// given, in queue order per state.
func (d *Daemon) ListItems(ctx context.Context, states []vault.State) ([]*vault.Item, error) {
	if len(states) == 0 {
		states = vault.AllStates()
	}
	var out []*vault.Item
	for _, state := range states {
		items, err := d.store.List(ctx, state)
		if err != nil {
			return nil, err
		}
		out = append(out, items...)
	}
	return out, nil
}

// GetItem locates one item by identifier across all states.
func (d *Daemon) GetItem(ctx context.Context, id string) (*vault.Item, error) {
	return d.store.Find(ctx, id)
}

// ItemHistory returns the item's audit trail.
func (d *Daemon) ItemHistory(ctx context.Context, id string) ([]string, error) {
	records, err := d.store.Audit().ForItem(ctx, id)
	if err != nil {
		return nil, err
	}
	lines := make([]string, 0, len(records))
	for _, rec := range records {
		lines = append(lines, fmt.Sprintf("%s %s -> %s by %s (%s) %s",
			rec.Time.Format(time.RFC3339), orDash(rec.From), orDash(rec.To), rec.Actor, rec.Outcome, rec.Detail))
	}
	return lines, nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	notifier := notifications.NewService(d.cfg)
	if err := notifier.Publish(ctx, notifications.EventDaemonStarted, nil); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	counts, err := d.store.Counts(ctx)
	if err != nil {
		d.logger.Warn("could not count vault states", logging.Error(err))
		counts = map[vault.State]int{}
	}
	return Status{
		Running:   d.running.Load(),
		PID:       os.Getpid(),
		LockPath:  d.lockPath,
		VaultDir:  d.store.Root(),
		Counts:    counts,
		Processes: d.sup.Statuses(),
	}
}
