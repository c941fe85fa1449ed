package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"warden/internal/logging"
	"warden/internal/notifications"
)

// ErrLaunchFailure is returned by Run when a managed process could not be
// started at all: every one of its initial launch attempts failed before the
// process ever reached the running state.
var ErrLaunchFailure = errors.New("process could not be started")

// Options tunes the supervision loops.
type Options struct {
	HealthInterval time.Duration
	StartGrace     time.Duration
	StopGrace      time.Duration
	Backoff        Backoff
	// HealthyResets is how many consecutive healthy checks clear the
	// restart-attempt counter.
	HealthyResets int
	// LaunchAttempts is how many consecutive failed launches of a process
	// that has never run mark it unstartable and abort the whole run.
	LaunchAttempts int

	// Stdout and Stderr receive child output; both default to the
	// supervisor's own streams.
	Stdout io.Writer
	Stderr io.Writer

	// RecordEvent, when set, receives process lifecycle events for the
	// daemon's audit trail. Must not block.
	RecordEvent func(process, event, detail string)
}

func (o *Options) applyDefaults() {
	if o.HealthInterval <= 0 {
		o.HealthInterval = 30 * time.Second
	}
	if o.StartGrace <= 0 {
		o.StartGrace = 2 * time.Second
	}
	if o.StopGrace <= 0 {
		o.StopGrace = 5 * time.Second
	}
	if o.HealthyResets <= 0 {
		o.HealthyResets = 3
	}
	if o.LaunchAttempts <= 0 {
		o.LaunchAttempts = 3
	}
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.Stderr == nil {
		o.Stderr = os.Stderr
	}
}

// Status is a point-in-time snapshot of one managed process.
type Status struct {
	Name      string
	State     ProcessState
	PID       int
	Restarts  int
	LastError string
	Since     time.Time
}

// Supervisor runs one supervision loop per process spec.
type Supervisor struct {
	specs    []Spec
	opts     Options
	notifier notifications.Service
	logger   *slog.Logger

	mu        sync.Mutex
	statuses  map[string]*Status
	cancelRun context.CancelFunc

	failOnce sync.Once
	failErr  error
}

// New validates the specs and builds a supervisor.
func New(specs []Spec, opts Options, notifier notifications.Service, logger *slog.Logger) (*Supervisor, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("supervisor: no processes to manage")
	}
	names := make(map[string]struct{}, len(specs))
	for _, spec := range specs {
		if err := spec.Validate(); err != nil {
			return nil, err
		}
		if _, dup := names[spec.Name]; dup {
			return nil, fmt.Errorf("supervisor: duplicate process name %q", spec.Name)
		}
		names[spec.Name] = struct{}{}
	}
	opts.applyDefaults()
	if notifier == nil {
		notifier = notifications.NewNop()
	}

	statuses := make(map[string]*Status, len(specs))
	for _, spec := range specs {
		statuses[spec.Name] = &Status{Name: spec.Name, State: ProcessStopped, Since: time.Now()}
	}
	return &Supervisor{
		specs:    specs,
		opts:     opts,
		notifier: notifier,
		logger:   logging.NewComponentLogger(logger, "supervisor"),
		statuses: statuses,
	}, nil
}

// Run supervises every process until the context is canceled, then shuts the
// children down gracefully before returning. A process that cannot be started
// at all aborts the run with ErrLaunchFailure.
func (s *Supervisor) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.mu.Lock()
	s.cancelRun = cancel
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, spec := range s.specs {
		wg.Add(1)
		go func(spec Spec) {
			defer wg.Done()
			s.supervise(runCtx, spec)
		}(spec)
	}
	wg.Wait()
	if s.failErr != nil {
		return s.failErr
	}
	return ctx.Err()
}

// Statuses returns a snapshot of every managed process, sorted by name.
func (s *Supervisor) Statuses() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Status, 0, len(s.statuses))
	for _, st := range s.statuses {
		out = append(out, *st)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out
}

func (s *Supervisor) supervise(ctx context.Context, spec Spec) {
	log := s.logger.With(logging.String(logging.FieldProcess, spec.Name))
	attempt := 0
	everRan := false

	for {
		select {
		case <-ctx.Done():
			s.setState(spec.Name, ProcessStopped, 0, "")
			return
		default:
		}

		s.setState(spec.Name, ProcessStarting, 0, "")
		h, err := launch(spec, s.opts.Stdout, s.opts.Stderr)
		if err != nil {
			attempt++
			log.Error("process launch failed", logging.Error(err), logging.Int("attempt", attempt))
			s.noteLaunchFailure(ctx, spec.Name, err)
			if !everRan && attempt >= s.opts.LaunchAttempts {
				s.declareUnstartable(spec.Name, err, log)
				return
			}
			if !s.backoffWait(ctx, spec.Name, attempt, err.Error()) {
				return
			}
			continue
		}
		log.Info("process launched", logging.Int("pid", h.pid()))

		// A process that dies inside the start grace never came up.
		select {
		case waitErr := <-h.waitCh:
			attempt++
			err := fmt.Errorf("exited during start grace: %w", normalizeExit(waitErr))
			log.Error("process failed to start", logging.Error(err), logging.Int("attempt", attempt))
			s.noteLaunchFailure(ctx, spec.Name, err)
			if !everRan && attempt >= s.opts.LaunchAttempts {
				s.declareUnstartable(spec.Name, err, log)
				return
			}
			if !s.backoffWait(ctx, spec.Name, attempt, err.Error()) {
				return
			}
			continue
		case <-time.After(s.opts.StartGrace):
		case <-ctx.Done():
			s.shutdownChild(spec.Name, h, log)
			return
		}

		s.setState(spec.Name, ProcessRunning, h.pid(), "")
		everRan = true
		healthyChecks := 0
		ticker := time.NewTicker(s.opts.HealthInterval)

		var died error
	running:
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				s.shutdownChild(spec.Name, h, log)
				return
			case waitErr := <-h.waitCh:
				ticker.Stop()
				died = normalizeExit(waitErr)
				break running
			case <-ticker.C:
				healthyChecks++
				if healthyChecks >= s.opts.HealthyResets && attempt != 0 {
					log.Info("process healthy, clearing restart counter",
						logging.Int("healthy_checks", healthyChecks))
					attempt = 0
				}
			}
		}

		attempt++
		s.bumpRestarts(spec.Name)
		s.recordEvent(spec.Name, "process_died", errString(died))
		log.Error("process died",
			logging.Error(died),
			logging.Int("attempt", attempt),
			logging.String(logging.FieldEventType, "process_died"))
		if err := s.notifier.Publish(ctx, notifications.EventProcessRestarted, notifications.Payload{
			"process": spec.Name,
			"attempt": strconv.Itoa(attempt),
		}); err != nil {
			log.Warn("restart notification failed", logging.Error(err))
		}
		if !s.backoffWait(ctx, spec.Name, attempt, errString(died)) {
			return
		}
	}
}

// backoffWait sleeps the restart delay. Returns false when the context ended.
func (s *Supervisor) backoffWait(ctx context.Context, name string, attempt int, lastError string) bool {
	delay := s.opts.Backoff.Delay(attempt)
	s.setBackoff(name, lastError)
	s.logger.Info("restart scheduled",
		logging.String(logging.FieldProcess, name),
		logging.Duration("delay", delay),
		logging.Int("attempt", attempt))
	select {
	case <-ctx.Done():
		s.setState(name, ProcessStopped, 0, lastError)
		return false
	case <-time.After(delay):
		return true
	}
}

func (s *Supervisor) shutdownChild(name string, h *handle, log *slog.Logger) {
	s.setState(name, ProcessStopping, h.pid(), "")
	log.Info("stopping process", logging.Int("pid", h.pid()))
	if err := h.terminate(s.opts.StopGrace); err != nil {
		log.Debug("process exit status", logging.Error(err))
	}
	s.setState(name, ProcessStopped, 0, "")
	log.Info("process stopped")
}

// declareUnstartable marks the process failed and aborts the whole run: a
// managed process that never comes up means the daemon cannot do its job.
func (s *Supervisor) declareUnstartable(name string, cause error, log *slog.Logger) {
	s.setState(name, ProcessFailed, 0, cause.Error())
	s.recordEvent(name, "launch_failure", cause.Error())
	s.failOnce.Do(func() {
		s.failErr = fmt.Errorf("%w: %s: %v", ErrLaunchFailure, name, cause)
	})
	log.Error("process declared unstartable, aborting run",
		logging.Error(cause),
		logging.String(logging.FieldEventType, "launch_failure"))
	s.mu.Lock()
	cancel := s.cancelRun
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (s *Supervisor) noteLaunchFailure(ctx context.Context, name string, cause error) {
	if err := s.notifier.Publish(ctx, notifications.EventProcessLaunchFailed, notifications.Payload{
		"process": name,
		"error":   cause.Error(),
	}); err != nil {
		s.logger.Warn("launch-failure notification failed", logging.Error(err))
	}
}

func (s *Supervisor) recordEvent(process, event, detail string) {
	if s.opts.RecordEvent != nil {
		s.opts.RecordEvent(process, event, detail)
	}
}

func (s *Supervisor) setState(name string, state ProcessState, pid int, lastError string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.statuses[name]
	st.State = state
	st.PID = pid
	st.Since = time.Now()
	if lastError != "" {
		st.LastError = lastError
	}
}

func (s *Supervisor) setBackoff(name, lastError string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.statuses[name]
	st.State = ProcessBackoff
	st.PID = 0
	st.Since = time.Now()
	st.LastError = lastError
}

func (s *Supervisor) bumpRestarts(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[name].Restarts++
}

func normalizeExit(err error) error {
	if err == nil {
		return fmt.Errorf("exited cleanly")
	}
	return err
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
