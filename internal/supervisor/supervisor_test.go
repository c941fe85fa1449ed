package supervisor_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"warden/internal/logging"
	"warden/internal/notifications"
	"warden/internal/supervisor"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
}

func (r *recordingNotifier) Publish(_ context.Context, event notifications.Event, _ notifications.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingNotifier) count(event notifications.Event) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e == event {
			n++
		}
	}
	return n
}

func testOptions() supervisor.Options {
	return supervisor.Options{
		HealthInterval: 20 * time.Millisecond,
		StartGrace:     20 * time.Millisecond,
		StopGrace:      200 * time.Millisecond,
		Backoff:        supervisor.Backoff{Base: 10 * time.Millisecond, Cap: 40 * time.Millisecond},
		HealthyResets:  2,
		Stdout:         io.Discard,
		Stderr:         io.Discard,
	}
}

func waitForState(t *testing.T, sup *supervisor.Supervisor, name string, state supervisor.ProcessState, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		for _, st := range sup.Statuses() {
			if st.Name == name && st.State == state {
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("process %s never reached state %s: %+v", name, state, sup.Statuses())
}

func TestNewRejectsBadSpecs(t *testing.T) {
	if _, err := supervisor.New(nil, testOptions(), nil, logging.NewNop()); err == nil {
		t.Fatal("empty spec list accepted")
	}
	specs := []supervisor.Spec{{Name: "", Command: []string{"/bin/true"}}}
	if _, err := supervisor.New(specs, testOptions(), nil, logging.NewNop()); err == nil {
		t.Fatal("unnamed spec accepted")
	}
	specs = []supervisor.Spec{
		{Name: "a", Command: []string{"/bin/sleep", "60"}},
		{Name: "a", Command: []string{"/bin/sleep", "60"}},
	}
	if _, err := supervisor.New(specs, testOptions(), nil, logging.NewNop()); err == nil {
		t.Fatal("duplicate names accepted")
	}
}

func TestSupervisorRunsAndStopsProcess(t *testing.T) {
	specs := []supervisor.Spec{{Name: "sleeper", Command: []string{"/bin/sleep", "60"}}}
	sup, err := supervisor.New(specs, testOptions(), nil, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	waitForState(t, sup, "sleeper", supervisor.ProcessRunning, 2*time.Second)

	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("supervisor did not shut down")
	}
	for _, st := range sup.Statuses() {
		if st.State != supervisor.ProcessStopped {
			t.Fatalf("process %s left in state %s", st.Name, st.State)
		}
	}
}

func TestSupervisorRestartsDeadProcess(t *testing.T) {
	// Stays up past the start grace, then dies.
	specs := []supervisor.Spec{{Name: "flappy", Command: []string{"/bin/sh", "-c", "sleep 0.1"}}}
	notifier := &recordingNotifier{}
	sup, err := supervisor.New(specs, testOptions(), notifier, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if notifier.count(notifications.EventProcessRestarted) >= 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done

	if got := notifier.count(notifications.EventProcessRestarted); got < 2 {
		t.Fatalf("restart notifications = %d, want at least 2", got)
	}
	var restarts int
	for _, st := range sup.Statuses() {
		if st.Name == "flappy" {
			restarts = st.Restarts
		}
	}
	if restarts < 2 {
		t.Fatalf("restarts = %d, want at least 2", restarts)
	}
}

func TestSupervisorAbortsOnUnstartableProcess(t *testing.T) {
	// A healthy sibling must be shut down when the ghost never comes up.
	specs := []supervisor.Spec{
		{Name: "ghost", Command: []string{"/nonexistent/binary"}},
		{Name: "sleeper", Command: []string{"/bin/sleep", "60"}},
	}
	notifier := &recordingNotifier{}
	sup, err := supervisor.New(specs, testOptions(), notifier, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- sup.Run(context.Background()) }()

	var runErr error
	select {
	case runErr = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor never gave up on the unstartable process")
	}
	if !errors.Is(runErr, supervisor.ErrLaunchFailure) {
		t.Fatalf("Run returned %v, want ErrLaunchFailure", runErr)
	}
	if got := notifier.count(notifications.EventProcessLaunchFailed); got < 3 {
		t.Fatalf("launch-failure notifications = %d, want 3", got)
	}
	for _, st := range sup.Statuses() {
		switch st.Name {
		case "ghost":
			if st.State != supervisor.ProcessFailed || st.LastError == "" {
				t.Fatalf("ghost status = %+v", st)
			}
		case "sleeper":
			if st.State != supervisor.ProcessStopped {
				t.Fatalf("sleeper status = %+v", st)
			}
		}
	}
}

func TestSupervisorKeepsRestartingAfterFirstSuccess(t *testing.T) {
	// Once a process has run, later launch trouble never aborts the run.
	specs := []supervisor.Spec{{Name: "flappy", Command: []string{"/bin/sh", "-c", "sleep 0.1"}}}
	notifier := &recordingNotifier{}
	opts := testOptions()
	opts.LaunchAttempts = 1
	sup, err := supervisor.New(specs, opts, notifier, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if notifier.count(notifications.EventProcessRestarted) >= 3 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	if err := <-done; errors.Is(err, supervisor.ErrLaunchFailure) {
		t.Fatalf("Run returned %v for a process that had started", err)
	}
	if got := notifier.count(notifications.EventProcessRestarted); got < 3 {
		t.Fatalf("restart notifications = %d, want at least 3", got)
	}
}

func TestSpecValidate(t *testing.T) {
	if err := (supervisor.Spec{Name: "x", Command: []string{"/bin/true"}}).Validate(); err != nil {
		t.Fatalf("valid spec rejected: %v", err)
	}
	if err := (supervisor.Spec{Name: "x"}).Validate(); err == nil {
		t.Fatal("empty command accepted")
	}
}
