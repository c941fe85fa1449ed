package daemon_test

import (
	"context"
	"io"
	"testing"
	"time"

	"warden/internal/daemon"
	"warden/internal/gate"
	"warden/internal/logging"
	"warden/internal/supervisor"
	"warden/internal/testsupport"
	"warden/internal/vault"
)

func newTestDaemon(t *testing.T) (*daemon.Daemon, *vault.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg, "daemon")

	sup, err := supervisor.New(
		[]supervisor.Spec{{Name: "sleeper", Command: []string{"/bin/sleep", "60"}}},
		supervisor.Options{
			HealthInterval: 50 * time.Millisecond,
			StartGrace:     10 * time.Millisecond,
			StopGrace:      200 * time.Millisecond,
			Backoff:        supervisor.Backoff{Base: 10 * time.Millisecond, Cap: 20 * time.Millisecond},
			Stdout:         io.Discard,
			Stderr:         io.Discard,
		},
		nil, logging.NewNop())
	if err != nil {
		t.Fatalf("new supervisor: %v", err)
	}

	g := gate.New(store, nil, logging.NewNop())
	d, err := daemon.New(cfg, store, sup, g, nil, logging.NewNop())
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}
	return d, store
}

func TestDaemonStartStop(t *testing.T) {
	d, _ := newTestDaemon(t)
	ctx := context.Background()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := d.Start(ctx); err == nil {
		t.Fatal("second Start accepted while running")
	}

	status := d.Status(ctx)
	if !status.Running {
		t.Fatal("status reports not running")
	}
	if len(status.Processes) != 1 || status.Processes[0].Name != "sleeper" {
		t.Fatalf("processes = %+v", status.Processes)
	}

	d.Stop()
	if d.Status(ctx).Running {
		t.Fatal("status reports running after Stop")
	}
	// Lock released: a second daemon may start.
	if err := d.Start(ctx); err != nil {
		t.Fatalf("restart after Stop: %v", err)
	}
	d.Stop()
}

func TestDaemonStatusCounts(t *testing.T) {
	d, store := newTestDaemon(t)
	ctx := context.Background()

	if _, err := store.Put(ctx, vault.StateInbox, vault.Draft{Source: "cli"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	status := d.Status(ctx)
	if status.Counts[vault.StateInbox] != 1 {
		t.Fatalf("counts = %v", status.Counts)
	}
}

func TestDaemonSweepRejectsMalformedItems(t *testing.T) {
	d, store := newTestDaemon(t)
	ctx := context.Background()

	// Well-formed but actionless: the sweep must reject it.
	item, err := store.Put(ctx, vault.StatePendingApproval, vault.Draft{Source: "cli"})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := store.Get(ctx, vault.StateRejected, item.ID); err == nil {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("sweep never rejected the actionless item")
}

func TestDaemonShutdownRequest(t *testing.T) {
	d, _ := newTestDaemon(t)
	select {
	case <-d.ShutdownRequested():
		t.Fatal("shutdown signaled before request")
	default:
	}
	d.RequestShutdown()
	d.RequestShutdown()
	select {
	case <-d.ShutdownRequested():
	case <-time.After(time.Second):
		t.Fatal("shutdown never signaled")
	}
}
