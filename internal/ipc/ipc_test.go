package ipc_test

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"warden/internal/daemon"
	"warden/internal/gate"
	"warden/internal/ipc"
	"warden/internal/logging"
	"warden/internal/supervisor"
	"warden/internal/testsupport"
	"warden/internal/vault"
)

func startServer(t *testing.T) (*ipc.Client, *vault.Store, *daemon.Daemon) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg, "daemon")

	sup, err := supervisor.New(
		[]supervisor.Spec{{Name: "sleeper", Command: []string{"/bin/sleep", "60"}}},
		supervisor.Options{
			StartGrace: 10 * time.Millisecond,
			StopGrace:  200 * time.Millisecond,
			Stdout:     io.Discard,
			Stderr:     io.Discard,
		},
		nil, logging.NewNop())
	if err != nil {
		t.Fatalf("new supervisor: %v", err)
	}
	d, err := daemon.New(cfg, store, sup, gate.New(store, nil, logging.NewNop()), nil, logging.NewNop())
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	socket := filepath.Join(cfg.Paths.LogDir, ipc.SocketFileName)
	server, err := ipc.NewServer(ctx, socket, d, logging.NewNop())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	server.Serve()
	t.Cleanup(func() {
		server.Close()
		cancel()
	})

	client, err := ipc.Dial(socket)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client, store, d
}

func TestStatusOverSocket(t *testing.T) {
	client, store, _ := startServer(t)

	if _, err := store.Put(context.Background(), vault.StateInbox, vault.Draft{Source: "cli"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Running {
		t.Fatal("daemon reported running before Start")
	}
	if status.Counts["inbox"] != 1 {
		t.Fatalf("counts = %v", status.Counts)
	}
	if len(status.Processes) != 1 || status.Processes[0].Name != "sleeper" {
		t.Fatalf("processes = %+v", status.Processes)
	}
}

func TestQueueListAndDescribe(t *testing.T) {
	client, store, _ := startServer(t)
	ctx := context.Background()

	item, err := store.Put(ctx, vault.StatePendingApproval, vault.Draft{
		Source:  "gmail",
		Subject: "Reply to Alice",
		Action:  &vault.Action{Kind: "send_email"},
		Body:    []byte("Hi Alice\n"),
	})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	list, err := client.QueueList([]string{"pending_approval"})
	if err != nil {
		t.Fatalf("QueueList: %v", err)
	}
	if len(list.Items) != 1 || list.Items[0].ID != item.ID {
		t.Fatalf("items = %+v", list.Items)
	}
	if list.Items[0].ActionKind != "send_email" || list.Items[0].State != "pending_approval" {
		t.Fatalf("item dto = %+v", list.Items[0])
	}

	if _, err := client.QueueList([]string{"bogus"}); err == nil {
		t.Fatal("unknown state accepted")
	}

	desc, err := client.QueueDescribe(item.ID)
	if err != nil {
		t.Fatalf("QueueDescribe: %v", err)
	}
	if desc.Body != "Hi Alice\n" {
		t.Fatalf("body = %q", desc.Body)
	}
	if len(desc.History) == 0 {
		t.Fatal("no audit history returned")
	}

	if _, err := client.QueueDescribe("GHOST_1"); err == nil {
		t.Fatal("missing item did not error")
	}
}

func TestShutdownOverSocket(t *testing.T) {
	client, _, d := startServer(t)

	resp, err := client.Shutdown()
	if err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if !resp.Stopping {
		t.Fatal("shutdown not acknowledged")
	}
	select {
	case <-d.ShutdownRequested():
	case <-time.After(time.Second):
		t.Fatal("daemon never saw the shutdown request")
	}
}
