package gate_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"warden/internal/audit"
	"warden/internal/gate"
	"warden/internal/logging"
	"warden/internal/notifications"
	"warden/internal/vault"
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

func newTestStore(t *testing.T, actor string) *vault.Store {
	t.Helper()
	root := t.TempDir()
	log, err := audit.Open(filepath.Join(root, "logs", audit.FileName))
	if err != nil {
		t.Fatalf("open audit log: %v", err)
	}
	store, err := vault.Open(filepath.Join(root, "vault"), log, actor)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := store.Init(); err != nil {
		t.Fatalf("init store: %v", err)
	}
	return store
}

func TestApproveMovesItemToApproved(t *testing.T) {
	store := newTestStore(t, "human")
	ctx := context.Background()
	g := gate.New(store, nil, logging.NewNop())

	item, err := store.Put(ctx, vault.StatePendingApproval, vault.Draft{
		Source: "gmail",
		Action: &vault.Action{Kind: "send_email"},
	})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	if err := g.Approve(ctx, item.ID); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if _, err := store.Get(ctx, vault.StateApproved, item.ID); err != nil {
		t.Fatalf("item not in approved: %v", err)
	}
}

func TestApproveRefusesItemWithoutAction(t *testing.T) {
	store := newTestStore(t, "human")
	ctx := context.Background()
	g := gate.New(store, nil, logging.NewNop())

	item, err := store.Put(ctx, vault.StatePendingApproval, vault.Draft{Source: "cli"})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := g.Approve(ctx, item.ID); !errors.Is(err, vault.ErrMalformedItem) {
		t.Fatalf("Approve err = %v, want ErrMalformedItem", err)
	}
	// Refusal must not move the item.
	if _, err := store.Get(ctx, vault.StatePendingApproval, item.ID); err != nil {
		t.Fatalf("item moved despite refusal: %v", err)
	}
}

func TestApproveMissingItem(t *testing.T) {
	store := newTestStore(t, "human")
	g := gate.New(store, nil, logging.NewNop())
	if err := g.Approve(context.Background(), "GHOST_1"); !errors.Is(err, vault.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestRejectRecordsReason(t *testing.T) {
	store := newTestStore(t, "human")
	ctx := context.Background()
	g := gate.New(store, nil, logging.NewNop())

	item, err := store.Put(ctx, vault.StatePendingApproval, vault.Draft{
		Source: "gmail",
		Action: &vault.Action{Kind: "send_email"},
	})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	if err := g.Reject(ctx, item.ID, "wrong recipient"); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	got, err := store.Get(ctx, vault.StateRejected, item.ID)
	if err != nil {
		t.Fatalf("item not in rejected: %v", err)
	}
	if got.Annotations["failure_reason"] != "wrong recipient" {
		t.Fatalf("annotations = %v", got.Annotations)
	}

	records, err := store.Audit().ForItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	last := records[len(records)-1]
	if last.Actor != "human" || last.Detail != "wrong recipient" {
		t.Fatalf("audit record = %+v", last)
	}
}

func TestSweepAutoRejectsMalformed(t *testing.T) {
	store := newTestStore(t, "gate")
	ctx := context.Background()
	notifier := &recordingNotifier{}
	g := gate.New(store, notifier, logging.NewNop())

	bad := filepath.Join(vault.StatePendingApproval.Dir(store.Root()), "BROKEN_1.md")
	if err := os.WriteFile(bad, []byte("not an item\n"), 0o644); err != nil {
		t.Fatalf("write malformed: %v", err)
	}
	// Well-formed but missing an action: also unapprovable.
	noAction, err := store.Put(ctx, vault.StatePendingApproval, vault.Draft{Source: "cli"})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	good, err := store.Put(ctx, vault.StatePendingApproval, vault.Draft{
		Source:  "gmail",
		Subject: "ok",
		Action:  &vault.Action{Kind: "send_email"},
	})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	waiting, err := g.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if waiting != 1 {
		t.Fatalf("waiting = %d, want 1", waiting)
	}

	for _, id := range []string{"BROKEN_1", noAction.ID} {
		if _, err := os.Stat(filepath.Join(vault.StateRejected.Dir(store.Root()), id+".md")); err != nil {
			t.Errorf("%s not moved to rejected: %v", id, err)
		}
	}
	if _, err := store.Get(ctx, vault.StatePendingApproval, good.ID); err != nil {
		t.Fatalf("well-formed item disturbed: %v", err)
	}

	records, err := store.Audit().ForItem(ctx, "BROKEN_1")
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	if len(records) == 0 || records[len(records)-1].Detail != gate.RejectionMalformed {
		t.Fatalf("malformed rejection not audited: %+v", records)
	}
	if notifier.count(notifications.EventItemRejected) != 2 {
		t.Fatalf("rejection notifications = %d, want 2", notifier.count(notifications.EventItemRejected))
	}
}

func TestSweepNotifiesOncePerItem(t *testing.T) {
	store := newTestStore(t, "gate")
	ctx := context.Background()
	notifier := &recordingNotifier{}
	g := gate.New(store, notifier, logging.NewNop())

	if _, err := store.Put(ctx, vault.StatePendingApproval, vault.Draft{
		Source: "gmail",
		Action: &vault.Action{Kind: "send_email"},
	}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := g.Sweep(ctx); err != nil {
			t.Fatalf("Sweep %d: %v", i, err)
		}
	}
	if got := notifier.count(notifications.EventApprovalPending); got != 1 {
		t.Fatalf("approval notifications = %d, want 1", got)
	}
}

func TestSubmitRequiresAction(t *testing.T) {
	store := newTestStore(t, "gate")
	ctx := context.Background()
	g := gate.New(store, nil, logging.NewNop())

	item, err := store.Put(ctx, vault.StateNeedsAction, vault.Draft{Source: "cli"})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := g.Submit(ctx, item.ID); !errors.Is(err, vault.ErrMalformedItem) {
		t.Fatalf("Submit err = %v, want ErrMalformedItem", err)
	}
}
