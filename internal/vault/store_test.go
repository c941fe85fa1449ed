package vault

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"warden/internal/audit"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	root := t.TempDir()
	log, err := audit.Open(filepath.Join(root, "logs", audit.FileName))
	if err != nil {
		t.Fatalf("open audit log: %v", err)
	}
	store, err := Open(filepath.Join(root, "vault"), log, "test")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := store.Init(); err != nil {
		t.Fatalf("init store: %v", err)
	}
	return store
}

func TestStorePutAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	item, err := store.Put(ctx, StateNeedsAction, Draft{
		Source:  "gmail",
		Subject: "Reply to Alice",
		Action:  &Action{Kind: "send_email"},
		Body:    []byte("Hi Alice\n"),
	})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if item.ID == "" {
		t.Fatal("Put assigned no identifier")
	}

	got, err := store.Get(ctx, StateNeedsAction, item.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Subject != "Reply to Alice" || !bytes.Equal(got.Body, []byte("Hi Alice\n")) {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.State != StateNeedsAction {
		t.Fatalf("state = %s", got.State)
	}
}

func TestStorePutRejectsConsumerStates(t *testing.T) {
	store := newTestStore(t)
	for _, state := range []State{StateApproved, StateInProgress, StateRejected, StateDone} {
		_, err := store.Put(context.Background(), state, Draft{Source: "cli"})
		if !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("Put into %s: err = %v, want ErrInvalidTransition", state, err)
		}
	}
}

func TestStoreMoveHappyPath(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	item, err := store.Put(ctx, StatePendingApproval, Draft{
		Source: "watcher",
		Action: &Action{Kind: "shell"},
		Body:   []byte("payload\n"),
	})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	if err := store.Move(ctx, item.ID, StatePendingApproval, StateApproved); err != nil {
		t.Fatalf("Move: %v", err)
	}
	if _, err := store.Get(ctx, StatePendingApproval, item.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("item still visible in source state: %v", err)
	}
	got, err := store.Get(ctx, StateApproved, item.ID)
	if err != nil {
		t.Fatalf("Get after move: %v", err)
	}
	// Transitions never rewrite the file.
	if !bytes.Equal(got.Body, []byte("payload\n")) {
		t.Fatalf("body changed across move: %q", got.Body)
	}

	records, err := store.Audit().ForItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("audit replay: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("audit records = %d, want 2 (put + move)", len(records))
	}
	last := records[len(records)-1]
	if last.From != string(StatePendingApproval) || last.To != string(StateApproved) {
		t.Fatalf("audit transition = %s -> %s", last.From, last.To)
	}
}

func TestStoreMoveIllegalEdge(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	item, err := store.Put(ctx, StateInbox, Draft{Source: "cli", Body: []byte("x")})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	err = store.Move(ctx, item.ID, StateInbox, StateApproved)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
	// The item must be untouched in its source state.
	if _, err := store.Get(ctx, StateInbox, item.ID); err != nil {
		t.Fatalf("item disturbed by rejected move: %v", err)
	}
}

func TestStoreMoveMissingItem(t *testing.T) {
	store := newTestStore(t)
	err := store.Move(context.Background(), "GHOST_1", StateInbox, StateNeedsAction)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestStoreMoveRaceSingleWinner(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	item, err := store.Put(ctx, StatePendingApproval, Draft{Source: "cli", Body: []byte("x")})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	const movers = 8
	errs := make([]error, movers)
	var wg sync.WaitGroup
	var start sync.WaitGroup
	start.Add(1)
	for i := 0; i < movers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			start.Wait()
			errs[i] = store.Move(ctx, item.ID, StatePendingApproval, StateApproved)
		}(i)
	}
	start.Done()
	wg.Wait()

	wins := 0
	for i, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrNotFound):
		default:
			t.Fatalf("mover %d: unexpected error %v", i, err)
		}
	}
	if wins != 1 {
		t.Fatalf("winners = %d, want exactly 1", wins)
	}
	if got, err := store.Get(ctx, StateApproved, item.ID); err != nil || got == nil {
		t.Fatalf("item not in destination after race: %v", err)
	}
}

func TestStoreListOrderAndSkipsNonItems(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 23, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		item := &Item{
			ID:        fmt.Sprintf("CLI_%d", 3-i),
			Source:    "cli",
			CreatedAt: base.Add(time.Duration(3-i) * time.Minute),
			Body:      []byte("b"),
		}
		if err := store.PutItem(ctx, StateInbox, item); err != nil {
			t.Fatalf("PutItem: %v", err)
		}
	}
	// Stray files in the state directory are not items.
	stray := filepath.Join(StateInbox.Dir(store.Root()), "notes.txt")
	if err := os.WriteFile(stray, []byte("ignore me"), 0o644); err != nil {
		t.Fatalf("write stray: %v", err)
	}

	items, err := store.List(ctx, StateInbox)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("items = %d, want 3", len(items))
	}
	for i := 1; i < len(items); i++ {
		if items[i].CreatedAt.Before(items[i-1].CreatedAt) {
			t.Fatalf("items out of order: %s before %s", items[i].ID, items[i-1].ID)
		}
	}
}

func TestStoreListSurfacesMalformedItems(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	bad := filepath.Join(StatePendingApproval.Dir(store.Root()), "BROKEN_1.md")
	if err := os.WriteFile(bad, []byte("no frontmatter here\n"), 0o644); err != nil {
		t.Fatalf("write malformed item: %v", err)
	}

	items, err := store.List(ctx, StatePendingApproval)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1", len(items))
	}
	if items[0].ID != "BROKEN_1" || items[0].Invalid == nil {
		t.Fatalf("malformed item not surfaced: %+v", items[0])
	}
	if !errors.Is(items[0].Invalid, ErrMalformedItem) {
		t.Fatalf("Invalid = %v, want ErrMalformedItem", items[0].Invalid)
	}
}

func TestStoreAnnotatePreservesBody(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	body := []byte("line one\nline two\n")
	item, err := store.Put(ctx, StateNeedsAction, Draft{Source: "cli", Body: body})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	if err := store.Annotate(ctx, StateNeedsAction, item.ID, "failure_reason", "timeout"); err != nil {
		t.Fatalf("Annotate: %v", err)
	}
	got, err := store.Get(ctx, StateNeedsAction, item.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Annotations["failure_reason"] != "timeout" {
		t.Fatalf("annotation not set: %+v", got.Annotations)
	}
	if !bytes.Equal(got.Body, body) {
		t.Fatalf("body changed by annotation: %q", got.Body)
	}
}

func TestStoreCounts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := store.Put(ctx, StateInbox, Draft{Source: "cli", Subject: fmt.Sprintf("n%d", i)}); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	counts, err := store.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if counts[StateInbox] != 2 || counts[StateDone] != 0 {
		t.Fatalf("counts = %v", counts)
	}
}

func TestStoreConcurrentProducersAndConsumers(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	const producers = 4
	const perProducer = 5
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				item := &Item{
					ID:     fmt.Sprintf("P%d_%d", p, i),
					Source: "stress",
					Body:   []byte("x"),
				}
				if err := store.PutItem(ctx, StatePendingApproval, item); err != nil {
					t.Errorf("producer %d: %v", p, err)
					return
				}
			}
		}(p)
	}
	wg.Wait()

	items, err := store.List(ctx, StatePendingApproval)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != producers*perProducer {
		t.Fatalf("items = %d, want %d", len(items), producers*perProducer)
	}
	for _, item := range items {
		if err := store.Move(ctx, item.ID, StatePendingApproval, StateApproved); err != nil {
			t.Fatalf("Move %s: %v", item.ID, err)
		}
	}
	counts, err := store.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if counts[StateApproved] != producers*perProducer || counts[StatePendingApproval] != 0 {
		t.Fatalf("counts after drain = %v", counts)
	}
}
