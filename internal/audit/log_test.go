package audit_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"warden/internal/audit"
)

func TestAppendAndReplay(t *testing.T) {
	log, err := audit.Open(filepath.Join(t.TempDir(), "audit.log"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	ctx := context.Background()
	first := audit.Record{
		ItemID:  "EMAIL_20260823T101500Z_reply",
		From:    "needs_action",
		To:      "pending_approval",
		Actor:   "watcher-filesystem",
		Outcome: "ok",
	}
	if err := log.Append(ctx, first); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := log.Append(ctx, audit.Record{
		ItemID:  first.ItemID,
		From:    "approved",
		To:      "done",
		Actor:   "executor",
		Outcome: "success",
		Detail:  "send_email to a@x.com",
	}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	records, err := log.Replay(ctx)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].To != "pending_approval" || records[0].Actor != "watcher-filesystem" {
		t.Fatalf("unexpected first record: %+v", records[0])
	}
	if records[1].Outcome != "success" || records[1].Detail != "send_email to a@x.com" {
		t.Fatalf("unexpected second record: %+v", records[1])
	}
	if records[0].Time.IsZero() || records[0].Time.After(time.Now().Add(time.Minute)) {
		t.Fatalf("timestamp not stamped: %v", records[0].Time)
	}
}

func TestForItemFilters(t *testing.T) {
	log, err := audit.Open(filepath.Join(t.TempDir(), "audit.log"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ctx := context.Background()
	for _, id := range []string{"A", "B", "A"} {
		if err := log.Append(ctx, audit.Record{ItemID: id, From: "inbox", To: "needs_action", Actor: "test"}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	records, err := log.ForItem(ctx, "A")
	if err != nil {
		t.Fatalf("ForItem: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records for item A, got %d", len(records))
	}
}

func TestDetailTabsAreSanitized(t *testing.T) {
	log, err := audit.Open(filepath.Join(t.TempDir(), "audit.log"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ctx := context.Background()
	if err := log.Append(ctx, audit.Record{ItemID: "X", Actor: "test", Detail: "multi\tfield\ndetail"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	records, err := log.Replay(ctx)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].Detail != "multi field detail" {
		t.Fatalf("detail not sanitized: %q", records[0].Detail)
	}
}

func TestConcurrentAppendersDoNotInterleave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	ctx := context.Background()

	const writers = 8
	const perWriter = 20
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			log, err := audit.Open(path)
			if err != nil {
				t.Errorf("Open: %v", err)
				return
			}
			for i := 0; i < perWriter; i++ {
				rec := audit.Record{ItemID: "ITEM", From: "a", To: "b", Actor: "writer", Outcome: "ok"}
				if err := log.Append(ctx, rec); err != nil {
					t.Errorf("Append: %v", err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	log, err := audit.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	records, err := log.Replay(ctx)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(records) != writers*perWriter {
		t.Fatalf("expected %d records, got %d", writers*perWriter, len(records))
	}
}
