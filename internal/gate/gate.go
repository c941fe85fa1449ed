package gate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"warden/internal/logging"
	"warden/internal/notifications"
	"warden/internal/vault"
)

// RejectionMalformed is the audit detail recorded when the sweep rejects an
// item that cannot be parsed or carries no action.
const RejectionMalformed = "malformed_request"

// Gate mediates pending_approval. The store's actor determines attribution:
// the daemon runs the sweep with a "gate" store, the CLI approves and rejects
// with a "human" store.
type Gate struct {
	store    *vault.Store
	notifier notifications.Service
	logger   *slog.Logger

	mu       sync.Mutex
	notified map[string]struct{}
}

// New builds a gate over the store.
func New(store *vault.Store, notifier notifications.Service, logger *slog.Logger) *Gate {
	if notifier == nil {
		notifier = notifications.NewNop()
	}
	return &Gate{
		store:    store,
		notifier: notifier,
		logger:   logging.NewComponentLogger(logger, "gate"),
		notified: make(map[string]struct{}),
	}
}

// Submit moves a prepared item into pending_approval.
func (g *Gate) Submit(ctx context.Context, id string) error {
	item, err := g.store.Get(ctx, vault.StateNeedsAction, id)
	if err != nil {
		return err
	}
	if err := item.ValidateAction(); err != nil {
		return fmt.Errorf("cannot submit %s: %w", id, err)
	}
	return g.store.Move(ctx, id, vault.StateNeedsAction, vault.StatePendingApproval)
}

// Approve records a human approval, releasing the item to the executor.
// Malformed items cannot be approved; reject them or fix the file first.
func (g *Gate) Approve(ctx context.Context, id string) error {
	item, err := g.store.Get(ctx, vault.StatePendingApproval, id)
	if err != nil {
		return err
	}
	if err := item.ValidateAction(); err != nil {
		return fmt.Errorf("cannot approve %s: %w", id, err)
	}
	if err := g.store.MoveWithReason(ctx, id, vault.StatePendingApproval, vault.StateApproved, "approved", ""); err != nil {
		return err
	}
	g.logger.Info("item approved", logging.String(logging.FieldItemID, id))
	return nil
}

// Reject records a human rejection with an optional reason.
func (g *Gate) Reject(ctx context.Context, id, reason string) error {
	reason = strings.TrimSpace(reason)
	if err := g.store.MoveWithReason(ctx, id, vault.StatePendingApproval, vault.StateRejected, "rejected", reason); err != nil {
		return err
	}
	if reason != "" {
		// Annotation is best effort; the audit log already holds the reason,
		// and a malformed file cannot be rewritten.
		if err := g.store.Annotate(ctx, vault.StateRejected, id, "failure_reason", reason); err != nil {
			g.logger.Warn("could not annotate rejection",
				logging.String(logging.FieldItemID, id),
				logging.Error(err))
		}
	}
	g.logger.Info("item rejected",
		logging.String(logging.FieldItemID, id),
		logging.String("reason", reason))
	return nil
}

// Sweep scans pending_approval once: malformed items are auto-rejected, and a
// notification goes out the first time each well-formed item is seen. Returns
// the number of items still awaiting a decision.
func (g *Gate) Sweep(ctx context.Context) (int, error) {
	items, err := g.store.List(ctx, vault.StatePendingApproval)
	if err != nil {
		return 0, err
	}

	waiting := 0
	for _, item := range items {
		if item.Invalid != nil || item.ValidateAction() != nil {
			g.rejectMalformed(ctx, item)
			continue
		}
		waiting++
		g.notifyOnce(ctx, item)
	}
	return waiting, nil
}

func (g *Gate) rejectMalformed(ctx context.Context, item *vault.Item) {
	err := g.store.MoveWithReason(ctx, item.ID,
		vault.StatePendingApproval, vault.StateRejected, "rejected", RejectionMalformed)
	if err != nil {
		g.logger.Error("could not reject malformed item",
			logging.String(logging.FieldItemID, item.ID),
			logging.Error(err))
		return
	}
	g.logger.Warn("auto-rejected malformed item",
		logging.String(logging.FieldItemID, item.ID),
		logging.String("reason", RejectionMalformed))
	if err := g.notifier.Publish(ctx, notifications.EventItemRejected, notifications.Payload{
		"item":   item.ID,
		"reason": RejectionMalformed,
	}); err != nil {
		g.logger.Warn("rejection notification failed", logging.Error(err))
	}
}

func (g *Gate) notifyOnce(ctx context.Context, item *vault.Item) {
	g.mu.Lock()
	_, seen := g.notified[item.ID]
	if !seen {
		g.notified[item.ID] = struct{}{}
	}
	g.mu.Unlock()
	if seen {
		return
	}

	g.logger.Info("item awaiting approval",
		logging.String(logging.FieldItemID, item.ID),
		logging.String("subject", item.Subject))
	if err := g.notifier.Publish(ctx, notifications.EventApprovalPending, notifications.Payload{
		"item":    item.ID,
		"subject": item.Subject,
	}); err != nil {
		g.logger.Warn("approval notification failed",
			logging.String(logging.FieldItemID, item.ID),
			logging.Error(err))
	}
}
