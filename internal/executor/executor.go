package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"warden/internal/actuator"
	"warden/internal/logging"
	"warden/internal/notifications"
	"warden/internal/vault"
)

// Actor is the audit attribution for executor transitions.
const Actor = "executor"

// Executor polls approved items and runs them through the actuator registry.
type Executor struct {
	store    *vault.Store
	registry *actuator.Registry
	notifier notifications.Service
	logger   *slog.Logger

	pollInterval time.Duration
}

// New builds an executor. The store must be opened with the executor actor.
func New(store *vault.Store, registry *actuator.Registry, notifier notifications.Service, logger *slog.Logger, pollInterval time.Duration) *Executor {
	if notifier == nil {
		notifier = notifications.NewNop()
	}
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &Executor{
		store:        store,
		registry:     registry,
		notifier:     notifier,
		logger:       logging.NewComponentLogger(logger, "executor"),
		pollInterval: pollInterval,
	}
}

// Run recovers crashed executions, then polls until the context is canceled.
func (e *Executor) Run(ctx context.Context) error {
	if err := e.RecoverUnknown(ctx); err != nil {
		return fmt.Errorf("recover unknown outcomes: %w", err)
	}

	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for {
		if err := e.ProcessOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			e.logger.Error("processing pass failed", logging.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RecoverUnknown surfaces items stranded in in_progress by a crash. The side
// effect may or may not have happened, so the item stays put: a human must
// verify the effect, then re-queue (move back to approved), complete (done),
// or reject it.
func (e *Executor) RecoverUnknown(ctx context.Context) error {
	stranded, err := e.store.List(ctx, vault.StateInProgress)
	if err != nil {
		return err
	}
	for _, item := range stranded {
		e.logger.Error("item has unknown execution outcome",
			logging.String(logging.FieldItemID, item.ID),
			logging.String(logging.FieldEventType, "unknown_outcome"),
			logging.String(logging.FieldErrorHint, "verify the side effect, then re-queue or reject"))
		if err := e.notifier.Publish(ctx, notifications.EventUnknownOutcome, notifications.Payload{
			"item": item.ID,
		}); err != nil {
			e.logger.Warn("unknown-outcome notification failed", logging.Error(err))
		}
	}
	return nil
}

// ProcessOnce drains the approved queue one pass: oldest first, one claim and
// one execution per item.
func (e *Executor) ProcessOnce(ctx context.Context) error {
	items, err := e.store.List(ctx, vault.StateApproved)
	if err != nil {
		return err
	}
	for _, item := range items {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := e.execute(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

// execute claims and settles one item. Actuator failure is not an error of
// the pass; it settles the item into rejected.
func (e *Executor) execute(ctx context.Context, item *vault.Item) error {
	token := uuid.NewString()
	err := e.store.MoveWithReason(ctx, item.ID, vault.StateApproved, vault.StateInProgress, "claimed", token)
	if errors.Is(err, vault.ErrNotFound) {
		// Another executor won the claim.
		return nil
	}
	if err != nil {
		return fmt.Errorf("claim %s: %w", item.ID, err)
	}

	log := e.logger.With(logging.String(logging.FieldItemID, item.ID))

	if item.Invalid != nil {
		log.Warn("claimed item is malformed", logging.Error(item.Invalid))
		return e.settleFailure(ctx, item, token, item.Invalid)
	}
	if err := item.ValidateAction(); err != nil {
		log.Warn("claimed item has no usable action", logging.Error(err))
		return e.settleFailure(ctx, item, token, err)
	}

	act, err := e.registry.Lookup(item.Action.Kind)
	if err != nil {
		log.Warn("no actuator for action", logging.String(logging.FieldActionKind, item.Action.Kind))
		return e.settleFailure(ctx, item, token, err)
	}

	log.Info("executing action",
		logging.String(logging.FieldActionKind, item.Action.Kind),
		logging.String("token", token))

	outcome, execErr := act.Execute(ctx, item)
	if execErr != nil {
		log.Error("action failed", logging.Error(execErr))
		return e.settleFailure(ctx, item, token, execErr)
	}

	if err := e.store.MoveWithReason(ctx, item.ID, vault.StateInProgress, vault.StateDone, "success", joinDetail(token, outcome.Detail)); err != nil {
		return fmt.Errorf("settle %s into done: %w", item.ID, err)
	}
	log.Info("action completed", logging.String(logging.FieldActionKind, item.Action.Kind))
	return nil
}

func (e *Executor) settleFailure(ctx context.Context, item *vault.Item, token string, cause error) error {
	reason := cause.Error()
	if err := e.store.MoveWithReason(ctx, item.ID, vault.StateInProgress, vault.StateRejected, "failed", joinDetail(token, reason)); err != nil {
		return fmt.Errorf("settle %s into rejected: %w", item.ID, err)
	}
	if item.Invalid == nil {
		if err := e.store.Annotate(ctx, vault.StateRejected, item.ID, "failure_reason", reason); err != nil {
			e.logger.Warn("could not annotate failure",
				logging.String(logging.FieldItemID, item.ID),
				logging.Error(err))
		}
	}
	if err := e.notifier.Publish(ctx, notifications.EventExecutionFailed, notifications.Payload{
		"item":  item.ID,
		"error": reason,
	}); err != nil {
		e.logger.Warn("failure notification failed", logging.Error(err))
	}
	return nil
}

func joinDetail(token, detail string) string {
	if detail == "" {
		return token
	}
	return token + " " + detail
}
