package watcher

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"warden/internal/logging"
)

// Watcher polls one input source for new work.
type Watcher interface {
	Name() string
	Poll(ctx context.Context) error
}

// Runner drives a watcher on a fixed interval. A failed poll is logged and
// retried on the error interval; the runner only stops with its context.
type Runner struct {
	watcher       Watcher
	logger        *slog.Logger
	pollInterval  time.Duration
	errorInterval time.Duration
}

// NewRunner wraps a watcher in a poll loop.
func NewRunner(w Watcher, logger *slog.Logger, pollInterval, errorInterval time.Duration) *Runner {
	if pollInterval <= 0 {
		pollInterval = 10 * time.Second
	}
	if errorInterval <= 0 {
		errorInterval = pollInterval
	}
	return &Runner{
		watcher:       w,
		logger:        logging.NewComponentLogger(logger, "watcher-"+w.Name()),
		pollInterval:  pollInterval,
		errorInterval: errorInterval,
	}
}

// Run polls until the context is canceled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("watcher started", logging.Duration("poll_interval", r.pollInterval))
	for {
		interval := r.pollInterval
		if err := r.watcher.Poll(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			r.logger.Error("poll failed", logging.Error(err))
			interval = r.errorInterval
		}
		select {
		case <-ctx.Done():
			r.logger.Info("watcher stopping")
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}
