// Package logging constructs slog loggers with warden's console and JSON
// handlers and provides the standardized attribute helpers used across the
// daemon, supervisor, watchers, and executor.
package logging
