// Package logs provides file tailing helpers for the CLI.
//
// It reads log files with bounded memory usage, supports "tail last N lines"
// operations, and powers follow-mode updates for `warden logs --follow`.
// Callers supply context cancellation so background polling shuts down
// cleanly when the CLI exits.
package logs
