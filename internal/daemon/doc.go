// Package daemon coordinates the long-running warden services: the process
// supervisor, the approval-gate sweep, and the vault store backing both. It
// enforces single-instance execution with a file lock and aggregates status
// for IPC clients.
package daemon
