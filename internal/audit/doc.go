// Package audit maintains the append-only audit log that records every item
// transition, action outcome, and supervisor process event. The log is the
// source of truth for what happened, independent of the current directory
// layout; records are never mutated or deleted.
package audit
