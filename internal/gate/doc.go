// Package gate implements the human approval checkpoint.
//
// Items in pending_approval wait for an explicit human decision; nothing in
// this package (or anywhere else) advances them automatically. The one
// exception is hygiene: the sweep auto-rejects items that are malformed or
// lack an action specification, so the queue never silently blocks on a file
// a human could not meaningfully approve.
package gate
