// Package watcher turns external signals into vault items.
//
// A Watcher polls one input source; the Runner drives it on an interval and
// keeps going through transient failures. The filesystem watcher ships with
// the daemon: it picks up files dropped into a directory, stores the payload
// as a vault attachment, and files an approval request for each. Watchers are
// producers only; they never touch items past the states they create them in.
package watcher
