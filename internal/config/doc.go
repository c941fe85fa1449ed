// Package config loads, normalizes, and validates warden configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// WARDEN_NTFY_TOPIC. The Config type centralizes every knob the daemon, the
// watchers, and the executor need: the vault location, poll intervals,
// supervisor backoff tuning, and the action-kind command table.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
