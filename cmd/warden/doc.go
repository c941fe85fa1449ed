// Command warden is the single binary for the whole system: the daemon, the
// supervised worker processes (via hidden subcommands), and the operator CLI
// that controls them over the daemon's Unix socket.
package main
