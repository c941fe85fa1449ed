// Package ipc provides JSON-RPC control of the warden daemon over a Unix
// domain socket. The CLI is the only intended client; the types here are the
// wire contract between the two halves of the same binary.
package ipc
