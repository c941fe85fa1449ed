// Package vault implements the file-system-backed workflow store. Each
// lifecycle state is a directory below the vault root and a state transition
// is an atomic rename of the item file between state directories. Multiple
// producer processes put items concurrently; the approval gate and the single
// executor move them; a human approves or rejects by relocating files. The
// directory tree plus the audit log is the entire persisted state.
package vault
