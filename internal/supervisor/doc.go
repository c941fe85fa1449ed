// Package supervisor keeps the managed processes alive.
//
// Each process gets its own supervision loop: launch, watch, and on death
// restart with exponential backoff. The backoff doubles from the configured
// base up to the cap and resets after the process stays healthy across a few
// consecutive health checks. The supervisor never gives up on a process and
// never exits because a child keeps dying; shutting down is always an
// explicit request, delivered as SIGTERM to the whole process group with a
// SIGKILL escalation after the stop grace period.
package supervisor
