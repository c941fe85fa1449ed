// Package actuator executes approved actions against the outside world.
//
// Each action kind maps to one Actuator. The exec actuator runs an operator
// configured command with the item body on stdin and parameters in the
// environment; noop exists for dry runs and tests. Actuators perform the side
// effect exactly as requested and report the outcome; retries, claims, and
// state transitions belong to the executor.
package actuator
