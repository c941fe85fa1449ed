// Package executor drains the approved queue.
//
// Each run claims an item by renaming it into the in_progress sub-state with
// a fresh execution token in the audit trail, performs the side effect
// through an actuator, and settles the item into done or rejected. The claim
// rename is the mutual exclusion: losing the rename race means another
// executor owns the item. Items found in in_progress at startup were
// mid-execution during a crash; their outcome is unknown, so they are
// surfaced for human review and never re-executed automatically.
package executor
