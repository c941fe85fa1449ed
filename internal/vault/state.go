package vault

import (
	"path/filepath"
	"strings"
)

// State represents one stage of an item's lifecycle. Physically a directory
// below the vault root.
type State string

const (
	StateInbox           State = "inbox"
	StateNeedsAction     State = "needs_action"
	StatePendingApproval State = "pending_approval"
	StateApproved        State = "approved"
	StateInProgress      State = "in_progress"
	StateRejected        State = "rejected"
	StateDone            State = "done"
)

var allStates = []State{
	StateInbox,
	StateNeedsAction,
	StatePendingApproval,
	StateApproved,
	StateInProgress,
	StateRejected,
	StateDone,
}

// legalTransitions is the directed graph of allowed moves. Anything absent is
// an InvalidTransition; handlers never "fix" an item found in an unexpected
// state.
var legalTransitions = map[State][]State{
	StateInbox:           {StateNeedsAction},
	StateNeedsAction:     {StatePendingApproval, StateDone},
	StatePendingApproval: {StateApproved, StateRejected},
	StateApproved:        {StateInProgress, StateDone},
	// in_progress -> approved is the human re-queue of an unknown-outcome item.
	StateInProgress: {StateDone, StateRejected, StateApproved},
}

// AllStates returns the ordered list of known states.
func AllStates() []State {
	cp := make([]State, len(allStates))
	copy(cp, allStates)
	return cp
}

// ParseState converts a string into a known State.
func ParseState(value string) (State, bool) {
	normalized := State(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	for _, state := range allStates {
		if state == normalized {
			return state, true
		}
	}
	return "", false
}

// CanTransition reports whether moving from -> to is a legal edge.
func CanTransition(from, to State) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no automated edge leaves the state. Rejected
// items can only be re-queued by a human outside the store API.
func (s State) IsTerminal() bool {
	return len(legalTransitions[s]) == 0
}

// Dir returns the state's directory below the vault root. The in_progress
// sub-state nests under approved so the executor's claim stays visible to an
// operator browsing the tree.
func (s State) Dir(root string) string {
	if s == StateInProgress {
		return filepath.Join(root, string(StateApproved), string(StateInProgress))
	}
	return filepath.Join(root, string(s))
}
