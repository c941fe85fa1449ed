package vault

import "errors"

var (
	// ErrInvalidTransition marks a move along an edge outside the state graph.
	// The item is left unchanged in its source state.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrMalformedItem marks an item file whose frontmatter is missing or
	// unparsable, or that lacks required fields.
	ErrMalformedItem = errors.New("malformed item")
	// ErrNotFound marks an item absent from the expected state. Racing
	// consumers treat this as "already handled".
	ErrNotFound = errors.New("item not found")
)
