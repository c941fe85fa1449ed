package actuator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"warden/internal/vault"
)

// ErrUnknownKind marks an action kind with no registered actuator.
var ErrUnknownKind = errors.New("unknown action kind")

// Outcome summarizes a completed side effect for the audit trail.
type Outcome struct {
	Detail string
}

// Actuator performs one kind of side effect.
type Actuator interface {
	Kind() string
	Execute(ctx context.Context, item *vault.Item) (Outcome, error)
}

// Registry resolves action kinds to actuators. Built once at startup;
// read-only afterwards.
type Registry struct {
	byKind map[string]Actuator
}

// NewRegistry builds a registry from the given actuators. Duplicate kinds are
// a configuration error.
func NewRegistry(actuators ...Actuator) (*Registry, error) {
	byKind := make(map[string]Actuator, len(actuators))
	for _, act := range actuators {
		kind := strings.ToLower(strings.TrimSpace(act.Kind()))
		if kind == "" {
			return nil, errors.New("actuator with empty kind")
		}
		if _, dup := byKind[kind]; dup {
			return nil, fmt.Errorf("duplicate actuator for kind %q", kind)
		}
		byKind[kind] = act
	}
	return &Registry{byKind: byKind}, nil
}

// Lookup returns the actuator for a kind.
func (r *Registry) Lookup(kind string) (Actuator, error) {
	act, ok := r.byKind[strings.ToLower(strings.TrimSpace(kind))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return act, nil
}

// Kinds returns the registered kinds, sorted.
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.byKind))
	for kind := range r.byKind {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}
