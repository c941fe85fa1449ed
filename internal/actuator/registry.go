package actuator

import (
	"log/slog"

	"warden/internal/config"
)

// FromConfig builds the registry the daemon runs with: the noop actuator plus
// one exec actuator per configured action kind.
func FromConfig(cfg *config.Config, logger *slog.Logger) (*Registry, error) {
	actuators := []Actuator{NewNoop(logger)}
	for kind, argv := range cfg.Actions {
		act, err := NewExec(kind, argv, logger)
		if err != nil {
			return nil, err
		}
		actuators = append(actuators, act)
	}
	return NewRegistry(actuators...)
}
