package actuator

import (
	"context"
	"log/slog"

	"warden/internal/logging"
	"warden/internal/vault"
)

// NoopActuator accepts every action without side effects. Useful for dry
// runs: the full approve/execute flow runs against it end to end.
type NoopActuator struct {
	logger *slog.Logger
}

func NewNoop(logger *slog.Logger) *NoopActuator {
	return &NoopActuator{logger: logging.NewComponentLogger(logger, "actuator")}
}

func (n *NoopActuator) Kind() string {
	return "noop"
}

func (n *NoopActuator) Execute(ctx context.Context, item *vault.Item) (Outcome, error) {
	n.logger.Info("noop action executed", logging.String(logging.FieldItemID, item.ID))
	return Outcome{Detail: "noop"}, nil
}
