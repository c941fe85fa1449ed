package actuator

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"warden/internal/logging"
	"warden/internal/vault"
)

// outputLimit caps captured command output kept for the audit detail.
const outputLimit = 8 * 1024

// ExecActuator runs a configured command. The item body streams to stdin,
// action parameters arrive as WARDEN_PARAM_* environment variables, and the
// command's exit status decides success.
type ExecActuator struct {
	kind   string
	argv   []string
	logger *slog.Logger
}

// NewExec builds an exec actuator for one action kind.
func NewExec(kind string, argv []string, logger *slog.Logger) (*ExecActuator, error) {
	kind = strings.ToLower(strings.TrimSpace(kind))
	if kind == "" {
		return nil, fmt.Errorf("exec actuator: kind must be set")
	}
	if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
		return nil, fmt.Errorf("exec actuator %q: command must not be empty", kind)
	}
	return &ExecActuator{
		kind:   kind,
		argv:   argv,
		logger: logging.NewComponentLogger(logger, "actuator"),
	}, nil
}

func (e *ExecActuator) Kind() string {
	return e.kind
}

// Execute runs the command once. It never retries; the human re-approves if
// a retry is wanted.
func (e *ExecActuator) Execute(ctx context.Context, item *vault.Item) (Outcome, error) {
	cmd := exec.CommandContext(ctx, e.argv[0], e.argv[1:]...)
	cmd.Stdin = bytes.NewReader(item.Body)
	cmd.Env = commandEnv(item)

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	e.logger.Info("running action command",
		logging.String(logging.FieldItemID, item.ID),
		logging.String(logging.FieldActionKind, e.kind),
		logging.String("command", e.argv[0]))

	err := cmd.Run()
	detail := truncateOutput(output.Bytes())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Outcome{Detail: detail}, fmt.Errorf("action %s interrupted: %w", e.kind, ctxErr)
		}
		return Outcome{Detail: detail}, fmt.Errorf("action %s: %w", e.kind, err)
	}
	return Outcome{Detail: detail}, nil
}

func commandEnv(item *vault.Item) []string {
	env := os.Environ()
	env = append(env,
		"WARDEN_ITEM_ID="+item.ID,
		"WARDEN_ITEM_SOURCE="+item.Source,
		"WARDEN_ITEM_SUBJECT="+item.Subject,
	)
	if item.Action != nil {
		env = append(env, "WARDEN_ACTION_KIND="+item.Action.Kind)
		for key, value := range item.Action.Params {
			env = append(env, "WARDEN_PARAM_"+envKey(key)+"="+value)
		}
	}
	return env
}

func envKey(key string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z' || r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, key)
}

func truncateOutput(out []byte) string {
	trimmed := strings.TrimSpace(string(out))
	if len(trimmed) > outputLimit {
		trimmed = trimmed[:outputLimit] + "... (truncated)"
	}
	return trimmed
}
