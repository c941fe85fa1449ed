package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"warden/internal/gate"
	"warden/internal/logging"
	"warden/internal/notifications"
	"warden/internal/vault"
)

func newAddCommand(ctx *commandContext) *cobra.Command {
	var (
		source  string
		subject string
		action  string
		params  []string
		state   string
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a new item to the vault",
		Long: `Add a new item to the vault. The item body is read from stdin when
input is piped; otherwise the body is empty.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()

			target, ok := vault.ParseState(state)
			if !ok {
				return fmt.Errorf("unknown state %q", state)
			}

			draft := vault.Draft{
				Source:  source,
				Subject: subject,
			}
			if strings.TrimSpace(action) != "" {
				parsed, err := parseParams(params)
				if err != nil {
					return err
				}
				draft.Action = &vault.Action{Kind: strings.TrimSpace(action), Params: parsed}
			} else if len(params) > 0 {
				return fmt.Errorf("--param requires --action")
			}

			if !isatty.IsTerminal(os.Stdin.Fd()) {
				body, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read body from stdin: %w", err)
				}
				draft.Body = body
			}

			store, err := ctx.openStore("cli")
			if err != nil {
				return err
			}
			item, err := store.Put(cmd.Context(), target, draft)
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "Added %s to %s\n", item.ID, target)
			return nil
		},
	}
	cmd.Flags().StringVar(&source, "source", "cli", "Source recorded on the item")
	cmd.Flags().StringVar(&subject, "subject", "", "Short human-readable subject")
	cmd.Flags().StringVar(&action, "action", "", "Action kind the item requests")
	cmd.Flags().StringArrayVar(&params, "param", nil, "Action parameter as key=value (repeatable)")
	cmd.Flags().StringVar(&state, "state", string(vault.StateNeedsAction), "Target state (inbox, needs_action, pending_approval)")
	return cmd
}

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "submit <item-id>",
		Short: "Submit an item from needs_action for approval",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			g, err := humanGate(ctx)
			if err != nil {
				return err
			}
			id := strings.TrimSpace(args[0])
			if err := g.Submit(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(stdout, "Submitted %s for approval\n", id)
			return nil
		},
	}
}

func newApproveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "approve <item-id>",
		Short: "Approve a pending item for execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			g, err := humanGate(ctx)
			if err != nil {
				return err
			}
			id := strings.TrimSpace(args[0])
			if err := g.Approve(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(stdout, "Approved %s\n", id)
			return nil
		},
	}
}

func newRejectCommand(ctx *commandContext) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "reject <item-id>",
		Short: "Reject a pending item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			g, err := humanGate(ctx)
			if err != nil {
				return err
			}
			id := strings.TrimSpace(args[0])
			if err := g.Reject(cmd.Context(), id, reason); err != nil {
				return err
			}
			fmt.Fprintf(stdout, "Rejected %s\n", id)
			return nil
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "Reason recorded on the rejected item")
	return cmd
}

// humanGate builds a gate over a direct vault handle so approval decisions
// work even when the daemon is down. Transitions are attributed to "human".
func humanGate(ctx *commandContext) (*gate.Gate, error) {
	store, err := ctx.openStore("human")
	if err != nil {
		return nil, err
	}
	cfg := ctx.configValue()
	notifier := notifications.NewNop()
	if cfg != nil {
		notifier = notifications.NewService(cfg)
	}
	return gate.New(store, notifier, logging.NewNop()), nil
}

func parseParams(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	params := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --param %q: expected key=value", pair)
		}
		params[key] = value
	}
	return params, nil
}
