package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"warden/internal/ipc"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect the workflow queue",
	}
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueShowCommand(ctx))
	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var states []string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List items, optionally filtered by state",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.QueueList(states)
				if err != nil {
					return err
				}
				if len(resp.Items) == 0 {
					fmt.Fprintln(stdout, "Queue is empty")
					return nil
				}
				rows := make([][]string, 0, len(resp.Items))
				for _, item := range resp.Items {
					subject := item.Subject
					if item.Malformed {
						subject = "(malformed)"
					}
					rows = append(rows, []string{
						item.ID,
						item.State,
						item.Source,
						item.ActionKind,
						subject,
					})
				}
				fmt.Fprintln(stdout, renderTable(
					[]string{"ID", "State", "Source", "Action", "Subject"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&states, "state", nil, "Only show items in these states")
	return cmd
}

func newQueueShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <item-id>",
		Short: "Show one item with its body and audit history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			id := strings.TrimSpace(args[0])
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.QueueDescribe(id)
				if err != nil {
					return err
				}
				item := resp.Item
				fmt.Fprintf(stdout, "ID:      %s\n", item.ID)
				fmt.Fprintf(stdout, "State:   %s\n", item.State)
				fmt.Fprintf(stdout, "Source:  %s\n", item.Source)
				fmt.Fprintf(stdout, "Subject: %s\n", item.Subject)
				fmt.Fprintf(stdout, "Action:  %s\n", orDash(item.ActionKind))
				fmt.Fprintf(stdout, "Created: %s\n", item.Created.Format("2006-01-02 15:04:05 MST"))
				if len(item.Annotations) > 0 {
					fmt.Fprintln(stdout, "Annotations:")
					for key, value := range item.Annotations {
						fmt.Fprintf(stdout, "  %s: %s\n", key, value)
					}
				}
				if strings.TrimSpace(resp.Body) != "" {
					fmt.Fprintln(stdout, "\nBody:")
					fmt.Fprintln(stdout, strings.TrimRight(resp.Body, "\n"))
				}
				if len(resp.History) > 0 {
					fmt.Fprintln(stdout, "\nHistory:")
					for _, line := range resp.History {
						fmt.Fprintf(stdout, "  %s\n", line)
					}
				}
				return nil
			})
		},
	}
}

func orDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}
