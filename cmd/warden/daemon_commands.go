package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"warden/internal/daemonrun"
	"warden/internal/ipc"
	"warden/internal/vault"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var logLevel string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the warden daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:   logLevel,
				ConfigPath: ctx.configPath,
			})
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override the configured log level")
	return cmd
}

func newStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the warden daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Shutdown()
				if err != nil {
					return err
				}
				if resp.Stopping {
					fmt.Fprintln(stdout, "Shutdown requested, daemon is stopping")
				} else {
					fmt.Fprintln(stdout, "Shutdown request sent")
				}
				return nil
			})
		},
	}
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon, process, and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			return ctx.withClient(func(client *ipc.Client) error {
				status, err := client.Status()
				if err != nil {
					return err
				}

				fmt.Fprintf(stdout, "Daemon: running=%s pid=%d\n", yesNo(status.Running), status.PID)
				fmt.Fprintf(stdout, "Vault:  %s\n\n", status.VaultDir)

				rows := make([][]string, 0, len(status.Processes))
				for _, proc := range status.Processes {
					rows = append(rows, []string{
						proc.Name,
						proc.State,
						pidString(proc.PID),
						fmt.Sprintf("%d", proc.Restarts),
						since(proc.Since),
						proc.LastError,
					})
				}
				fmt.Fprintln(stdout, renderTable(
					[]string{"Process", "State", "PID", "Restarts", "Since", "Last Error"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft},
				))
				fmt.Fprintln(stdout)

				states := make([]string, 0, len(status.Counts))
				for state := range status.Counts {
					states = append(states, state)
				}
				sort.Slice(states, func(a, b int) bool {
					return stateRank(states[a]) < stateRank(states[b])
				})
				countRows := make([][]string, 0, len(states))
				for _, state := range states {
					countRows = append(countRows, []string{state, fmt.Sprintf("%d", status.Counts[state])})
				}
				fmt.Fprintln(stdout, renderTable(
					[]string{"State", "Items"},
					countRows,
					[]columnAlignment{alignLeft, alignRight},
				))
				return nil
			})
		},
	}
}

func stateRank(name string) int {
	for i, state := range vault.AllStates() {
		if string(state) == name {
			return i
		}
	}
	return len(vault.AllStates())
}

func pidString(pid int) string {
	if pid <= 0 {
		return "-"
	}
	return fmt.Sprintf("%d", pid)
}

func since(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return time.Since(t).Round(time.Second).String()
}
