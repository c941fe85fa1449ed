package main

import (
	"github.com/spf13/cobra"

	"warden/internal/daemonrun"
)

// The worker subcommands are hidden: the supervisor launches them by
// re-executing this binary, operators never run them by hand.

func newRunWatcherCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:    "run-watcher",
		Short:  "Run the filesystem watcher process",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.RunWatcher(cmd.Context(), cfg, daemonrun.Options{})
		},
	}
}

func newRunExecutorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:    "run-executor",
		Short:  "Run the executor process",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.RunExecutor(cmd.Context(), cfg, daemonrun.Options{})
		},
	}
}
