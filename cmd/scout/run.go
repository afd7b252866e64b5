package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/entrhq/scout/pkg/executor/cli"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [prompt]",
		Short: "Run a request in the terminal, or start an interactive prompt",
		Example: `  scout run "What is the title of example.com?"
  scout run --workdir ./notes "Summarize todo.md"
  scout run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer closeApp(a)

			executor := cli.NewExecutor(a.Sessions, a.Bridge,
				cli.WithWriter(cmd.OutOrStdout()),
				cli.WithReader(cmd.InOrStdin()))

			prompt := strings.TrimSpace(strings.Join(args, " "))
			if prompt == "" {
				return executor.Interactive(ctx)
			}
			_, err = executor.Run(ctx, prompt)
			return err
		},
	}
	addAgentFlags(cmd)
	return cmd
}
