package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/entrhq/scout/pkg/logging"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP and websocket API used by the UI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer closeApp(a)

			logging.L().Info("scout ready",
				zap.String("addr", opts.cfg.Server.Addr),
				zap.String("version", Version))
			return a.Server().Start(ctx)
		},
	}
	addAgentFlags(cmd)
	cmd.Flags().String("addr", "", "listen address (default 127.0.0.1:7420)")
	return cmd
}

func addAgentFlags(cmd *cobra.Command) {
	cmd.Flags().String("provider", "", "model provider (openai or gemini)")
	cmd.Flags().String("model", "", "model name")
	cmd.Flags().Int("max-steps", 0, "maximum agent steps per request")
	cmd.Flags().String("browser", "", "browser backend (playwright, chromedp or http)")
	cmd.Flags().String("workdir", "", "working directory for file tools")
}
