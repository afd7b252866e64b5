package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/entrhq/scout/pkg/app"
	"github.com/entrhq/scout/pkg/config"
	"github.com/entrhq/scout/pkg/logging"
)

const shutdownTimeout = 10 * time.Second

// flagKeys maps command flags onto configuration keys.
var flagKeys = map[string]string{
	"provider":  "llm.provider",
	"model":     "llm.model",
	"max-steps": "agent.max_steps",
	"browser":   "browser.backend",
	"workdir":   "sandbox.root",
	"addr":      "server.addr",
	"log-level": "logger.level",
}

// rootOptions carries state shared by every command.
type rootOptions struct {
	configPath string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "scout",
		Short:         "Scout answers requests by browsing the web and working with local files.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v, err := config.NewViper(opts.configPath)
			if err != nil {
				logging.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console"})
				return err
			}
			if err := bindFlags(v, cmd.Flags()); err != nil {
				return err
			}
			cfg, err := config.Load(v)
			if err != nil {
				logging.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console"})
				return err
			}
			opts.cfg = cfg

			logging.InitializeLogger(cfg.Logger)
			logging.L().Debug("starting scout", zap.String("version", Version), zap.String("command", cmd.Name()))
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default is ./scout.yaml or ~/.scout/scout.yaml)")
	root.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	root.SetVersionTemplate(`{{printf "scout %s\n" .Version}}`)

	root.AddCommand(
		newServeCmd(opts),
		newRunCmd(opts),
		newConfigCmd(opts),
		newVersionCmd(),
	)
	return root
}

// bindFlags lets flags that were set on the command line override the
// configuration.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		if f := flags.Lookup(name); f != nil && f.Changed {
			if err := v.BindPFlag(key, f); err != nil {
				return err
			}
		}
	}
	return nil
}

// newApp validates the configuration and builds the process resources. A
// missing API key stops the command here.
func newApp(ctx context.Context, opts *rootOptions) (*app.App, error) {
	if err := opts.cfg.Validate(); err != nil {
		return nil, err
	}
	return app.New(ctx, opts.cfg, app.WithVersion(Version))
}

func closeApp(a *app.App) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.Close(ctx); err != nil {
		logging.L().Warn("shutdown incomplete", zap.Error(err))
	}
}
