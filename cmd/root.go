// Package cmd contains the commands of the prestige binary.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"prestige_server/config"
	"prestige_server/logging"
)

// RootOptions holds global flags and the configuration loaded from them.
type RootOptions struct {
	ConfigPath string
	Config     *config.Config
}

// NewRootCommand reads configuration from --config (or $CONFIG_PATH) and
// PRESTIGE_* environment variables before any subcommand runs.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "prestige",
		Short:         "Prestige matching core",
		Long:          "Records swipe preferences and periodically pairs profiles into stable matches.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.ConfigPath)
			if err != nil {
				return err
			}
			opts.Config = cfg
			logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to a YAML config file")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewMatchCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))

	return cmd
}

// Execute runs the root command until it finishes or the process is signalled.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		logging.Error().Err(err).Msg("❌ Command failed")
		stop()
		os.Exit(1)
	}
}
