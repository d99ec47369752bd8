package cmd

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"
)

// NewMatchCommand runs a single matching run and prints its summary, for cron-style deployments.
func NewMatchCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "match",
		Short: "Execute one matching run and publish the result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			shutdownTracer, err := initTracer(ctx, opts.Config.Telemetry)
			if err != nil {
				return err
			}
			defer func() { _ = shutdownTracer(context.WithoutCancel(ctx)) }()

			a, err := newApp(ctx, opts.Config)
			if err != nil {
				return err
			}
			defer a.Close()

			run, runErr := a.runner.Run(ctx)
			if run != nil {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(run); err != nil {
					return err
				}
			}
			return runErr
		},
	}
}
