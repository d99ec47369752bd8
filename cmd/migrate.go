package cmd

import (
	"github.com/spf13/cobra"

	"prestige_server/config"
	"prestige_server/logging"
	"prestige_server/services"
)

func NewMigrateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the SQL schema migrations",
		Long:  "Applies the embedded schema migrations to the configured sqlite or postgres database. DynamoDB tables are provisioned outside the binary.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := opts.Config
			if cfg.Store.Backend == config.BackendDynamo {
				logging.Info().Msg("no migrations to run for the dynamodb backend")
				return nil
			}

			store, err := services.OpenSQLStore(cfg.Store.Backend, cfg.Store.DSN)
			if err != nil {
				return err
			}
			defer store.Close()

			return store.Migrate(cmd.Context())
		},
	}
}
