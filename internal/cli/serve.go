package cli

import (
	"github.com/smallbiznis/waiter/internal/app"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var migrateFirst bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the notification ingest, stream consumer and master relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			app.RunServer(migrateFirst)
			return nil
		},
	}

	cmd.Flags().BoolVar(&migrateFirst, "migrate", true, "Run database migrations and catalog seeding before starting")

	return cmd
}
