package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/inferd/internal/config"
	"github.com/fyrsmithlabs/inferd/internal/storage"
)

func newMigrateCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply storage migrations and print the schema version",
		Long: `Open the SQLite store, apply any pending migrations and print the
resulting schema version. Migrations also run on every daemon start.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if path == "" {
				cfg, err := loadConfig(false)
				if err != nil {
					return err
				}
				if cfg.Storage.Driver != config.DriverSQLite {
					return fmt.Errorf("storage driver %q has no schema", cfg.Storage.Driver)
				}
				path = cfg.Storage.Path
			}
			expanded, err := config.ExpandPath(path)
			if err != nil {
				return err
			}

			store, err := storage.Open(cmd.Context(), expanded)
			if err != nil {
				return err
			}
			defer store.Close()

			v, err := store.SchemaVersion(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: schema version %d\n", expanded, v)
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "db", "", "database path (default storage.path from config)")
	return cmd
}
