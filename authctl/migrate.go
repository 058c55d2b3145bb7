package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/rjw57/componentsdb/migrations"
)

func newMigrateCommand(opts *globalOptions) *cobra.Command {
	var forceVersion int

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Long: `Apply pending schema migrations to the configured database.

Examples:
  # Bring the schema up to date
  authctl migrate

  # Recover from a dirty migration state by forcing the recorded version
  authctl migrate --force-migration 1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			conn, err := connect(cfg)
			if err != nil {
				return err
			}
			defer conn.Close()

			logger := slog.Default().With("component", "migrate")
			if forceVersion >= 0 {
				logger.Info("force setting migration version", "version", forceVersion)
				if err := conn.ForceMigrationVersion(migrations.FS, forceVersion); err != nil {
					return fmt.Errorf("failed to force migration version: %w", err)
				}
			} else if err := conn.RunMigrations(migrations.FS); err != nil {
				return err
			}

			version, dirty, err := conn.MigrationVersion(migrations.FS)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty: %v)\n", version, dirty)
			return nil
		},
	}

	cmd.Flags().IntVar(&forceVersion, "force-migration", -1, "Force migration version (use to fix dirty migration state)")
	return cmd
}
