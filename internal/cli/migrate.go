package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (a *app) migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Schema migration commands",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withBackend(cmd.Context(), func(b Backend) error {
				if err := b.MigrateUp(cmd.Context()); err != nil {
					return ErrDatabase(err, "migrate up")
				}
				return a.printVersion(cmd, b)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withBackend(cmd.Context(), func(b Backend) error {
				if err := b.MigrateDown(cmd.Context()); err != nil {
					return ErrDatabase(err, "migrate down")
				}
				return a.printVersion(cmd, b)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withBackend(cmd.Context(), func(b Backend) error {
				return a.printVersion(cmd, b)
			})
		},
	})
	return cmd
}

func (a *app) printVersion(cmd *cobra.Command, b Backend) error {
	version, err := b.MigrationVersion(cmd.Context())
	if err != nil {
		return ErrDatabase(err, "read schema version")
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema version: %d\n", version)
	return nil
}
