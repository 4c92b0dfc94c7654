package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/codequest-jr/progression-hub/internal/infrastructure/persistence/postgres"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		conn, err := connect(ctx, cmd)
		if err != nil {
			return err
		}
		defer conn.Close()

		applied, err := postgres.NewMigrator(conn).Migrate(ctx)
		if err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		if applied == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date.")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s).\n", applied)
		return nil
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Revert the most recent migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		conn, err := connect(ctx, cmd)
		if err != nil {
			return err
		}
		defer conn.Close()

		version, err := postgres.NewMigrator(conn).Rollback(ctx)
		if err != nil {
			return fmt.Errorf("rollback: %w", err)
		}
		if version == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "Nothing to roll back.")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Rolled back migration %d.\n", version)
		return nil
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "List migrations and whether they are applied",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		conn, err := connect(ctx, cmd)
		if err != nil {
			return err
		}
		defer conn.Close()

		migrations, err := postgres.NewMigrator(conn).Status(ctx)
		if err != nil {
			return fmt.Errorf("status: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%-8s  %-32s  %s\n", "Version", "Name", "Applied")
		fmt.Fprintln(out, strings.Repeat("─", 70))
		for _, m := range migrations {
			applied := "pending"
			if m.IsApplied {
				applied = m.AppliedAt.Local().Format("2006-01-02 15:04:05")
			}
			fmt.Fprintf(out, "%-8d  %-32s  %s\n", m.Version, m.Name, applied)
		}
		return nil
	},
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
	migrateCmd.AddCommand(migrateStatusCmd)
}
