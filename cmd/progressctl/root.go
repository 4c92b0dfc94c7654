package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/codequest-jr/progression-hub/internal/infrastructure/persistence/postgres"
)

// version is set via -ldflags at build time.
var version = "(devel)"

var rootCmd = &cobra.Command{
	Use:           "progressctl",
	Short:         "Administer the progression service",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the current version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "progressctl", version)
	},
}

func init() {
	rootCmd.PersistentFlags().String("database-url", "", "PostgreSQL URL (overrides DATABASE_URL env var)")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(catalogCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(versionCmd)
}

// resolveDatabaseURL returns the --database-url flag, then DATABASE_URL.
func resolveDatabaseURL(cmd *cobra.Command) (string, error) {
	if u, _ := cmd.Flags().GetString("database-url"); u != "" {
		return u, nil
	}
	if u := os.Getenv("DATABASE_URL"); u != "" {
		return u, nil
	}
	return "", errors.New("no database configured: set --database-url or DATABASE_URL")
}

// connect opens a pool for one command invocation.
func connect(ctx context.Context, cmd *cobra.Command) (*postgres.Connection, error) {
	url, err := resolveDatabaseURL(cmd)
	if err != nil {
		return nil, err
	}
	conn, err := postgres.NewConnectionFromURL(ctx, url, postgres.Config{MaxConns: 2, MinConns: 1})
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	return conn, nil
}
