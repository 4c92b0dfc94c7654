package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/codequest-jr/progression-hub/internal/domain/progression"
	"github.com/codequest-jr/progression-hub/internal/infrastructure/catalog"
	"github.com/codequest-jr/progression-hub/internal/infrastructure/persistence/postgres"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Validate and seed catalog documents",
}

var catalogValidateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Check a catalog document against the schema (default: built-in catalog)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		content, err := catalog.Load(pathArg(args))
		if err != nil {
			return err
		}
		printCatalogSummary(cmd.OutOrStdout(), content)
		fmt.Fprintln(cmd.OutOrStdout(), "Catalog is valid.")
		return nil
	},
}

var catalogSeedCmd = &cobra.Command{
	Use:   "seed [file]",
	Short: "Upsert a catalog document into the database (default: built-in catalog)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		content, err := catalog.Load(pathArg(args))
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		conn, err := connect(ctx, cmd)
		if err != nil {
			return err
		}
		defer conn.Close()

		if err := postgres.NewProgressionStore(conn).SeedCatalog(ctx, content); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		printCatalogSummary(cmd.OutOrStdout(), content)
		fmt.Fprintln(cmd.OutOrStdout(), "Catalog seeded.")
		return nil
	},
}

func init() {
	catalogCmd.AddCommand(catalogValidateCmd)
	catalogCmd.AddCommand(catalogSeedCmd)
}

func pathArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func printCatalogSummary(w io.Writer, c progression.CatalogContent) {
	fmt.Fprintf(w, "worlds:     %d\n", len(c.Worlds))
	fmt.Fprintf(w, "activities: %d\n", len(c.Activities))
	fmt.Fprintf(w, "badges:     %d\n", len(c.Badges))
	fmt.Fprintf(w, "cosmetics:  %d\n", len(c.Cosmetics))
}
