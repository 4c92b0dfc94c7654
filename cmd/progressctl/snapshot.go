package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/codequest-jr/progression-hub/internal/application/query"
	"github.com/codequest-jr/progression-hub/internal/infrastructure/persistence/postgres"
	"github.com/codequest-jr/progression-hub/pkg/logger"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot <student-id>",
	Short: "Print the progression snapshot of a student as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		conn, err := connect(ctx, cmd)
		if err != nil {
			return err
		}
		defer conn.Close()

		handler := query.NewGetProgressionSnapshotHandler(postgres.NewProgressionStore(conn), nil, nil, nil, logger.Nop())
		snap, err := handler.Handle(ctx, query.GetProgressionSnapshotQuery{StudentID: args[0], SkipCache: true})
		if err != nil {
			return fmt.Errorf("snapshot %s: %w", args[0], err)
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	},
}
