package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/heimdex/gatekeeper/internal/catalog"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var clipID string
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List stored evaluations, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger := ctx.loggerFor(cfg)

			database, repo, err := ctx.openStore(cfg, logger)
			if err != nil {
				return err
			}
			defer database.Close()

			evals, err := repo.ListEvaluations(cmd.Context(), clipID, limit)
			if err != nil {
				return fmt.Errorf("list evaluations: %w", err)
			}

			if asJSON {
				return writeJSON(cmd, evals)
			}
			if len(evals) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No evaluations recorded")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderHistoryTable(evals))
			return nil
		},
	}

	cmd.Flags().StringVar(&clipID, "clip", "", "Only show evaluations of this clip id")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of evaluations")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")

	return cmd
}

func renderHistoryTable(evals []*catalog.Evaluation) string {
	headers := []string{"ID", "CLIP", "VERDICT", "SCORE", "METHOD", "REASONING", "CREATED"}
	aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft, alignLeft}

	rows := make([][]string, 0, len(evals))
	for _, e := range evals {
		id := e.ID
		if len(id) > 8 {
			id = id[:8]
		}
		rows = append(rows, []string{
			id,
			e.ClipID,
			e.Verdict,
			strconv.FormatFloat(e.Score, 'f', 3, 64),
			e.CombineMethod,
			e.ReasoningStatus,
			e.CreatedAt.Local().Format("2006-01-02 15:04:05"),
		})
	}
	return renderTable(headers, rows, aligns)
}
