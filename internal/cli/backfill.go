package cli

import (
	"github.com/spf13/cobra"

	"octowatcher/internal/app"
)

var (
	backfillLimit  int
	backfillDryRun bool
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Credit donations from older signature history",
	Long: "Walks up to --limit recent signatures through the same normalize and " +
		"submit path as the live monitor. Already credited transfers are skipped, " +
		"so repeating the command is safe.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Backfill(cmd.Context(), app.BackfillOptions{
			Limit:  backfillLimit,
			DryRun: backfillDryRun,
		})
	},
}

func init() {
	backfillCmd.Flags().IntVar(&backfillLimit, "limit", 100, "Number of recent signatures to inspect")
	backfillCmd.Flags().BoolVar(&backfillDryRun, "dry-run", false, "Normalize and report without crediting")
}
