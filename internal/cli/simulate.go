package cli

import (
	"github.com/spf13/cobra"

	"octowatcher/internal/app"
)

var (
	simulateAmount float64
	simulateCount  int
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Push synthetic donations through the ledger and notifiers",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Simulate(cmd.Context(), app.SimulateOptions{
			AmountSOL: simulateAmount,
			Count:     simulateCount,
		})
	},
}

func init() {
	simulateCmd.Flags().Float64Var(&simulateAmount, "amount", 0.05, "Donation amount in SOL")
	simulateCmd.Flags().IntVar(&simulateCount, "count", 1, "Number of donations to simulate")
}
