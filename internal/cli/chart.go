package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"ohlc-forecast/internal/app"
)

var chartOpts app.ChartOptions

var chartCmd = &cobra.Command{
	Use:   "chart",
	Short: "Forecast one symbol and export the history as PNG chart and/or CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		outcome, err := getApp().Chart(cmd.Context(), chartOpts)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), outcome.Result.Message())
		return err
	},
}

func init() {
	chartCmd.Flags().StringVar(&chartOpts.Symbol, "symbol", "", "Symbol to chart, e.g. DOTUSDT")
	chartCmd.Flags().StringVar(&chartOpts.PNGPath, "png", "", "Path to write PNG chart")
	chartCmd.Flags().StringVar(&chartOpts.CSVPath, "csv", "", "Path to write the feature table as CSV")
	_ = chartCmd.MarkFlagRequired("symbol")
}
