package cli

import (
	"github.com/spf13/cobra"

	"ohlc-forecast/internal/app"
)

var simulateOpts app.SimulateOptions

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "使用合成 K 线模拟一次预测并输出消息",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := getApp().Simulate(cmd.Context(), simulateOpts)
		return err
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateOpts.Symbol, "symbol", "DOTUSDT", "交易对名称")
	simulateCmd.Flags().IntVar(&simulateOpts.Rows, "rows", 200, "生成的 K 线数量")
	simulateCmd.Flags().Float64Var(&simulateOpts.TrendPct, "trend", 0.1, "每根 K 线的收盘价漂移 (%)")
	simulateCmd.Flags().Float64Var(&simulateOpts.NoisePct, "noise", 0.5, "随机游走幅度 (%)")
	simulateCmd.Flags().Uint64Var(&simulateOpts.Seed, "seed", 1, "随机种子")
}
