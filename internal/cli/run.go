package cli

import (
	"github.com/spf13/cobra"
)

var runOnce bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the forecasting service",
	RunE: func(cmd *cobra.Command, args []string) error {
		if runOnce {
			_, err := getApp().RunOnce(cmd.Context())
			return err
		}
		return getApp().Run(cmd.Context())
	},
}

func init() {
	runCmd.Flags().BoolVar(&runOnce, "once", false, "Run a single cycle and exit")
}
