package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "equity",
	Short: "Daily balance curve for a stock and options trade journal",
	Long: `Equity keeps a trade journal and turns it into a daily balance curve.

It provides tools for:
  - Recording trades, trims, deposits and withdrawals
  - Building the end-of-day balance curve from historical closes
  - Exporting the curve as CSV or a PNG chart

Closing prices are cached per trading day, so only new or changed days
are fetched again.`,
	SilenceUsage: true,
}

var cfgFile string

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (YAML or JSON); defaults apply when empty")
}
