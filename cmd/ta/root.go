package main

import (
	"github.com/spf13/cobra"
)

var (
	flagCSV       string
	flagSymbol    string
	flagTimeframe string
	flagVerbose   bool
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ta",
		Short: "Evaluate technical-analysis expressions over candle data",
		Long: `ta compiles a DSL expression (e.g. "sma(close, 20) > sma(close, 50)")
into a plan and evaluates it over a CSV dataset, in batch or
streaming mode.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flagCSV, "csv", "", "CSV file with timestamp,open,high,low,close,volume rows")
	root.PersistentFlags().StringVar(&flagSymbol, "symbol", "X", "symbol of the loaded partition")
	root.PersistentFlags().StringVar(&flagTimeframe, "timeframe", "1h", "timeframe of the loaded partition")
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "print execution trace events")

	root.AddCommand(newEvalCmd())
	root.AddCommand(newStreamCmd())
	root.AddCommand(newCatalogCmd())
	return root
}
