package main

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/laakhay/ta/ta/engine"
	"github.com/laakhay/ta/ta/planner"
	"github.com/laakhay/ta/ta/registry"
	"github.com/laakhay/ta/ta/trace"
)

func newEvalCmd() *cobra.Command {
	var showPlan bool
	cmd := &cobra.Command{
		Use:   "eval <expression>",
		Short: "Evaluate an expression in batch mode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if flagCSV == "" {
				return errors.New("--csv is required")
			}
			reg := registry.NewDefault()
			plan, err := engine.Compile(args[0], reg, planner.DefaultOptions())
			if err != nil {
				return err
			}
			if showPlan {
				encoded, err := plan.MarshalJSON()
				if err != nil {
					return err
				}
				cmd.OutOrStdout().Write(append(encoded, '\n'))
				return nil
			}

			ds, err := loadCSVDataset(flagCSV, flagSymbol, flagTimeframe)
			if err != nil {
				return err
			}

			var collector *trace.Collector
			if flagVerbose {
				collector = trace.NewCollector(trace.NewOutputFormatter(os.Stderr).Handler())
			}
			eng := engine.New(reg, engine.Options{Collector: collector})
			result, err := eng.Evaluate(context.Background(), plan, ds, flagSymbol, flagTimeframe)
			if err != nil {
				return err
			}
			cmd.OutOrStdout().Write([]byte(engine.NewTableFormatter().FormatSeries(result)))
			return nil
		},
	}
	cmd.Flags().BoolVar(&showPlan, "plan", false, "print the compiled plan as JSON instead of evaluating")
	return cmd
}
