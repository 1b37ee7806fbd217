package main

import (
	"context"
	"fmt"
	"math"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	ta "github.com/laakhay/ta/ta"
	"github.com/laakhay/ta/ta/engine"
	"github.com/laakhay/ta/ta/planner"
	"github.com/laakhay/ta/ta/registry"
	"github.com/laakhay/ta/ta/trace"
)

func newStreamCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stream <expression>",
		Short: "Replay the dataset tick by tick and verify batch parity",
		Long: `stream compiles the expression, evaluates it in batch mode, then
feeds the same rows through a fresh streaming backend one tick at a
time and compares the two output sequences.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if flagCSV == "" {
				return errors.New("--csv is required")
			}
			reg := registry.NewDefault()
			plan, err := engine.Compile(args[0], reg, planner.DefaultOptions())
			if err != nil {
				return err
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
			batch, err := eng.Evaluate(context.Background(), plan, ds, flagSymbol, flagTimeframe)
			if err != nil {
				return err
			}

			backend, err := engine.NewBackend(plan, reg, collector)
			if err != nil {
				return err
			}
			key := ta.PartitionKey{Symbol: flagSymbol, Timeframe: flagTimeframe, Source: ta.SourceOHLCV}
			mismatches := 0
			for i := 0; i < batch.Len(); i++ {
				tick := engine.Tick{
					Timestamp: batch.Timestamps()[i],
					Fields:    make(map[string]float64, 5),
				}
				for _, field := range []string{"open", "high", "low", "close", "volume"} {
					s, err := ds.Series(key, field)
					if err != nil {
						return err
					}
					tick.Fields[field] = s.Value(i)
				}
				got, err := backend.Step(tick)
				if err != nil {
					return err
				}
				want := batch.Value(i)
				if got != want && !(math.IsNaN(got) && math.IsNaN(want)) {
					mismatches++
					fmt.Fprintf(cmd.OutOrStdout(), "tick %d: batch=%v stream=%v\n", i, want, got)
				}
			}
			if mismatches == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "parity ok: %d ticks, batch == stream\n", batch.Len())
				return nil
			}
			return errors.Errorf("%d of %d ticks diverged", mismatches, batch.Len())
		},
	}
	return cmd
}
