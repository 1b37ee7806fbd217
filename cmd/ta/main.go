// Command ta evaluates technical-analysis expressions against CSV
// candle data. The computation core is in the ta/ packages; CSV
// loading and rendering live here.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
