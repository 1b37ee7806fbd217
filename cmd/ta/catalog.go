package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"

	"github.com/laakhay/ta/ta/registry"
)

func newCatalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "List the registered indicators",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := registry.NewDefault()
			out := &strings.Builder{}
			table := tablewriter.NewTable(out,
				tablewriter.WithRenderer(renderer.NewMarkdown()),
				tablewriter.WithHeaderAutoFormat(tw.Off),
			)
			table.Header([]string{"name", "category", "parameters", "outputs", "aliases"})
			for _, name := range reg.Indicators() {
				spec, err := reg.Lookup(name)
				if err != nil {
					return err
				}
				params := make([]string, len(spec.Params))
				for i, p := range spec.Params {
					if p.Default != nil {
						params[i] = fmt.Sprintf("%s=%v", p.Name, p.Default)
					} else {
						params[i] = p.Name
					}
				}
				table.Append([]string{
					name,
					spec.Category,
					strings.Join(params, ", "),
					strings.Join(spec.OutputNames(), ", "),
					strings.Join(spec.Aliases, ", "),
				})
			}
			table.Render()
			cmd.OutOrStdout().Write([]byte(out.String()))
			fmt.Fprintf(cmd.OutOrStdout(), "\n%s\n", color.GreenString("%d indicators registered", len(reg.Indicators())))
			return nil
		},
	}
	return cmd
}
