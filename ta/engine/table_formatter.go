package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"

	ta "github.com/laakhay/ta/ta"
)

// TableFormatter renders result series as markdown tables.
type TableFormatter struct {
	// MaxRows bounds the rendered rows; the tail of the series is
	// shown when it is exceeded.
	MaxRows int
}

// NewTableFormatter creates a formatter with default settings.
func NewTableFormatter() *TableFormatter {
	return &TableFormatter{MaxRows: 50}
}

// FormatSeries formats a single series as a markdown table.
func (tf *TableFormatter) FormatSeries(s ta.Series) string {
	return tf.FormatSeriesMap(map[string]ta.Series{"value": s}, []string{"value"})
}

// FormatSeriesMap formats named series sharing one axis as a
// markdown table with one column per name.
func (tf *TableFormatter) FormatSeriesMap(series map[string]ta.Series, order []string) string {
	if len(order) == 0 {
		return "_No output_"
	}
	axis := series[order[0]]
	if axis.IsEmpty() {
		return "_Empty series_"
	}

	start := 0
	if tf.MaxRows > 0 && axis.Len() > tf.MaxRows {
		start = axis.Len() - tf.MaxRows
	}

	tableString := &strings.Builder{}
	alignment := make([]tw.Align, len(order)+1)
	for i := range alignment {
		alignment[i] = tw.AlignNone
	}
	table := tablewriter.NewTable(tableString,
		tablewriter.WithRenderer(renderer.NewMarkdown()),
		tablewriter.WithAlignment(alignment),
		tablewriter.WithHeaderAutoFormat(tw.Off),
	)
	table.Header(append([]string{"timestamp"}, order...))

	for i := start; i < axis.Len(); i++ {
		row := make([]string, 0, len(order)+1)
		row = append(row, formatTimestamp(axis.Timestamps()[i]))
		for _, name := range order {
			s := series[name]
			if i >= s.Len() || !s.Defined(i) {
				row = append(row, "-")
				continue
			}
			row = append(row, fmt.Sprintf("%.6g", s.Value(i)))
		}
		table.Append(row)
	}
	table.Render()
	tableString.WriteString(fmt.Sprintf("\n_%d rows (%s %s)_\n", axis.Len(), axis.Symbol(), axis.Timeframe()))
	return tableString.String()
}

func formatTimestamp(ts ta.Timestamp) string {
	return time.UnixMilli(ts).UTC().Format("2006-01-02 15:04:05")
}

// PrintSeries prints a series to stdout.
func PrintSeries(s ta.Series) {
	fmt.Println(NewTableFormatter().FormatSeries(s))
}
