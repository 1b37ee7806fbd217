package trace

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"
)

// OutputFormatter renders trace events to a writer, optionally with
// color. Pair its Handler with a Collector for live output:
//
//	formatter := trace.NewOutputFormatter(os.Stderr)
//	collector := trace.NewCollector(formatter.Handler())
type OutputFormatter struct {
	w        io.Writer
	useColor bool
}

// NewOutputFormatter creates a formatter with color enabled.
func NewOutputFormatter(w io.Writer) *OutputFormatter {
	return &OutputFormatter{w: w, useColor: true}
}

// NewPlainFormatter creates a formatter without color.
func NewPlainFormatter(w io.Writer) *OutputFormatter {
	return &OutputFormatter{w: w}
}

// Handler returns a Handler that prints each event as it occurs.
func (f *OutputFormatter) Handler() Handler {
	return func(event Event) { f.Print(event) }
}

// Print renders one event.
func (f *OutputFormatter) Print(event Event) {
	name := event.Name
	latency := ""
	if event.Latency > 0 {
		latency = fmt.Sprintf(" (%s)", event.Latency)
	}
	if f.useColor {
		name = f.colorizeName(event.Name)
		if latency != "" {
			latency = color.YellowString(latency)
		}
	}
	fmt.Fprintf(f.w, "%s%s%s\n", name, latency, f.formatData(event.Data))
}

func (f *OutputFormatter) colorizeName(name string) string {
	switch {
	case strings.HasPrefix(name, "error/"):
		return color.RedString(name)
	case strings.HasPrefix(name, "plan/"):
		return color.GreenString(name)
	case strings.HasPrefix(name, "stream/"):
		return color.CyanString(name)
	default:
		return color.BlueString(name)
	}
}

func (f *OutputFormatter) formatData(data map[string]interface{}) string {
	if len(data) == 0 {
		return ""
	}
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, data[k])
	}
	return " " + strings.Join(parts, " ")
}
