package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
)

// Output prints results as JSON or as aligned text rows.
type Output struct {
	w      io.Writer
	format string
}

func NewOutput(w io.Writer, format string) *Output {
	return &Output{w: w, format: format}
}

// Print writes data as indented JSON in json mode; otherwise rows are
// rendered under header.
func (o *Output) Print(data any, header []string, rows [][]string) error {
	if o.format == "json" {
		enc := json.NewEncoder(o.w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	}

	tw := tabwriter.NewWriter(o.w, 0, 4, 2, ' ', 0)
	printRow(tw, header)
	for _, row := range rows {
		printRow(tw, row)
	}
	return tw.Flush()
}

// PrintMessage outputs a simple message
func (o *Output) PrintMessage(msg string) error {
	if o.format == "json" {
		return json.NewEncoder(o.w).Encode(map[string]string{"message": msg})
	}
	_, err := fmt.Fprintln(o.w, msg)
	return err
}

func printRow(w io.Writer, cols []string) {
	for i, c := range cols {
		if i > 0 {
			fmt.Fprint(w, "\t")
		}
		fmt.Fprint(w, c)
	}
	fmt.Fprintln(w)
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}
