package commands

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"fintrack/internal/core"
	"fintrack/internal/grid"
)

// statusMark is the one-column status cue shown before each row.
func statusMark(r grid.Row) string {
	var mark string
	switch r.Status {
	case grid.Modified:
		mark = "*"
	case grid.New:
		mark = "+"
	case grid.Deleted:
		mark = "-"
	default:
		mark = " "
	}
	if r.Invalid || len(r.InputErrors) > 0 {
		mark += "!"
	}
	return mark
}

// renderRows prints rows as an aligned table. Row numbers are 1-based.
func renderRows(w io.Writer, rows []grid.Row) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	header := []string{"#", "ST"}
	for _, f := range core.Fields {
		header = append(header, strings.ToUpper(f.String()))
	}
	fmt.Fprintln(tw, strings.Join(header, "\t"))

	for _, r := range rows {
		cells := []string{fmt.Sprint(r.Index + 1), statusMark(r)}
		for _, f := range core.Fields {
			cells = append(cells, r.Display[f])
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	return tw.Flush()
}

// renderRow prints one row field by field with its errors.
func renderRow(w io.Writer, r grid.Row) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "row\t%d (%s)\n", r.Index+1, r.Status)
	for _, f := range core.Fields {
		line := r.Display[f]
		if fe, ok := r.Errors.For(f); ok {
			line += "\t! " + string(fe.Reason)
			if fe.Message != "" {
				line += ": " + fe.Message
			}
		}
		fmt.Fprintf(tw, "%s\t%s\n", f, line)
	}
	for _, ce := range r.InputErrors {
		fmt.Fprintf(tw, "input\t%s\n", ce.Error())
	}
	return tw.Flush()
}

// renderProblems lists the rows that block a save, one line each.
func renderProblems(w io.Writer, rows []grid.Row) int {
	n := 0
	for _, r := range rows {
		if !r.Invalid && len(r.InputErrors) == 0 {
			continue
		}
		n++
		var parts []string
		for _, fe := range r.Errors {
			parts = append(parts, fe.Error())
		}
		for _, ce := range r.InputErrors {
			parts = append(parts, ce.Error())
		}
		fmt.Fprintf(w, "row %d: %s\n", r.Index+1, strings.Join(parts, "; "))
	}
	return n
}
