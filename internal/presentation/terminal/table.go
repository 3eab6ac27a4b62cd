package terminal

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"unicode/utf8"

	"github.com/FACorreiaa/kontoexport/internal/domain/review"
)

// WriteTable prints the review table with 1-based row numbers. Amount
// columns are right-aligned.
func WriteTable(w io.Writer, t *review.Table) {
	if t == nil {
		return
	}

	headers := append([]string{"#"}, t.Headers...)
	numeric := make([]bool, len(headers))
	numeric[0] = true
	for i, h := range t.Headers {
		numeric[i+1] = review.IsNumericColumn(h)
	}

	cells := make([][]string, 0, len(t.Rows)+1)
	cells = append(cells, headers)
	for i, row := range t.Rows {
		line := make([]string, len(headers))
		line[0] = strconv.Itoa(i + 1)
		for j, h := range t.Headers {
			line[j+1] = row[h]
		}
		cells = append(cells, line)
	}

	widths := make([]int, len(headers))
	for _, line := range cells {
		for j, c := range line {
			widths[j] = max(widths[j], utf8.RuneCountInString(c))
		}
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for i, line := range cells {
		out := make([]string, len(line))
		for j, c := range line {
			if numeric[j] {
				c = strings.Repeat(" ", widths[j]-utf8.RuneCountInString(c)) + c
			}
			out[j] = c
		}
		if i == 0 {
			fmt.Fprintln(tw, strings.Join(out, "\t"))
			sep := make([]string, len(headers))
			for j := range sep {
				sep[j] = strings.Repeat("-", widths[j])
			}
			fmt.Fprintln(tw, strings.Join(sep, "\t"))
			continue
		}
		fmt.Fprintln(tw, strings.Join(out, "\t"))
	}
	_ = tw.Flush()
}

// WriteSummary prints the totals of the amount columns.
func WriteSummary(w io.Writer, s *review.Summary) {
	if s == nil {
		return
	}

	fmt.Fprintf(w, "%d rows\n", s.Rows)
	for _, c := range s.Columns {
		label := "total"
		if c.Kind == review.ColumnBalance {
			label = "last"
		}
		line := fmt.Sprintf("  %s %s: %s", c.Header, label, c.Value.Display())
		if c.Skipped > 0 {
			line += fmt.Sprintf(" (%d cells not readable)", c.Skipped)
		}
		fmt.Fprintln(w, line)
	}

	switch {
	case s.Net == nil:
	case s.Net.IsZero():
		fmt.Fprintf(w, "  Net change: none (%s)\n", s.Net.Currency())
	default:
		fmt.Fprintf(w, "  Net change: %s\n", s.Net.Display())
	}
}
