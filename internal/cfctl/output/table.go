package output

import (
	"io"
	"os"
	"strings"
	"text/tabwriter"
)

// Table buffers rows and aligns them with tabwriter on Render. Widths are
// measured in bytes, so colored cells widen their column.
type Table struct {
	out     io.Writer
	headers []string
	rows    [][]string
	quiet   bool
}

func NewTable(headers []string, quiet bool) *Table {
	return NewTableWriter(os.Stdout, headers, quiet)
}

func NewTableWriter(out io.Writer, headers []string, quiet bool) *Table {
	return &Table{out: out, headers: headers, quiet: quiet}
}

func (t *Table) Append(row []string) { t.rows = append(t.rows, row) }

func (t *Table) Len() int { return len(t.rows) }

func (t *Table) Render() {
	if t.quiet {
		return
	}
	tw := tabwriter.NewWriter(t.out, 0, 0, 2, ' ', 0)
	for _, row := range append([][]string{t.headers}, t.rows...) {
		_, _ = io.WriteString(tw, strings.Join(row, "\t")+"\n")
	}
	_ = tw.Flush()
}
