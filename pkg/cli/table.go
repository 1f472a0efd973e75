package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
)

// Table renders column-aligned output via text/tabwriter. The header
// and its dash divider are written lazily on the first Row, so a table
// that never receives a row prints nothing.
type Table struct {
	w       *tabwriter.Writer
	headers []string
	started bool
}

// NewTable creates a table on stdout with the given column headers.
func NewTable(headers ...string) *Table {
	return NewTableTo(os.Stdout, headers...)
}

// NewTableTo creates a table writing to w.
func NewTableTo(w io.Writer, headers ...string) *Table {
	return &Table{
		w:       tabwriter.NewWriter(w, 0, 0, 2, ' ', 0),
		headers: headers,
	}
}

// Row writes one row, emitting the header block first if this is the
// first row.
func (t *Table) Row(values ...string) {
	if !t.started {
		t.started = true
		fmt.Fprintln(t.w, strings.Join(t.headers, "\t"))
		dividers := make([]string, len(t.headers))
		for i, h := range t.headers {
			dividers[i] = strings.Repeat("-", len(h))
		}
		fmt.Fprintln(t.w, strings.Join(dividers, "\t"))
	}
	fmt.Fprintln(t.w, strings.Join(values, "\t"))
}

// Flush writes the buffered output. A table with no rows stays silent.
func (t *Table) Flush() {
	if !t.started {
		return
	}
	t.w.Flush()
}
