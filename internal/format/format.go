// Package format renders claims, dashboards and submission history as
// terminal or Markdown tables.
package format

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Mode controls the output format.
type Mode int

const (
	ASCII    Mode = iota // Fixed-width terminal tables
	Markdown             // GitHub-flavoured Markdown tables
)

// ParseMode maps an --output value to a Mode. JSON output is not a table and
// is handled by the caller.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "", "table", "ascii":
		return ASCII, nil
	case "markdown", "md":
		return Markdown, nil
	}
	return ASCII, fmt.Errorf("unknown table format %q (want table or markdown)", s)
}

// ColumnAlign specifies the horizontal alignment for a column.
type ColumnAlign int

const (
	AlignDefault ColumnAlign = iota
	AlignLeft
	AlignCenter
	AlignRight
)

// ColumnConfig controls per-column formatting.
type ColumnConfig struct {
	Number   int         // 1-based column index
	Align    ColumnAlign // horizontal alignment
	MaxWidth int         // wrap content beyond this width (0 = unlimited)
}

// TableBuilder builds a table once and renders it in the Mode set at creation.
type TableBuilder interface {
	Header(cols ...string)
	// Row appends a data row. Values are converted to strings via fmt.Sprint.
	Row(vals ...any)
	// Footer appends a footer row (e.g. totals).
	Footer(vals ...any)
	Columns(cfgs ...ColumnConfig)
	String() string
}

// NewTable returns a TableBuilder that renders in the given Mode.
func NewTable(m Mode) TableBuilder {
	w := table.NewWriter()
	if m == ASCII {
		w.SetStyle(table.StyleLight)
	}
	w.Style().Format.Header = text.FormatDefault
	w.Style().Format.Footer = text.FormatDefault
	return &prettyTable{w: w, mode: m}
}

type prettyTable struct {
	w    table.Writer
	mode Mode
}

func (t *prettyTable) Header(cols ...string) {
	row := make(table.Row, len(cols))
	for i, c := range cols {
		row[i] = c
	}
	t.w.AppendHeader(row)
}

func (t *prettyTable) Row(vals ...any)    { t.w.AppendRow(table.Row(vals)) }
func (t *prettyTable) Footer(vals ...any) { t.w.AppendFooter(table.Row(vals)) }

func (t *prettyTable) Columns(cfgs ...ColumnConfig) {
	out := make([]table.ColumnConfig, len(cfgs))
	for i, c := range cfgs {
		out[i] = table.ColumnConfig{Number: c.Number, Align: textAlign(c.Align), WidthMax: c.MaxWidth}
	}
	t.w.SetColumnConfigs(out)
}

func (t *prettyTable) String() string {
	if t.mode == Markdown {
		return t.w.RenderMarkdown()
	}
	return t.w.Render()
}

func textAlign(a ColumnAlign) text.Align {
	switch a {
	case AlignLeft:
		return text.AlignLeft
	case AlignRight:
		return text.AlignRight
	case AlignCenter:
		return text.AlignCenter
	}
	return text.AlignDefault
}
