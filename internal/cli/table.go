package cli

import (
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
)

// configWidth caps the CONFIG column; longer configs wrap.
const configWidth = 60

// newTable starts a light-style table that renders to w.
func newTable(w io.Writer, header ...any) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row(header))
	return t
}
