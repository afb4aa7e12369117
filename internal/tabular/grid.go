// Package tabular projects receipt records into an editable grid and exports
// the grid to a spreadsheet.
package tabular

import (
	"fmt"
	"strconv"

	"github.com/zombor/receipt-table/internal/scanning"
)

const (
	totalLabel  = "TOTAL"
	placeholder = "—"
)

// Grid is a presentation-oriented table: a header row plus data rows, every
// cell stored as text so the caller can edit it before export.
type Grid struct {
	Header []string   `json:"header"`
	Rows   [][]string `json:"rows"`
}

// BuildGrid projects a receipt record into a grid with one row per line item
// and a final synthetic TOTAL row. The quantity cell of the TOTAL row holds a
// placeholder, not a number.
func BuildGrid(record *scanning.ReceiptRecord) *Grid {
	rows := make([][]string, 0, len(record.Items)+1)
	for _, item := range record.Items {
		rows = append(rows, []string{
			item.Description,
			formatNumber(item.Price),
			formatNumber(item.Quantity),
		})
	}
	rows = append(rows, []string{totalLabel, formatNumber(record.Total), placeholder})

	return &Grid{
		Header: []string{"Item", "Price", "Quantity"},
		Rows:   rows,
	}
}

// SetCell replaces the text of a data cell.
func (g *Grid) SetCell(row, col int, value string) error {
	if row < 0 || row >= len(g.Rows) {
		return fmt.Errorf("row %d out of range", row)
	}
	if col < 0 || col >= len(g.Rows[row]) {
		return fmt.Errorf("column %d out of range", col)
	}
	g.Rows[row][col] = value
	return nil
}

// SetHeader replaces a column label. Renaming a column changes how its cells
// are typed at export time.
func (g *Grid) SetHeader(col int, value string) error {
	if col < 0 || col >= len(g.Header) {
		return fmt.Errorf("column %d out of range", col)
	}
	g.Header[col] = value
	return nil
}

// Validate checks that the grid has a header and rectangular rows.
func (g *Grid) Validate() error {
	if len(g.Header) == 0 {
		return fmt.Errorf("grid has no header row")
	}
	for i, row := range g.Rows {
		if len(row) != len(g.Header) {
			return fmt.Errorf("row %d has %d cells, header has %d", i, len(row), len(g.Header))
		}
	}
	return nil
}

// Clone returns a deep copy of the grid.
func (g *Grid) Clone() *Grid {
	clone := &Grid{
		Header: append([]string(nil), g.Header...),
		Rows:   make([][]string, len(g.Rows)),
	}
	for i, row := range g.Rows {
		clone.Rows[i] = append([]string(nil), row...)
	}
	return clone
}

// formatNumber renders a float with the shortest round-trip representation,
// so 3.5 becomes "3.5" and 2 becomes "2".
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
