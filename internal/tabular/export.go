package tabular

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// SheetName is the worksheet the exporter writes into.
const SheetName = "Receipt Data"

// numericColumns holds the header labels (lowercased) whose cells are written
// as numbers when they parse.
var numericColumns = map[string]bool{
	"price":    true,
	"quantity": true,
}

// ExportError wraps workbook write failures.
type ExportError struct {
	Path string
	Err  error
}

func (e *ExportError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("exporting spreadsheet: %v", e.Err)
	}
	return fmt.Sprintf("exporting spreadsheet to %s: %v", e.Path, e.Err)
}

func (e *ExportError) Unwrap() error { return e.Err }

// ExportXLSX writes the grid as a single-worksheet workbook at path,
// overwriting any existing file.
func ExportXLSX(grid *Grid, path string) error {
	f, err := buildWorkbook(grid)
	if err != nil {
		return &ExportError{Path: path, Err: err}
	}
	defer f.Close()

	if err := f.SaveAs(path); err != nil {
		return &ExportError{Path: path, Err: err}
	}
	return nil
}

// WriteXLSX streams the grid as a workbook to w.
func WriteXLSX(grid *Grid, w io.Writer) error {
	f, err := buildWorkbook(grid)
	if err != nil {
		return &ExportError{Err: err}
	}
	defer f.Close()

	if err := f.Write(w); err != nil {
		return &ExportError{Err: err}
	}
	return nil
}

// buildWorkbook serializes the grid. The header row is written verbatim as row
// 1. Cells in numeric columns are written as numbers when their text parses as
// a float; anything else (including the TOTAL row's placeholder) falls back to
// a text cell rather than aborting the export.
func buildWorkbook(grid *Grid) (*excelize.File, error) {
	if err := grid.Validate(); err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		f.Close()
		return nil, fmt.Errorf("naming worksheet: %w", err)
	}

	for col, label := range grid.Header {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			f.Close()
			return nil, err
		}
		if err := f.SetCellStr(SheetName, cell, label); err != nil {
			f.Close()
			return nil, fmt.Errorf("writing header cell %s: %w", cell, err)
		}
	}

	// Recomputed from the live header every export, so renamed columns change
	// typing behavior.
	numeric := numericColumnSet(grid.Header)

	for r, row := range grid.Rows {
		for c, value := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				f.Close()
				return nil, err
			}

			if numeric[c] {
				if n, perr := strconv.ParseFloat(value, 64); perr == nil {
					if err := f.SetCellFloat(SheetName, cell, n, -1, 64); err != nil {
						f.Close()
						return nil, fmt.Errorf("writing cell %s: %w", cell, err)
					}
					continue
				}
			}

			if err := f.SetCellStr(SheetName, cell, value); err != nil {
				f.Close()
				return nil, fmt.Errorf("writing cell %s: %w", cell, err)
			}
		}
	}

	return f, nil
}

// numericColumnSet maps column indexes to numeric-ness by case-insensitive
// header match.
func numericColumnSet(header []string) map[int]bool {
	set := make(map[int]bool, len(header))
	for col, label := range header {
		if numericColumns[strings.ToLower(strings.TrimSpace(label))] {
			set[col] = true
		}
	}
	return set
}
