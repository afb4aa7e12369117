// Package receipt orchestrates the extract -> interpret -> grid -> export
// pipeline and owns the editable session state between processing and export.
package receipt

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/zombor/receipt-table/internal/scanning"
	"github.com/zombor/receipt-table/internal/tabular"
)

// ExportFunc writes a grid as a workbook at path.
type ExportFunc func(grid *tabular.Grid, path string) error

// Result holds the artifacts of one pipeline run.
type Result struct {
	RawText string                  `json:"raw_text"`
	Record  *scanning.ReceiptRecord `json:"record"`
	Grid    *tabular.Grid           `json:"grid"`
}

// Service runs the receipt pipeline.
type Service struct {
	extractor   scanning.Extractor
	interpreter scanning.Interpreter
	export      ExportFunc
}

// NewService creates a new Service with the default xlsx exporter.
func NewService(extractor scanning.Extractor, interpreter scanning.Interpreter) *Service {
	return NewServiceWithDeps(extractor, interpreter, tabular.ExportXLSX)
}

// NewServiceWithDeps creates a new Service with a custom exporter for testing.
func NewServiceWithDeps(extractor scanning.Extractor, interpreter scanning.Interpreter, export ExportFunc) *Service {
	return &Service{
		extractor:   extractor,
		interpreter: interpreter,
		export:      export,
	}
}

// ProcessImage runs the pipeline stages in order: OCR the image, interpret
// the text, project the record into a grid. An extraction failure stops the
// run before the interpreter is ever called.
func (s *Service) ProcessImage(ctx context.Context, imagePath string) (*Result, error) {
	text, err := s.extractor.ExtractText(ctx, imagePath)
	if err != nil {
		return nil, fmt.Errorf("extracting text: %w", err)
	}
	slog.Info("Extracted receipt text", "path", imagePath, "chars", len(text))

	record, err := s.interpreter.InterpretReceipt(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("interpreting receipt: %w", err)
	}
	slog.Info("Interpreted receipt", "items", len(record.Items), "total", record.Total)

	return &Result{
		RawText: text,
		Record:  record,
		Grid:    tabular.BuildGrid(record),
	}, nil
}

// Export writes the grid as a workbook, appending the .xlsx extension when it
// is missing. Returns the path actually written.
func (s *Service) Export(grid *tabular.Grid, path string) (string, error) {
	if grid == nil || len(grid.Rows) == 0 {
		return "", fmt.Errorf("no table data to export")
	}
	if !strings.HasSuffix(path, ".xlsx") {
		path += ".xlsx"
	}
	if err := s.export(grid, path); err != nil {
		return "", err
	}
	return path, nil
}

// Session owns the state of the receipt currently being worked on: the loaded
// image path, its raw text, the interpreted record, and the editable grid.
// Processing a new image discards the previous state.
type Session struct {
	mu      sync.Mutex
	service *Service

	imagePath string
	rawText   string
	record    *scanning.ReceiptRecord
	grid      *tabular.Grid
}

// NewSession creates a Session around a Service.
func NewSession(service *Service) *Session {
	return &Session{service: service}
}

// Process runs the pipeline over imagePath and replaces the session state with
// the fresh result.
func (s *Session) Process(ctx context.Context, imagePath string) (*Result, error) {
	result, err := s.service.ProcessImage(ctx, imagePath)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.imagePath = imagePath
	s.rawText = result.RawText
	s.record = result.Record
	s.grid = result.Grid
	s.mu.Unlock()

	return result, nil
}

// Grid returns a copy of the current grid, or nil when no receipt has been
// processed yet.
func (s *Session) Grid() *tabular.Grid {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.grid == nil {
		return nil
	}
	return s.grid.Clone()
}

// ReplaceGrid installs an edited grid as the session state.
func (s *Session) ReplaceGrid(grid *tabular.Grid) error {
	if err := grid.Validate(); err != nil {
		return fmt.Errorf("invalid grid: %w", err)
	}

	s.mu.Lock()
	s.grid = grid.Clone()
	s.mu.Unlock()
	return nil
}

// Export writes the session grid as a workbook at path. Returns the path
// actually written.
func (s *Session) Export(path string) (string, error) {
	return s.service.Export(s.Grid(), path)
}
