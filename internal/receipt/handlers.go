package receipt

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/zombor/receipt-table/internal/scanning"
	"github.com/zombor/receipt-table/internal/tabular"
)

// maxFormSize bounds uploads at 50MB to handle high-resolution phone photos.
const maxFormSize = int64(50 << 20)

// jsonError writes a JSON error body with CORS headers set
func jsonError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// statusForPipelineError maps the pipeline error taxonomy to HTTP statuses.
func statusForPipelineError(err error) int {
	var extractionErr *scanning.ExtractionError
	var interpretationErr *scanning.InterpretationError
	switch {
	case errors.As(err, &extractionErr):
		return http.StatusBadRequest
	case errors.Is(err, scanning.ErrNoStructuredPayload):
		return http.StatusUnprocessableEntity
	case errors.As(err, &interpretationErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// handleProcessReceipt accepts an uploaded receipt image and runs the full
// pipeline over it, replacing the session state with the fresh result.
func (s *Server) handleProcessReceipt(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxFormSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		jsonError(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		jsonError(w, "No file was selected. Please choose a file to upload.", http.StatusBadRequest)
		return
	}
	defer f.Close()

	if header.Size > maxFormSize {
		jsonError(w, "File is too large. Maximum size is 50MB.", http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		jsonError(w, "Error reading file. Please try again.", http.StatusInternalServerError)
		return
	}

	// The extractor works on file paths, so park the upload in a temp file
	// that keeps the original extension for format detection.
	tmp, err := os.CreateTemp("", "receipt-upload-*"+filepath.Ext(header.Filename))
	if err != nil {
		slog.Error("Error creating temp file", "error", err)
		jsonError(w, "Error storing upload. Please try again.", http.StatusInternalServerError)
		return
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		slog.Error("Error writing temp file", "error", err)
		jsonError(w, "Error storing upload. Please try again.", http.StatusInternalServerError)
		return
	}
	tmp.Close()

	result, err := s.session.Process(r.Context(), tmp.Name())
	if err != nil {
		slog.Error("Error processing receipt", "filename", header.Filename, "error", err)
		jsonError(w, err.Error(), statusForPipelineError(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(result); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// handleGetGrid returns the current editable grid
func (s *Server) handleGetGrid(w http.ResponseWriter, r *http.Request) {
	grid := s.session.Grid()
	if grid == nil {
		jsonError(w, "No receipt has been processed yet", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(grid); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// handlePutGrid replaces the current grid with the caller's edited version
func (s *Server) handlePutGrid(w http.ResponseWriter, r *http.Request) {
	var grid tabular.Grid
	if err := json.NewDecoder(r.Body).Decode(&grid); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.session.ReplaceGrid(&grid); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleExport writes the current grid as a workbook at the requested path
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path string `json:"path"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Path == "" {
		jsonError(w, "Export path required", http.StatusBadRequest)
		return
	}

	path, err := s.session.Export(req.Path)
	if err != nil {
		slog.Error("Error exporting grid", "path", req.Path, "error", err)
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]string{"path": path}); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// handleDownload streams the current grid as an xlsx attachment
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	grid := s.session.Grid()
	if grid == nil || len(grid.Rows) == 0 {
		jsonError(w, "No table data to export", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="receipt.xlsx"`)
	if err := tabular.WriteXLSX(grid, w); err != nil {
		slog.Error("Error streaming workbook", "error", err)
	}
}
