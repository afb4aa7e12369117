package scanning

import (
	"context"
	"errors"
	"fmt"
)

// LineItem is a single purchased item on a receipt.
type LineItem struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	Price       float64 `json:"price"`
}

// ReceiptRecord is the structured result of interpreting receipt text.
type ReceiptRecord struct {
	Items []LineItem `json:"items"`
	Total float64    `json:"total"`
}

// Extractor turns a receipt image file into raw text.
type Extractor interface {
	// ExtractText reads the image at imagePath and returns its best-effort
	// transcription. The result may be empty if no text is detected.
	ExtractText(ctx context.Context, imagePath string) (string, error)
}

// Interpreter turns raw receipt text into a structured record.
type Interpreter interface {
	// InterpretReceipt extracts line items and the total from receipt text.
	InterpretReceipt(ctx context.Context, text string) (*ReceiptRecord, error)
	// Close releases the interpreter and its client resources.
	Close() error
}

// ErrNoStructuredPayload is returned when the model responded without the
// required structured payload, so no record can be recovered.
var ErrNoStructuredPayload = errors.New("no structured payload in model response")

// ExtractionError wraps OCR and image decoding failures.
type ExtractionError struct {
	Path string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extracting text from %s: %v", e.Path, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// InterpretationError wraps transport, auth and decode failures talking to the
// language model provider.
type InterpretationError struct {
	Provider string
	Err      error
}

func (e *InterpretationError) Error() string {
	return fmt.Sprintf("interpreting receipt via %s: %v", e.Provider, e.Err)
}

func (e *InterpretationError) Unwrap() error { return e.Err }
