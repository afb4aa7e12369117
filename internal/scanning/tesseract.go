package scanning

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// TesseractExtractor implements the Extractor interface by running the
// tesseract CLI.
type TesseractExtractor struct {
	binary string
	lang   string
}

// NewTesseractExtractor creates a TesseractExtractor. The binary path is
// resolved once here: an explicit path wins, otherwise tesseract is looked up
// on PATH. An unresolvable binary fails construction so a misconfigured OCR
// engine is caught at startup, not on the first scan.
func NewTesseractExtractor(binary string, lang string) (*TesseractExtractor, error) {
	if lang == "" {
		lang = "eng"
	}

	if binary == "" {
		binary = "tesseract"
	}
	resolved, err := exec.LookPath(binary)
	if err != nil {
		return nil, fmt.Errorf("resolving tesseract binary %q: %w (set --tesseract or TESSERACT_PATH)", binary, err)
	}

	return &TesseractExtractor{
		binary: resolved,
		lang:   lang,
	}, nil
}

// ExtractText runs OCR over the image at imagePath and returns the
// transcription. PDF and HEIC inputs are converted to PNG first because the
// tesseract CLI cannot read them directly.
func (t *TesseractExtractor) ExtractText(ctx context.Context, imagePath string) (string, error) {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return "", &ExtractionError{Path: imagePath, Err: err}
	}

	pngData, err := normalizePNG(data, mimeTypeForPath(imagePath))
	if err != nil {
		return "", &ExtractionError{Path: imagePath, Err: err}
	}

	tmp, err := os.CreateTemp("", "receipt-ocr-*.png")
	if err != nil {
		return "", &ExtractionError{Path: imagePath, Err: fmt.Errorf("creating scratch file: %w", err)}
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(pngData); err != nil {
		tmp.Close()
		return "", &ExtractionError{Path: imagePath, Err: fmt.Errorf("writing scratch file: %w", err)}
	}
	if err := tmp.Close(); err != nil {
		return "", &ExtractionError{Path: imagePath, Err: fmt.Errorf("writing scratch file: %w", err)}
	}

	// tesseract <file> stdout -l <lang>
	cmd := exec.CommandContext(ctx, t.binary, tmp.Name(), "stdout", "-l", t.lang)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			return "", &ExtractionError{Path: imagePath, Err: fmt.Errorf("tesseract: %w: %s", err, detail)}
		}
		return "", &ExtractionError{Path: imagePath, Err: fmt.Errorf("tesseract: %w", err)}
	}

	return stdout.String(), nil
}
