package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/zombor/receipt-table/internal/receipt"
	"github.com/zombor/receipt-table/internal/scanning"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("receipt-table")
	var (
		tesseractPath   = fs.StringLong("tesseract", "", "Tesseract binary path (or set TESSERACT_PATH env var; default: PATH lookup)")
		ocrLang         = fs.StringLong("ocr-lang", "eng", "OCR language passed to tesseract")
		interpreterType = fs.StringLong("interpreter", "gemini", "Interpreter type: 'gemini' or 'ollama'")
		geminiKey       = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel     = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		ollamaURL       = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel     = fs.StringLong("ollama-model", "llama3.1", "Ollama model name")
		outPath         = fs.StringLong("out", "", "Spreadsheet output path (default: <image>.xlsx)")
		listenAddr      = fs.StringLong("listen", "", "Listen address, e.g. :8080 (serve mode instead of one-shot)")
		authUser        = fs.StringLong("auth-user", "", "Basic auth username for serve mode (optional)")
		authPass        = fs.StringLong("auth-pass", "", "Basic auth password for serve mode (optional)")
		showVersion     = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("RECEIPT_TABLE"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	// Initialize OCR extractor
	binary := *tesseractPath
	if binary == "" {
		binary = os.Getenv("TESSERACT_PATH")
	}
	extractor, err := scanning.NewTesseractExtractor(binary, *ocrLang)
	if err != nil {
		slog.Error("Failed to initialize OCR extractor", "error", err)
		os.Exit(1)
	}

	// Initialize interpreter based on type
	var interpreter scanning.Interpreter
	switch *interpreterType {
	case "gemini":
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing Gemini interpreter...", "model", *geminiModel)
		interpreter, err = scanning.NewGemini(apiKey, *geminiModel)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
	case "ollama":
		slog.Info("Initializing Ollama interpreter...", "url", *ollamaURL, "model", *ollamaModel)
		interpreter, err = scanning.NewOllama(*ollamaURL, *ollamaModel)
		if err != nil {
			slog.Error("Failed to initialize Ollama", "error", err)
			os.Exit(1)
		}
	default:
		slog.Error("Invalid interpreter type", "type", *interpreterType, "valid", "gemini or ollama")
		os.Exit(1)
	}
	defer interpreter.Close()

	service := receipt.NewService(extractor, interpreter)
	session := receipt.NewSession(service)

	if *listenAddr != "" {
		serve(session, *listenAddr, *authUser, *authPass)
		return
	}

	args := fs.GetArgs()
	if len(args) != 1 {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: expected exactly one receipt image path\n")
		os.Exit(1)
	}

	if err := runOnce(session, args[0], *outPath); err != nil {
		slog.Error("Failed to process receipt", "error", err)
		os.Exit(1)
	}
}

// runOnce processes a single receipt image and writes the workbook.
func runOnce(session *receipt.Session, imagePath, outPath string) error {
	result, err := session.Process(context.Background(), imagePath)
	if err != nil {
		return err
	}

	if outPath == "" {
		outPath = strings.TrimSuffix(imagePath, filepath.Ext(imagePath)) + ".xlsx"
	}

	written, err := session.Export(outPath)
	if err != nil {
		return err
	}

	slog.Info("Spreadsheet written", "path", written, "items", len(result.Record.Items), "total", result.Record.Total)
	return nil
}

// serve runs the local JSON API until interrupted.
func serve(session *receipt.Session, addr, authUser, authPass string) {
	basicAuth := receipt.BasicAuth{
		Username: authUser,
		Password: authPass,
	}
	server := receipt.NewServer(session, basicAuth)

	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr))
	if authUser != "" || authPass != "" {
		slog.Info("Basic auth enabled", "user", authUser)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}
