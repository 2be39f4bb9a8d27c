package main

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/expense-report/internal/expense"
	"github.com/zombor/expense-report/internal/scanning"
	"github.com/zombor/expense-report/internal/settings"
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

	// Values from .env never override the real environment
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	fs := ff.NewFlagSet("expense-report")
	var (
		port         = fs.IntLong("port", 8080, "HTTP server port")
		dbPath       = fs.StringLong("db", "expense-report.db", "Database file path")
		storagePath  = fs.StringLong("storage", "./files", "Directory for receipts and generated reports")
		scannerType  = fs.StringLong("scanner", "gemini", "Scanner type: 'gemini', 'openai', 'ollama' or 'none'")
		geminiKey    = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel  = fs.StringLong("gemini-model", "gemini-2.5-flash", "Google Gemini model name")
		openaiKey    = fs.StringLong("openai-key", "", "OpenAI API key (or set OPENAI_API_KEY env var)")
		openaiModel  = fs.StringLong("openai-model", "gpt-4o", "OpenAI vision model name")
		openaiURL    = fs.StringLong("openai-url", "", "OpenAI compatible API base URL (optional)")
		ollamaURL    = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel  = fs.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, qwen2-vl)")
		recipient    = fs.StringLong("report-recipient", "", "Address the report mail draft is addressed to")
		currency     = fs.StringLong("currency", "EUR", "Currency label printed on reports")
		programLabel = fs.StringLong("program-label", "EXPENSE REIMBURSEMENT FORM", "Title printed in the report header")
		authUser     = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass     = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		_            = fs.StringLong("config", "", "Config file with one 'flag value' pair per line (optional)")
		showVersion  = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("EXPENSE_REPORT"),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	slog.Info("Initializing database...")
	db, err := expense.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	settingsRepo, err := settings.NewBoltRepository(db.Handle())
	if err != nil {
		slog.Error("Failed to initialize settings", "error", err)
		os.Exit(1)
	}

	// A missing scanner is not fatal: every scan falls back to manual entry
	scanner := newScanner(scannerConfig{
		kind:        *scannerType,
		geminiKey:   firstNonEmpty(*geminiKey, os.Getenv("GEMINI_API_KEY")),
		geminiModel: *geminiModel,
		openaiKey:   firstNonEmpty(*openaiKey, os.Getenv("OPENAI_API_KEY")),
		openaiModel: *openaiModel,
		openaiURL:   *openaiURL,
		ollamaURL:   *ollamaURL,
		ollamaModel: *ollamaModel,
	})
	if scanner != nil {
		defer scanner.Close()
	}

	slog.Info("Initializing storage...")
	store, err := expense.NewLocalStorage(*storagePath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	service := expense.NewService(db, scanner, store, settingsRepo, expense.Options{
		Recipient:    *recipient,
		Currency:     *currency,
		ProgramLabel: *programLabel,
	})

	basicAuth := expense.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := expense.NewServer(service, basicAuth)

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "version", version)
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}
	if *recipient == "" {
		slog.Warn("No report recipient configured; mail drafts will have an empty To field")
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}

type scannerConfig struct {
	kind        string
	geminiKey   string
	geminiModel string
	openaiKey   string
	openaiModel string
	openaiURL   string
	ollamaURL   string
	ollamaModel string
}

// newScanner builds the configured OCR backend, or returns nil when scanning is unavailable
func newScanner(cfg scannerConfig) scanning.Scanner {
	switch cfg.kind {
	case "gemini":
		if cfg.geminiKey == "" {
			slog.Warn("Gemini API key missing; receipts must be entered manually. Set --gemini-key or GEMINI_API_KEY")
			return nil
		}
		slog.Info("Initializing Gemini scanner...", "model", cfg.geminiModel)
		s, err := scanning.NewGemini(cfg.geminiKey, cfg.geminiModel)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			return nil
		}
		return s
	case "openai":
		if cfg.openaiKey == "" {
			slog.Warn("OpenAI API key missing; receipts must be entered manually. Set --openai-key or OPENAI_API_KEY")
			return nil
		}
		slog.Info("Initializing OpenAI scanner...", "model", cfg.openaiModel)
		s, err := scanning.NewOpenAI(cfg.openaiKey, cfg.openaiModel, cfg.openaiURL)
		if err != nil {
			slog.Error("Failed to initialize OpenAI", "error", err)
			return nil
		}
		return s
	case "ollama":
		slog.Info("Initializing Ollama scanner...", "url", cfg.ollamaURL, "model", cfg.ollamaModel)
		s, err := scanning.NewOllama(cfg.ollamaURL, cfg.ollamaModel)
		if err != nil {
			slog.Error("Failed to initialize Ollama", "error", err)
			return nil
		}
		return s
	case "none":
		slog.Info("Receipt scanning disabled")
		return nil
	default:
		slog.Error("Invalid scanner type, scanning disabled", "type", cfg.kind, "valid", "gemini, openai, ollama or none")
		return nil
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
