package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/docintel/cache"
	"github.com/hazyhaar/docintel/extract"
	"github.com/hazyhaar/docintel/extractor"
	"github.com/hazyhaar/docintel/ocr"
)

var version = "0.1.0"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	flagConfig   string
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:   "docintel",
	Short: "Docintel - document intelligence extraction engine",
	Long: `Docintel extracts structured content from documents: text, Markdown,
HTML, PDF (with OCR fallback for scanned pages), office documents,
spreadsheets, email, archives and images.

Use docintel to extract single files, run batches, detect formats, or
serve the engine over HTTP and MCP.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to a YAML extraction config")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", env("LOG_LEVEL", "info"), "log level (debug|info|warn|error)")

	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(detectCmd)
	rootCmd.AddCommand(formatsCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(serveCmd)
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// setupLogger installs a JSON slog logger at the requested level.
func setupLogger() *slog.Logger {
	var lvl slog.Level
	switch flagLogLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger
}

// setupEngine builds the engine with built-in plugins registered and the
// extraction config loaded.
func setupEngine(logger *slog.Logger) (*extract.Engine, *extract.Config, error) {
	extractor.RegisterBuiltins()
	ocr.RegisterBuiltins(logger)

	cfg := extract.DefaultConfig()
	if flagConfig != "" {
		loaded, err := extract.LoadConfig(flagConfig)
		if err != nil {
			return nil, nil, err
		}
		cfg = loaded
	}
	cfg.Logger = logger

	engine := extract.NewEngine(extract.EngineConfig{
		DocumentCache: cacheConfig("documents.db", logger),
		OCRCache:      cacheConfig("ocr.db", logger),
		TableCache:    cacheConfig("tables.db", logger),
		MIMECache:     cache.Config{Logger: logger},
		Logger:        logger,
	})
	return engine, cfg, nil
}

// cacheConfig enables the sqlite disk tier when DOCINTEL_CACHE_DIR is set.
func cacheConfig(file string, logger *slog.Logger) cache.Config {
	c := cache.Config{Logger: logger}
	if dir := os.Getenv("DOCINTEL_CACHE_DIR"); dir != "" {
		c.Path = filepath.Join(dir, file)
	}
	return c
}
