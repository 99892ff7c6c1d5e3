package extract

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config is the per-extraction options bag. It hashes into the cache key,
// so two configs that affect output differently never collide on a cached
// value.
type Config struct {
	// UseCache enables the document cache for this extraction.
	UseCache bool `json:"use_cache" yaml:"use_cache"`
	// ForceOCR skips the text-layer quality check and always runs OCR on
	// PDF inputs.
	ForceOCR bool `json:"force_ocr" yaml:"force_ocr"`

	OCR      OCRConfig      `json:"ocr" yaml:"ocr"`
	Chunking ChunkingConfig `json:"chunking" yaml:"chunking"`
	Images   ImageConfig    `json:"images" yaml:"images"`

	// MaxConcurrent bounds batch parallelism. Default: GOMAXPROCS.
	MaxConcurrent int `json:"max_concurrent" yaml:"max_concurrent"`
	// MaxFileSize rejects larger inputs before extraction (default 100 MB).
	MaxFileSize int64 `json:"max_file_size" yaml:"max_file_size"`

	// Logger for per-extraction diagnostics.
	Logger *slog.Logger `json:"-" yaml:"-"`
}

// OCRConfig selects and tunes the OCR backend.
type OCRConfig struct {
	// Backend names a registered OCR backend. Empty picks the highest
	// priority registered backend.
	Backend string `json:"backend" yaml:"backend"`
	// Language is the recognition language (default "eng").
	Language string `json:"language" yaml:"language"`
	// PSM is the page segmentation mode (default 3, full auto).
	PSM int `json:"psm" yaml:"psm"`
	// DPI for page rendering before recognition (default 150).
	DPI int `json:"dpi" yaml:"dpi"`
}

// ChunkingConfig controls content chunking.
type ChunkingConfig struct {
	Enabled    bool `json:"enabled" yaml:"enabled"`
	MaxChars   int  `json:"max_chars" yaml:"max_chars"`
	MaxOverlap int  `json:"max_overlap" yaml:"max_overlap"`
}

// ImageConfig controls embedded image extraction.
type ImageConfig struct {
	// Extract includes embedded images in the result.
	Extract bool `json:"extract" yaml:"extract"`
	// OCR runs the registered OCR backend on each extracted image.
	OCR bool `json:"ocr" yaml:"ocr"`
}

// DefaultConfig returns the default extraction configuration.
func DefaultConfig() *Config {
	c := &Config{UseCache: true}
	c.defaults()
	return c
}

func (c *Config) defaults() {
	if c.OCR.Language == "" {
		c.OCR.Language = "eng"
	}
	if c.OCR.PSM <= 0 {
		c.OCR.PSM = 3
	}
	if c.OCR.DPI <= 0 {
		c.OCR.DPI = 150
	}
	if c.Chunking.MaxChars <= 0 {
		c.Chunking.MaxChars = 2000
	}
	if c.Chunking.MaxOverlap < 0 || c.Chunking.MaxOverlap >= c.Chunking.MaxChars {
		c.Chunking.MaxOverlap = 200
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = runtime.GOMAXPROCS(0)
	}
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = 100 * 1024 * 1024
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// LoadConfig reads a YAML configuration file and applies defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := Config{UseCache: true}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.defaults()
	return &cfg, nil
}

// fingerprintFields is the subset of options that change extraction output.
// Cache toggles and concurrency limits are deliberately excluded.
type fingerprintFields struct {
	ForceOCR bool           `json:"force_ocr"`
	OCR      OCRConfig      `json:"ocr"`
	Chunking ChunkingConfig `json:"chunking"`
	Images   ImageConfig    `json:"images"`
}

// Fingerprint derives the cache key for content extracted under this
// configuration: content identity plus the output-affecting option subset.
func (c *Config) Fingerprint(content []byte) string {
	h := sha256.New()
	h.Write(content)

	sub, _ := json.Marshal(fingerprintFields{
		ForceOCR: c.ForceOCR,
		OCR:      c.OCR,
		Chunking: c.Chunking,
		Images:   c.Images,
	})
	h.Write(sub)
	return hex.EncodeToString(h.Sum(nil))
}
