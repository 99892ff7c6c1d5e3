package extract

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hazyhaar/docintel/cache"
	"github.com/hazyhaar/docintel/detect"
	"github.com/hazyhaar/docintel/fault"
)

// EngineConfig configures the four cache instances behind an Engine.
type EngineConfig struct {
	DocumentCache cache.Config
	OCRCache      cache.Config
	TableCache    cache.Config
	MIMECache     cache.Config

	// Logger overrides the default slog logger.
	Logger *slog.Logger
}

// Engine is the extraction orchestrator. It resolves formats, consults the
// caches, invokes registered extractors with panic isolation, applies the
// PDF OCR fallback, and threads results through the validator and
// post-processor chains.
type Engine struct {
	logger *slog.Logger

	docCache   *cache.Cache
	ocrCache   *cache.Cache
	tableCache *cache.Cache
	mimeCache  *cache.Cache

	// renderPDF turns PDF bytes into per-page images for OCR. Replaceable
	// in tests; defaults to the pdftoppm renderer.
	renderPDF pageRenderer
}

// NewEngine creates an Engine with its four caches.
func NewEngine(cfg EngineConfig) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	// The MIME cache holds tiny entries; give it a small default budget so
	// an unconfigured engine doesn't reserve the full document budget twice.
	if cfg.MIMECache.MaxBytes == 0 {
		cfg.MIMECache.MaxBytes = 4 * 1024 * 1024
	}
	return &Engine{
		logger:     logger,
		docCache:   cache.New(cfg.DocumentCache),
		ocrCache:   cache.New(cfg.OCRCache),
		tableCache: cache.New(cfg.TableCache),
		mimeCache:  cache.New(cfg.MIMECache),
		renderPDF:  renderWithPdftoppm,
	}
}

// Close releases the cache instances.
func (e *Engine) Close() error {
	var firstErr error
	for _, c := range []*cache.Cache{e.docCache, e.ocrCache, e.tableCache, e.mimeCache} {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// CacheStats reports the four cache snapshots keyed by cache name.
func (e *Engine) CacheStats() map[string]cache.Stats {
	return map[string]cache.Stats{
		"document": e.docCache.Stats(),
		"ocr":      e.ocrCache.Stats(),
		"table":    e.tableCache.Stats(),
		"mime":     e.mimeCache.Stats(),
	}
}

// ClearCaches drops every cached entry across all four instances.
func (e *Engine) ClearCaches() {
	e.docCache.Clear()
	e.ocrCache.Clear()
	e.tableCache.Clear()
	e.mimeCache.Clear()
}

// ExtractFile extracts a document from the filesystem.
func (e *Engine) ExtractFile(ctx context.Context, path string, cfg *Config) (*Result, error) {
	if path == "" {
		return nil, fault.Validation("path must not be empty")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fault.IO(fmt.Sprintf("read %s", path), err)
	}
	return e.extract(ctx, path, data, "", cfg)
}

// ExtractBytes extracts a document from a byte buffer. mimeHint, when
// non-empty, skips content sniffing after validation.
func (e *Engine) ExtractBytes(ctx context.Context, data []byte, mimeHint string, cfg *Config) (*Result, error) {
	return e.extract(ctx, "", data, mimeHint, cfg)
}

// ExtractTables returns just the tables of a document, served from the
// table cache when possible.
func (e *Engine) ExtractTables(ctx context.Context, path string, cfg *Config) ([]Table, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fault.IO(fmt.Sprintf("read %s", path), err)
	}

	format, err := e.resolveFormat(ctx, path, data, "")
	if err != nil {
		return nil, err
	}
	key := "tables:" + string(format) + ":" + cfg.Fingerprint(data)
	raw, err := e.tableCache.GetOrCompute(ctx, key, func(ctx context.Context) ([]byte, error) {
		res, err := e.extract(ctx, path, data, "", cfg)
		if err != nil {
			return nil, err
		}
		out, err := json.Marshal(res.Tables)
		if err != nil {
			return nil, fault.Serialization("encode tables", err)
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}

	var tables []Table
	if err := json.Unmarshal(raw, &tables); err != nil {
		return nil, fault.Serialization("decode cached tables", err)
	}
	if tables == nil {
		tables = []Table{}
	}
	return tables, nil
}

func (e *Engine) extract(ctx context.Context, path string, data []byte, mimeHint string, cfg *Config) (*Result, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.defaults()

	if len(data) == 0 {
		return nil, fault.Validation("input must not be empty")
	}
	if int64(len(data)) > cfg.MaxFileSize {
		return nil, fault.Validation("input too large: %d bytes (max %d)", len(data), cfg.MaxFileSize)
	}

	format, err := e.resolveFormat(ctx, path, data, mimeHint)
	if err != nil {
		return nil, err
	}

	if !cfg.UseCache {
		return e.pipeline(ctx, path, data, format, cfg)
	}

	// The resolved format is part of the key: the same bytes extracted under
	// different MIME hints must never share a cached result.
	key := string(format) + ":" + cfg.Fingerprint(data)
	raw, err := e.docCache.GetOrCompute(ctx, key, func(ctx context.Context) ([]byte, error) {
		res, err := e.pipeline(ctx, path, data, format, cfg)
		if err != nil {
			return nil, err
		}
		out, err := json.Marshal(res)
		if err != nil {
			return nil, fault.Serialization("encode result for cache", err)
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}

	var res Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fault.Serialization("decode cached result", err)
	}
	return &res, nil
}

// resolveFormat validates the caller's MIME hint or sniffs the content,
// caching sniff results by content hash.
func (e *Engine) resolveFormat(ctx context.Context, path string, data []byte, mimeHint string) (detect.Format, error) {
	if mimeHint != "" {
		return detect.Validate(mimeHint)
	}

	// DetectFromPath tie-breaks on the extension, so same-content files with
	// different extensions need distinct cache keys.
	sum := sha256.Sum256(head(data, 8192))
	key := "mime:" + hex.EncodeToString(sum[:])
	if path != "" {
		key += ":" + strings.ToLower(filepath.Ext(path))
	}
	raw, err := e.mimeCache.GetOrCompute(ctx, key, func(ctx context.Context) ([]byte, error) {
		var f detect.Format
		var err error
		if path != "" {
			f, err = detect.DetectFromPath(path, data)
		} else {
			f, err = detect.Detect(data)
		}
		if err != nil {
			return nil, err
		}
		return []byte(f), nil
	})
	if err != nil {
		return "", err
	}
	return detect.Format(raw), nil
}

// pipeline runs extraction for one resolved input: extractor lookup,
// panic-isolated invocation, PDF fallback, validators, post-processors and
// chunking. Caching happens in the caller.
func (e *Engine) pipeline(ctx context.Context, path string, data []byte, format detect.Format, cfg *Config) (*Result, error) {
	ext, name := e.lookupExtractor(format)
	if ext == nil {
		return nil, fault.UnsupportedFormat(string(format))
	}

	start := time.Now()
	log := cfg.Logger
	log.Debug("extracting", "format", format, "extractor", name, "path", path, "bytes", len(data))

	req := Request{Path: path, Data: data, Format: format, Config: cfg}

	var res *Result
	err := invokePlugin(name, func() error {
		var err error
		res, err = ext.Extract(ctx, req)
		return err
	})
	if err != nil {
		return nil, asExtractionError(err, name)
	}
	if res == nil {
		return nil, fault.PluginFault(name, fmt.Sprintf("extractor %q returned no result", name), nil)
	}
	if res.MimeType == "" {
		res.MimeType = detect.MimeType(format)
	}

	if format == detect.FormatPDF {
		res, err = e.runPDFFallback(ctx, data, res, cfg)
		if err != nil {
			return nil, err
		}
	}

	if err := e.runValidators(ctx, res); err != nil {
		return nil, err
	}
	if err := e.runPostProcessors(ctx, res); err != nil {
		return nil, err
	}

	if cfg.Chunking.Enabled && len(res.Chunks) == 0 {
		res.Chunks = chunkContent(res.Content, cfg.Chunking.MaxChars, cfg.Chunking.MaxOverlap)
	}
	if res.Tables == nil {
		res.Tables = []Table{}
	}
	res.Success = true

	log.Debug("extracted", "format", format, "duration", time.Since(start),
		"content_chars", len(res.Content), "tables", len(res.Tables))
	return res, nil
}

// lookupExtractor returns the highest-priority extractor supporting format.
func (e *Engine) lookupExtractor(format detect.Format) (Extractor, string) {
	for _, entry := range extractors.Ordered() {
		if entry.Value.Supports(format) {
			return entry.Value, entry.Name
		}
	}
	return nil, ""
}

// runValidators applies the validator chain in priority order. A rejection
// aborts the pipeline for this item.
func (e *Engine) runValidators(ctx context.Context, res *Result) error {
	for _, entry := range validators.Ordered() {
		v := entry.Value
		err := invokePlugin(entry.Name, func() error { return v.Validate(ctx, res) })
		if err != nil {
			var fe *fault.Error
			if errors.As(err, &fe) {
				return fe
			}
			return fault.Wrap(fault.KindValidation,
				fmt.Sprintf("validator %q rejected result", entry.Name), err)
		}
	}
	return nil
}

// runPostProcessors applies the post-processor chain in priority order,
// re-checking required invariants after every stage. A violated invariant
// is fatal for this item only.
func (e *Engine) runPostProcessors(ctx context.Context, res *Result) error {
	for _, entry := range postProcessors.Ordered() {
		p := entry.Value
		err := invokePlugin(entry.Name, func() error { return p.Process(ctx, res) })
		if err != nil {
			var fe *fault.Error
			if errors.As(err, &fe) && fe.Kind() == fault.KindRuntime {
				return fe
			}
			return fault.PluginFault(entry.Name, fmt.Sprintf("post-processor %q failed", entry.Name), err)
		}
		if res.MimeType == "" {
			return fault.Runtime(fmt.Sprintf("post-processor %q corrupted result: empty mime_type", entry.Name), nil)
		}
	}
	return nil
}

// invokePlugin runs a plugin callback, converting panics into Runtime
// errors carrying origin context so they never unwind past the engine.
func invokePlugin(name string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			pe := fault.FromPanic(r)
			pe.Plugin = name
			err = pe
		}
	}()
	return fn()
}

// asExtractionError normalizes an extractor failure: fault errors pass
// through, anything else is a parsing error.
func asExtractionError(err error, name string) error {
	var fe *fault.Error
	if errors.As(err, &fe) {
		return err
	}
	return fault.Parsing(fmt.Sprintf("extractor %q failed", name), err)
}

func head(data []byte, n int) []byte {
	if len(data) > n {
		return data[:n]
	}
	return data
}
