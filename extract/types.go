// Package extract implements the document extraction orchestrator: format
// resolution, plugin registries, the PDF text-vs-OCR fallback decision, the
// validation/post-processing pipeline, result caching and batch runs.
//
// Usage:
//
//	engine := extract.NewEngine(extract.EngineConfig{})
//	defer engine.Close()
//	extractor.RegisterBuiltins()
//	res, err := engine.ExtractFile(ctx, "report.pdf", nil)
package extract

import (
	"context"

	"github.com/hazyhaar/docintel/detect"
)

// Result is the outcome of one extraction. Immutable once returned; owned
// exclusively by the caller.
type Result struct {
	Content           string           `json:"content"`
	MimeType          string           `json:"mime_type"`
	Metadata          Metadata         `json:"metadata"`
	Tables            []Table          `json:"tables"`
	DetectedLanguages []string         `json:"detected_languages,omitempty"`
	Chunks            []Chunk          `json:"chunks,omitempty"`
	Images            []ExtractedImage `json:"images,omitempty"`
	Success           bool             `json:"success"`
}

// Table is a detected table: ordered 2-D cells plus a derived Markdown
// rendering and the page it came from.
type Table struct {
	Cells      [][]string `json:"cells"`
	Markdown   string     `json:"markdown"`
	PageNumber int        `json:"page_number"`
}

// Chunk is a substring of the content with positional metadata and an
// optional embedding vector. The engine never computes embeddings.
type Chunk struct {
	Content   string        `json:"content"`
	Embedding []float32     `json:"embedding,omitempty"`
	Metadata  ChunkMetadata `json:"metadata"`
}

// ChunkMetadata locates a chunk inside its document.
type ChunkMetadata struct {
	CharStart   int  `json:"char_start"`
	CharEnd     int  `json:"char_end"`
	TokenCount  *int `json:"token_count,omitempty"`
	ChunkIndex  int  `json:"chunk_index"`
	TotalChunks int  `json:"total_chunks"`
}

// ExtractedImage is an image pulled out of a document. When OCR ran on the
// image the nested result is owned by the image.
type ExtractedImage struct {
	Data       []byte  `json:"data"`
	Format     string  `json:"format"`
	ImageIndex int     `json:"image_index"`
	PageNumber *int    `json:"page_number,omitempty"`
	Width      *uint32 `json:"width,omitempty"`
	Height     *uint32 `json:"height,omitempty"`
	IsMask     bool    `json:"is_mask"`
	OCRResult  *Result `json:"ocr_result,omitempty"`
}

// Request describes one extraction input handed to an Extractor.
type Request struct {
	// Path is the source file path, empty for byte-buffer inputs.
	Path string
	// Data is the full document content.
	Data []byte
	// Format is the resolved format identifier.
	Format detect.Format
	// Config is the effective extraction configuration, never nil.
	Config *Config
}

// Extractor converts a document of one or more formats into a Result.
// Implementations set Content, MimeType, Metadata and Tables; the engine
// owns caching, fallback, validation, post-processing and chunking.
type Extractor interface {
	Supports(f detect.Format) bool
	Extract(ctx context.Context, req Request) (*Result, error)
}

// OCROutput is what an OCR backend produces for one page image.
type OCROutput struct {
	Text       string
	Tables     []Table
	Confidence float64
}

// OCRBackend runs character recognition on a rendered page image.
type OCRBackend interface {
	Run(ctx context.Context, image []byte, cfg *Config) (*OCROutput, error)
}

// Validator inspects a result after extraction. A non-nil return rejects
// the result and aborts the pipeline for that item.
type Validator interface {
	Validate(ctx context.Context, res *Result) error
}

// PostProcessor transforms a result in place after validation. Required
// invariants are re-checked after each stage, so a processor cannot corrupt
// a result silently.
type PostProcessor interface {
	Process(ctx context.Context, res *Result) error
}
