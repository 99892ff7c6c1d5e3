package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/hazyhaar/docintel/detect"
	"github.com/hazyhaar/docintel/fault"
)

// resetRegistries empties the process-wide registries for a test and
// restores them to empty afterwards.
func resetRegistries(t *testing.T) {
	t.Helper()
	clearAll := func() {
		extractors.Clear()
		ocrBackends.Clear()
		validators.Clear()
		postProcessors.Clear()
	}
	clearAll()
	t.Cleanup(clearAll)
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e := NewEngine(EngineConfig{})
	t.Cleanup(func() { e.Close() })
	return e
}

type fakeExtractor struct {
	formats []detect.Format
	calls   atomic.Int64
	fn      func(req Request) (*Result, error)
}

func (f *fakeExtractor) Supports(format detect.Format) bool {
	for _, ff := range f.formats {
		if ff == format {
			return true
		}
	}
	return false
}

func (f *fakeExtractor) Extract(_ context.Context, req Request) (*Result, error) {
	f.calls.Add(1)
	if f.fn != nil {
		return f.fn(req)
	}
	return &Result{
		Content:  string(req.Data),
		MimeType: detect.MimeType(req.Format),
	}, nil
}

func writeTemp(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestExtractFile(t *testing.T) {
	resetRegistries(t)
	e := newTestEngine(t)

	fx := &fakeExtractor{formats: []detect.Format{detect.FormatTXT}}
	extractors.Register("fake-text", 0, fx)

	path := writeTemp(t, "doc.txt", []byte("hello world"))
	res, err := e.ExtractFile(context.Background(), path, nil)
	if err != nil {
		t.Fatalf("ExtractFile: %v", err)
	}
	if !res.Success {
		t.Error("Success = false")
	}
	if res.Content != "hello world" {
		t.Errorf("Content = %q", res.Content)
	}
	if res.MimeType != "text/plain" {
		t.Errorf("MimeType = %q", res.MimeType)
	}
	if res.Tables == nil || len(res.Tables) != 0 {
		t.Errorf("Tables = %v, want empty non-nil", res.Tables)
	}
}

func TestExtractValidationErrors(t *testing.T) {
	resetRegistries(t)
	e := newTestEngine(t)

	if _, err := e.ExtractBytes(context.Background(), nil, "", nil); fault.KindOf(err) != fault.KindValidation {
		t.Errorf("empty buffer: kind = %q, want validation", fault.KindOf(err))
	}
	if _, err := e.ExtractFile(context.Background(), "", nil); fault.KindOf(err) != fault.KindValidation {
		t.Errorf("empty path: kind = %q, want validation", fault.KindOf(err))
	}
	if _, err := e.ExtractFile(context.Background(), "/nonexistent/file.txt", nil); fault.KindOf(err) != fault.KindIO {
		t.Errorf("missing file: kind = %q, want io", fault.KindOf(err))
	}
	if _, err := e.ExtractBytes(context.Background(), []byte("data"), "not a mime", nil); fault.KindOf(err) != fault.KindUnsupportedFormat {
		t.Errorf("bad hint: kind = %q, want unsupported_format", fault.KindOf(err))
	}
}

func TestExtractUnsupportedFormat(t *testing.T) {
	resetRegistries(t)
	e := newTestEngine(t)

	// No extractor registered for txt.
	_, err := e.ExtractBytes(context.Background(), []byte("plain text"), "text/plain", nil)
	if fault.KindOf(err) != fault.KindUnsupportedFormat {
		t.Errorf("kind = %q, want unsupported_format", fault.KindOf(err))
	}
}

func TestCacheSkipsReExtraction(t *testing.T) {
	resetRegistries(t)
	e := newTestEngine(t)

	fx := &fakeExtractor{formats: []detect.Format{detect.FormatTXT}}
	extractors.Register("fake-text", 0, fx)

	path := writeTemp(t, "doc.txt", []byte("cache me"))

	res1, err := e.ExtractFile(context.Background(), path, nil)
	if err != nil {
		t.Fatalf("first extract: %v", err)
	}
	res2, err := e.ExtractFile(context.Background(), path, nil)
	if err != nil {
		t.Fatalf("second extract: %v", err)
	}

	if n := fx.calls.Load(); n != 1 {
		t.Errorf("extractor invoked %d times, want 1 (cache hit)", n)
	}

	b1, _ := json.Marshal(res1)
	b2, _ := json.Marshal(res2)
	if string(b1) != string(b2) {
		t.Errorf("cached result differs:\n%s\n%s", b1, b2)
	}
}

func TestCacheDisabled(t *testing.T) {
	resetRegistries(t)
	e := newTestEngine(t)

	fx := &fakeExtractor{formats: []detect.Format{detect.FormatTXT}}
	extractors.Register("fake-text", 0, fx)

	path := writeTemp(t, "doc.txt", []byte("no cache"))
	cfg := DefaultConfig()
	cfg.UseCache = false

	e.ExtractFile(context.Background(), path, cfg)
	e.ExtractFile(context.Background(), path, cfg)

	if n := fx.calls.Load(); n != 2 {
		t.Errorf("extractor invoked %d times, want 2 (cache disabled)", n)
	}
}

func TestConfigChangesCacheKey(t *testing.T) {
	resetRegistries(t)
	e := newTestEngine(t)

	fx := &fakeExtractor{formats: []detect.Format{detect.FormatTXT}}
	extractors.Register("fake-text", 0, fx)

	path := writeTemp(t, "doc.txt", []byte("same content"))

	cfgA := DefaultConfig()
	cfgB := DefaultConfig()
	cfgB.Chunking.Enabled = true

	e.ExtractFile(context.Background(), path, cfgA)
	e.ExtractFile(context.Background(), path, cfgB)

	if n := fx.calls.Load(); n != 2 {
		t.Errorf("extractor invoked %d times, want 2 (different configs must not collide)", n)
	}
}

func TestMimeHintChangesCacheKey(t *testing.T) {
	resetRegistries(t)
	e := newTestEngine(t)

	asText := &fakeExtractor{formats: []detect.Format{detect.FormatTXT}, fn: func(Request) (*Result, error) {
		return &Result{Content: "as text", MimeType: "text/plain"}, nil
	}}
	asHTML := &fakeExtractor{formats: []detect.Format{detect.FormatHTML}, fn: func(Request) (*Result, error) {
		return &Result{Content: "as html", MimeType: "text/html"}, nil
	}}
	extractors.Register("fake-text", 0, asText)
	extractors.Register("fake-html", 0, asHTML)

	data := []byte("<p>same bytes, different hints</p>")

	first, err := e.ExtractBytes(context.Background(), data, "text/plain", nil)
	if err != nil {
		t.Fatalf("text hint: %v", err)
	}
	if first.Content != "as text" {
		t.Errorf("text hint: Content = %q", first.Content)
	}

	second, err := e.ExtractBytes(context.Background(), data, "text/html", nil)
	if err != nil {
		t.Fatalf("html hint: %v", err)
	}
	if second.Content != "as html" || second.MimeType != "text/html" {
		t.Errorf("html hint served the text-hinted result: Content = %q, MimeType = %q",
			second.Content, second.MimeType)
	}
	if n := asHTML.calls.Load(); n != 1 {
		t.Errorf("html extractor invoked %d times, want 1", n)
	}
}

func TestMimeCacheKeyedByExtension(t *testing.T) {
	resetRegistries(t)
	e := newTestEngine(t)

	fx := &fakeExtractor{
		formats: []detect.Format{detect.FormatMD, detect.FormatTXT},
		fn: func(req Request) (*Result, error) {
			return &Result{Content: string(req.Format), MimeType: detect.MimeType(req.Format)}, nil
		},
	}
	extractors.Register("fake-multi", 0, fx)

	content := []byte("plain words with no structural signature")
	dir := t.TempDir()
	md := filepath.Join(dir, "notes.md")
	txt := filepath.Join(dir, "notes.txt")
	os.WriteFile(md, content, 0o644)
	os.WriteFile(txt, content, 0o644)

	resMD, err := e.ExtractFile(context.Background(), md, nil)
	if err != nil {
		t.Fatalf("md: %v", err)
	}
	resTXT, err := e.ExtractFile(context.Background(), txt, nil)
	if err != nil {
		t.Fatalf("txt: %v", err)
	}

	if resMD.Content != "md" {
		t.Errorf("notes.md resolved as %q, want md", resMD.Content)
	}
	if resTXT.Content != "txt" {
		t.Errorf("notes.txt inherited notes.md's detection: got %q, want txt", resTXT.Content)
	}
}

type rejectValidator struct{ reason string }

func (v *rejectValidator) Validate(_ context.Context, _ *Result) error {
	return fault.Validation("%s", v.reason)
}

func TestValidatorRejectAbortsPipeline(t *testing.T) {
	resetRegistries(t)
	e := newTestEngine(t)

	extractors.Register("fake-text", 0, &fakeExtractor{formats: []detect.Format{detect.FormatTXT}})
	validators.Register("reject-all", 0, &rejectValidator{reason: "content policy"})

	path := writeTemp(t, "doc.txt", []byte("anything"))
	_, err := e.ExtractFile(context.Background(), path, nil)
	if fault.KindOf(err) != fault.KindValidation {
		t.Errorf("kind = %q, want validation", fault.KindOf(err))
	}
}

type orderProbe struct {
	name string
	seen *[]string
}

func (p *orderProbe) Process(_ context.Context, res *Result) error {
	*p.seen = append(*p.seen, p.name)
	return nil
}

func TestPostProcessorOrder(t *testing.T) {
	resetRegistries(t)
	e := newTestEngine(t)

	extractors.Register("fake-text", 0, &fakeExtractor{formats: []detect.Format{detect.FormatTXT}})

	var seen []string
	postProcessors.Register("low", 1, &orderProbe{name: "low", seen: &seen})
	postProcessors.Register("high", 10, &orderProbe{name: "high", seen: &seen})
	postProcessors.Register("mid", 5, &orderProbe{name: "mid", seen: &seen})

	path := writeTemp(t, "doc.txt", []byte("x"))
	if _, err := e.ExtractFile(context.Background(), path, nil); err != nil {
		t.Fatalf("extract: %v", err)
	}

	want := []string{"high", "mid", "low"}
	if len(seen) != 3 || seen[0] != want[0] || seen[1] != want[1] || seen[2] != want[2] {
		t.Errorf("post-processor order = %v, want %v", seen, want)
	}
}

type corruptingProcessor struct{}

func (corruptingProcessor) Process(_ context.Context, res *Result) error {
	res.MimeType = ""
	return nil
}

func TestPostProcessorCorruptionIsFatal(t *testing.T) {
	resetRegistries(t)
	e := newTestEngine(t)

	extractors.Register("fake-text", 0, &fakeExtractor{formats: []detect.Format{detect.FormatTXT}})
	postProcessors.Register("corruptor", 0, corruptingProcessor{})

	path := writeTemp(t, "doc.txt", []byte("x"))
	_, err := e.ExtractFile(context.Background(), path, nil)
	if fault.KindOf(err) != fault.KindRuntime {
		t.Errorf("kind = %q, want runtime", fault.KindOf(err))
	}
}

type panickingProcessor struct{}

func (panickingProcessor) Process(_ context.Context, _ *Result) error {
	panic("plugin went off the rails")
}

func TestPluginPanicIsRecovered(t *testing.T) {
	resetRegistries(t)
	e := newTestEngine(t)

	extractors.Register("fake-text", 0, &fakeExtractor{formats: []detect.Format{detect.FormatTXT}})
	postProcessors.Register("panicker", 0, panickingProcessor{})

	path := writeTemp(t, "doc.txt", []byte("x"))
	_, err := e.ExtractFile(context.Background(), path, nil)
	if err == nil {
		t.Fatal("expected error from panicking plugin")
	}
	if fault.KindOf(err) != fault.KindRuntime {
		t.Errorf("kind = %q, want runtime", fault.KindOf(err))
	}

	var fe *fault.Error
	if !errors.As(err, &fe) {
		t.Fatalf("expected *fault.Error, got %T", err)
	}
	if fe.Plugin != "panicker" {
		t.Errorf("Plugin = %q, want panicker", fe.Plugin)
	}
	if fe.Panic == nil || fe.Panic.Message != "plugin went off the rails" {
		t.Errorf("Panic context = %+v", fe.Panic)
	}
}

func TestChunkingEnabled(t *testing.T) {
	resetRegistries(t)
	e := newTestEngine(t)

	extractors.Register("fake-text", 0, &fakeExtractor{formats: []detect.Format{detect.FormatTXT}})

	content := ""
	for i := 0; i < 100; i++ {
		content += fmt.Sprintf("word%d ", i)
	}
	path := writeTemp(t, "doc.txt", []byte(content))

	cfg := DefaultConfig()
	cfg.Chunking.Enabled = true
	cfg.Chunking.MaxChars = 100
	cfg.Chunking.MaxOverlap = 10

	res, err := e.ExtractFile(context.Background(), path, cfg)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(res.Chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(res.Chunks))
	}
	for i, c := range res.Chunks {
		if c.Metadata.ChunkIndex != i {
			t.Errorf("chunk %d: index = %d", i, c.Metadata.ChunkIndex)
		}
		if c.Metadata.TotalChunks != len(res.Chunks) {
			t.Errorf("chunk %d: total = %d, want %d", i, c.Metadata.TotalChunks, len(res.Chunks))
		}
		if i > 0 && c.Metadata.CharStart <= res.Chunks[i-1].Metadata.CharStart {
			t.Errorf("chunk %d: offsets not monotonic", i)
		}
	}
}

// --- PDF OCR fallback ---

type fakeOCR struct {
	text  string
	calls atomic.Int64
	err   error
}

func (f *fakeOCR) Run(_ context.Context, _ []byte, _ *Config) (*OCROutput, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return &OCROutput{Text: f.text, Confidence: 0.9}, nil
}

func pdfBytes(content string) []byte {
	return []byte("%PDF-1.4\n" + content)
}

func setupPDFEngine(t *testing.T, extracted string) (*Engine, *fakeExtractor, *fakeOCR) {
	t.Helper()
	e := newTestEngine(t)
	e.renderPDF = func(_ context.Context, _ []byte, _ int) ([][]byte, error) {
		return [][]byte{[]byte("page-image-1"), []byte("page-image-2")}, nil
	}

	fx := &fakeExtractor{
		formats: []detect.Format{detect.FormatPDF},
		fn: func(req Request) (*Result, error) {
			return &Result{Content: extracted, MimeType: "application/pdf"}, nil
		},
	}
	extractors.Register("fake-pdf", 0, fx)

	ocr := &fakeOCR{text: "recognized text"}
	ocrBackends.Register("fake-ocr", 0, ocr)
	return e, fx, ocr
}

func TestPDFFallbackOnEmptyText(t *testing.T) {
	resetRegistries(t)
	e, _, ocr := setupPDFEngine(t, "   \n  ")

	res, err := e.ExtractBytes(context.Background(), pdfBytes("scanned"), "application/pdf", nil)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if res.Metadata.Format.Kind != MetaOCR {
		t.Errorf("format kind = %q, want ocr", res.Metadata.Format.Kind)
	}
	if res.Content != "recognized text\n\nrecognized text" {
		t.Errorf("Content = %q", res.Content)
	}
	if n := ocr.calls.Load(); n != 2 {
		t.Errorf("ocr ran %d times, want 2 (one per page)", n)
	}
}

func TestPDFFallbackOnGarbageText(t *testing.T) {
	resetRegistries(t)
	garbage := "\ufffd\ufffd\ufffd\ufffd\ufffd\ufffd ok"
	e, _, _ := setupPDFEngine(t, garbage)

	res, err := e.ExtractBytes(context.Background(), pdfBytes("x"), "application/pdf", nil)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if res.Metadata.Format.Kind != MetaOCR {
		t.Errorf("format kind = %q, want ocr (replacement-char text must trigger fallback)", res.Metadata.Format.Kind)
	}
}

func TestPDFNoFallbackOnCleanText(t *testing.T) {
	resetRegistries(t)
	e, _, ocr := setupPDFEngine(t, "This is a perfectly normal searchable PDF page with readable text.")

	res, err := e.ExtractBytes(context.Background(), pdfBytes("x"), "application/pdf", nil)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if res.Metadata.Format.Kind == MetaOCR {
		t.Error("clean text must not trigger OCR fallback")
	}
	if n := ocr.calls.Load(); n != 0 {
		t.Errorf("ocr ran %d times, want 0", n)
	}
}

func TestPDFForceOCR(t *testing.T) {
	resetRegistries(t)
	e, _, ocr := setupPDFEngine(t, "clean text that would normally pass validation")

	cfg := DefaultConfig()
	cfg.ForceOCR = true
	res, err := e.ExtractBytes(context.Background(), pdfBytes("x"), "application/pdf", cfg)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if res.Metadata.Format.Kind != MetaOCR {
		t.Errorf("format kind = %q, want ocr under ForceOCR", res.Metadata.Format.Kind)
	}
	if n := ocr.calls.Load(); n == 0 {
		t.Error("ocr should have run")
	}
}

func TestPDFFallbackWithoutBackendKeepsText(t *testing.T) {
	resetRegistries(t)
	e := newTestEngine(t)
	e.renderPDF = func(_ context.Context, _ []byte, _ int) ([][]byte, error) {
		t.Fatal("renderer must not run without a backend")
		return nil, nil
	}
	extractors.Register("fake-pdf", 0, &fakeExtractor{
		formats: []detect.Format{detect.FormatPDF},
		fn: func(req Request) (*Result, error) {
			return &Result{Content: "", MimeType: "application/pdf"}, nil
		},
	})

	// Zero OCR backends is a valid state: the text-layer result stands.
	res, err := e.ExtractBytes(context.Background(), pdfBytes("x"), "application/pdf", nil)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if res.Metadata.Format.Kind == MetaOCR {
		t.Error("no backend registered, result must not claim OCR metadata")
	}
}

func TestPDFOCRBackendFailure(t *testing.T) {
	resetRegistries(t)
	e, _, ocr := setupPDFEngine(t, "")
	ocr.err = errors.New("engine crashed")

	_, err := e.ExtractBytes(context.Background(), pdfBytes("x"), "application/pdf", nil)
	if fault.KindOf(err) != fault.KindOCR {
		t.Errorf("kind = %q, want ocr", fault.KindOf(err))
	}
}

func TestOCRPageCache(t *testing.T) {
	resetRegistries(t)
	e, _, ocr := setupPDFEngine(t, "")

	cfg := DefaultConfig()
	cfg.UseCache = false // disable the document cache; the OCR cache still applies
	if _, err := e.ExtractBytes(context.Background(), pdfBytes("x"), "application/pdf", cfg); err != nil {
		t.Fatalf("first extract: %v", err)
	}
	if _, err := e.ExtractBytes(context.Background(), pdfBytes("x"), "application/pdf", cfg); err != nil {
		t.Fatalf("second extract: %v", err)
	}

	if n := ocr.calls.Load(); n != 2 {
		t.Errorf("ocr ran %d times, want 2 (per-page results cached across runs)", n)
	}
}

func TestCacheStats(t *testing.T) {
	resetRegistries(t)
	e := newTestEngine(t)

	stats := e.CacheStats()
	for _, name := range []string{"document", "ocr", "table", "mime"} {
		if _, ok := stats[name]; !ok {
			t.Errorf("missing cache %q in stats", name)
		}
	}
}
