package extract

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hazyhaar/docintel/fault"
	"github.com/hazyhaar/docintel/pool"
)

// pageRenderer turns PDF bytes into one image per page at the given DPI.
type pageRenderer func(ctx context.Context, pdf []byte, dpi int) ([][]byte, error)

// PDF fallback states. The machine is one-way: once OCR runs, its output is
// the terminal best-effort result and is never re-checked against the text
// corruption heuristic.
type fallbackState int

const (
	stateValidateText fallbackState = iota
	stateOCRFallback
	stateDone
)

// runPDFFallback applies the text-vs-OCR decision to a freshly extracted
// PDF result. Text extraction already happened in the extractor, so the
// machine enters at ValidateText.
func (e *Engine) runPDFFallback(ctx context.Context, data []byte, res *Result, cfg *Config) (*Result, error) {
	state := stateValidateText
	if cfg.ForceOCR || textNeedsOCR(res.Content) {
		state = stateOCRFallback
	} else {
		state = stateDone
	}
	if state != stateOCRFallback {
		return res, nil
	}

	backend, name, err := e.pickOCRBackend(cfg)
	if err != nil {
		return nil, err
	}
	if backend == nil {
		// Zero registered OCR backends is a valid state: keep the text
		// layer as the best available result.
		cfg.Logger.Warn("pdf text layer unreliable but no OCR backend registered, keeping text result")
		return res, nil
	}

	cfg.Logger.Debug("pdf fallback: escalating to OCR",
		"backend", name, "force", cfg.ForceOCR, "dpi", cfg.OCR.DPI)

	pages, err := e.renderPDF(ctx, data, cfg.OCR.DPI)
	if err != nil {
		var fe *fault.Error
		if errors.As(err, &fe) {
			return nil, err
		}
		return nil, fault.OCR("render pdf pages", err)
	}

	stringScratch, _ := pool.Buffers()
	guard := stringScratch.Acquire()
	defer guard.Release()
	text := guard.Value()

	var tables []Table
	for i, page := range pages {
		out, err := e.ocrPage(ctx, backend, name, page, cfg)
		if err != nil {
			return nil, err
		}
		if text.Len() > 0 {
			text.WriteString("\n\n")
		}
		text.WriteString(strings.TrimSpace(out.Text))
		for _, tbl := range out.Tables {
			tbl.PageNumber = i + 1
			tables = append(tables, tbl)
		}
	}

	ocrRes := &Result{
		Content:           text.String(),
		MimeType:          res.MimeType,
		Tables:            tables,
		Images:            res.Images,
		DetectedLanguages: res.DetectedLanguages,
		Metadata: Metadata{
			Language: res.Metadata.Language,
			Date:     res.Metadata.Date,
			Subject:  res.Metadata.Subject,
			Format: FormatMeta{
				Kind: MetaOCR,
				OCR: &OCRMeta{
					Language:     cfg.OCR.Language,
					PSM:          cfg.OCR.PSM,
					OutputFormat: "tsv",
					TableCount:   len(tables),
				},
			},
		},
	}
	return ocrRes, nil
}

// ocrPage runs the backend on one page image, served from the OCR cache
// when the same image was recognized under the same settings before.
func (e *Engine) ocrPage(ctx context.Context, backend OCRBackend, name string, page []byte, cfg *Config) (*OCROutput, error) {
	sum := sha256.Sum256(page)
	key := fmt.Sprintf("ocr:%s:%s:%d", hex.EncodeToString(sum[:]), cfg.OCR.Language, cfg.OCR.PSM)

	raw, err := e.ocrCache.GetOrCompute(ctx, key, func(ctx context.Context) ([]byte, error) {
		var out *OCROutput
		err := invokePlugin(name, func() error {
			var err error
			out, err = backend.Run(ctx, page, cfg)
			return err
		})
		if err != nil {
			var fe *fault.Error
			if errors.As(err, &fe) {
				return nil, err
			}
			return nil, fault.OCR(fmt.Sprintf("backend %q failed", name), err)
		}
		if out == nil {
			return nil, fault.OCR(fmt.Sprintf("backend %q returned no output", name), nil)
		}
		enc, err := json.Marshal(out)
		if err != nil {
			return nil, fault.Serialization("encode ocr output", err)
		}
		return enc, nil
	})
	if err != nil {
		return nil, err
	}

	var out OCROutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fault.Serialization("decode cached ocr output", err)
	}
	return &out, nil
}

// pickOCRBackend resolves the configured backend, or the highest-priority
// registered backend when the config names none. A nil return with nil
// error means no backend is registered at all.
func (e *Engine) pickOCRBackend(cfg *Config) (OCRBackend, string, error) {
	if cfg.OCR.Backend != "" {
		b, ok := ocrBackends.Get(cfg.OCR.Backend)
		if !ok {
			return nil, "", fault.Validation("ocr backend %q is not registered", cfg.OCR.Backend)
		}
		return b, cfg.OCR.Backend, nil
	}
	ordered := ocrBackends.Ordered()
	if len(ordered) == 0 {
		return nil, "", nil
	}
	return ordered[0].Value, ordered[0].Name, nil
}

// renderWithPdftoppm renders PDF pages to PNG via the poppler pdftoppm
// tool. Pages come back in page order.
func renderWithPdftoppm(ctx context.Context, pdf []byte, dpi int) ([][]byte, error) {
	if _, err := exec.LookPath("pdftoppm"); err != nil {
		return nil, fault.MissingDependency("pdftoppm", "")
	}

	dir, err := os.MkdirTemp("", "docintel-ocr-*")
	if err != nil {
		return nil, fault.IO("create temp dir", err)
	}
	defer os.RemoveAll(dir)

	pdfPath := filepath.Join(dir, "input.pdf")
	if err := os.WriteFile(pdfPath, pdf, 0o600); err != nil {
		return nil, fault.IO("write temp pdf", err)
	}

	outPrefix := filepath.Join(dir, "page")
	cmd := exec.CommandContext(ctx, "pdftoppm",
		"-png",
		"-r", fmt.Sprintf("%d", dpi),
		pdfPath,
		outPrefix)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fault.OCR(fmt.Sprintf("pdftoppm: %s", strings.TrimSpace(string(out))), err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fault.IO("list rendered pages", err)
	}

	type pageFile struct {
		num  int
		name string
	}
	var files []pageFile
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "page-") || !strings.HasSuffix(name, ".png") {
			continue
		}
		var num int
		if _, err := fmt.Sscanf(strings.TrimSuffix(strings.TrimPrefix(name, "page-"), ".png"), "%d", &num); err != nil {
			continue
		}
		files = append(files, pageFile{num: num, name: name})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].num < files[j].num })

	pages := make([][]byte, 0, len(files))
	for _, f := range files {
		data, err := os.ReadFile(filepath.Join(dir, f.name))
		if err != nil {
			return nil, fault.IO(fmt.Sprintf("read rendered page %s", f.name), err)
		}
		pages = append(pages, data)
	}
	if len(pages) == 0 {
		return nil, fault.OCR("pdftoppm produced no pages", nil)
	}
	return pages, nil
}
