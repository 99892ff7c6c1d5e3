// Package ocr provides OCR backends for the extraction engine. The only
// built-in is a Tesseract backend that shells out to the tesseract binary
// and parses its TSV output.
package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hazyhaar/docintel/extract"
	"github.com/hazyhaar/docintel/fault"
	"github.com/hazyhaar/docintel/pool"
)

// Tesseract runs the tesseract CLI on page images. Language and page
// segmentation mode come from the extraction config.
type Tesseract struct {
	// Binary overrides the tesseract executable path. Empty means $PATH
	// lookup.
	Binary string
}

func (t *Tesseract) binary() string {
	if t.Binary != "" {
		return t.Binary
	}
	return "tesseract"
}

// Available reports whether the tesseract binary can be found.
func (t *Tesseract) Available() bool {
	_, err := exec.LookPath(t.binary())
	return err == nil
}

// Run recognizes one page image, returning the line-assembled text and an
// average word confidence.
func (t *Tesseract) Run(ctx context.Context, image []byte, cfg *extract.Config) (*extract.OCROutput, error) {
	bin, err := exec.LookPath(t.binary())
	if err != nil {
		return nil, fault.MissingDependency(t.binary(), "install tesseract-ocr to enable OCR")
	}

	dir, err := os.MkdirTemp("", "docintel-tess-*")
	if err != nil {
		return nil, fault.IO("create temp dir", err)
	}
	defer os.RemoveAll(dir)

	inPath := filepath.Join(dir, "page.png")
	if err := os.WriteFile(inPath, image, 0o600); err != nil {
		return nil, fault.IO("write page image", err)
	}

	lang := "eng"
	psm := 3
	if cfg != nil {
		if cfg.OCR.Language != "" {
			lang = cfg.OCR.Language
		}
		if cfg.OCR.PSM > 0 {
			psm = cfg.OCR.PSM
		}
	}

	outBase := filepath.Join(dir, "out")
	cmd := exec.CommandContext(ctx, bin,
		inPath,
		outBase,
		"-l", lang,
		"--psm", strconv.Itoa(psm),
		"tsv")
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fault.OCR(fmt.Sprintf("tesseract: %s", strings.TrimSpace(string(out))), err)
	}

	tsv, err := os.ReadFile(outBase + ".tsv")
	if err != nil {
		return nil, fault.IO("read tesseract output", err)
	}
	text, confidence := parseTSV(string(tsv))
	return &extract.OCROutput{Text: text, Confidence: confidence}, nil
}

// parseTSV assembles text from tesseract's TSV: words are joined within a
// line, lines within a paragraph, paragraphs separated by blank lines.
// Confidence is the mean over recognized words.
func parseTSV(tsv string) (string, float64) {
	type lineKey struct{ block, par, line int }

	stringScratch, _ := pool.Buffers()
	guard := stringScratch.Acquire()
	defer guard.Release()
	sb := guard.Value()

	var confSum float64
	var confCount int
	prev := lineKey{-1, -1, -1}

	for i, row := range strings.Split(tsv, "\n") {
		if i == 0 || strings.TrimSpace(row) == "" {
			continue // header
		}
		fields := strings.Split(row, "\t")
		if len(fields) < 12 {
			continue
		}
		level, _ := strconv.Atoi(fields[0])
		if level != 5 { // word rows only
			continue
		}
		word := strings.TrimSpace(fields[11])
		if word == "" {
			continue
		}

		block, _ := strconv.Atoi(fields[2])
		par, _ := strconv.Atoi(fields[3])
		line, _ := strconv.Atoi(fields[4])
		key := lineKey{block, par, line}

		if prev != (lineKey{-1, -1, -1}) {
			switch {
			case key.block != prev.block || key.par != prev.par:
				sb.WriteString("\n\n")
			case key.line != prev.line:
				sb.WriteByte('\n')
			default:
				sb.WriteByte(' ')
			}
		}
		sb.WriteString(word)
		prev = key

		if conf, err := strconv.ParseFloat(fields[10], 64); err == nil && conf >= 0 {
			confSum += conf
			confCount++
		}
	}

	confidence := 0.0
	if confCount > 0 {
		confidence = confSum / float64(confCount) / 100.0
	}
	return sb.String(), confidence
}

// RegisterBuiltins registers the Tesseract backend when the binary is
// present. A missing binary is logged, not fatal: the engine treats zero
// OCR backends as a valid degraded state.
func RegisterBuiltins(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	backend := &Tesseract{}
	if !backend.Available() {
		logger.Warn("tesseract binary not found, OCR disabled",
			"binary", backend.binary())
		return
	}
	extract.OCRBackends().Register("tesseract", 0, backend)
}
