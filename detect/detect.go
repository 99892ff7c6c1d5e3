// Package detect classifies document bytes and paths into canonical format
// identifiers. Detection inspects magic bytes and structural signatures
// first and falls back to extension mapping when content alone is
// inconclusive. All functions are pure and safe for concurrent use.
package detect

import (
	"archive/zip"
	"bytes"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/hazyhaar/docintel/fault"
)

// Format is a canonical document format identifier.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
	FormatPPTX Format = "pptx"
	FormatXLSX Format = "xlsx"
	FormatODT  Format = "odt"
	FormatHTML Format = "html"
	FormatMD   Format = "md"
	FormatTXT  Format = "txt"
	FormatXML  Format = "xml"
	FormatEML  Format = "eml"
	FormatZIP  Format = "zip"
	FormatTAR  Format = "tar"
	FormatTGZ  Format = "tgz"
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatGIF  Format = "gif"
	FormatBMP  Format = "bmp"
	FormatTIFF Format = "tiff"
	FormatWebP Format = "webp"
)

var mimeTypes = map[Format]string{
	FormatPDF:  "application/pdf",
	FormatDOCX: "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	FormatPPTX: "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	FormatXLSX: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	FormatODT:  "application/vnd.oasis.opendocument.text",
	FormatHTML: "text/html",
	FormatMD:   "text/markdown",
	FormatTXT:  "text/plain",
	FormatXML:  "application/xml",
	FormatEML:  "message/rfc822",
	FormatZIP:  "application/zip",
	FormatTAR:  "application/x-tar",
	FormatTGZ:  "application/gzip",
	FormatPNG:  "image/png",
	FormatJPEG: "image/jpeg",
	FormatGIF:  "image/gif",
	FormatBMP:  "image/bmp",
	FormatTIFF: "image/tiff",
	FormatWebP: "image/webp",
}

// mimeAliases maps non-canonical MIME spellings to formats.
var mimeAliases = map[string]Format{
	"text/x-markdown":              FormatMD,
	"text/xml":                     FormatXML,
	"application/x-gzip":           FormatTGZ,
	"application/x-zip-compressed": FormatZIP,
	"application/xhtml+xml":        FormatHTML,
	"image/jpg":                    FormatJPEG,
}

var extensions = map[Format][]string{
	FormatPDF:  {".pdf"},
	FormatDOCX: {".docx"},
	FormatPPTX: {".pptx"},
	FormatXLSX: {".xlsx"},
	FormatODT:  {".odt"},
	FormatHTML: {".html", ".htm"},
	FormatMD:   {".md", ".markdown"},
	FormatTXT:  {".txt", ".text"},
	FormatXML:  {".xml"},
	FormatEML:  {".eml"},
	FormatZIP:  {".zip"},
	FormatTAR:  {".tar"},
	FormatTGZ:  {".tgz", ".gz"},
	FormatPNG:  {".png"},
	FormatJPEG: {".jpg", ".jpeg"},
	FormatGIF:  {".gif"},
	FormatBMP:  {".bmp"},
	FormatTIFF: {".tif", ".tiff"},
	FormatWebP: {".webp"},
}

var extensionFormats = func() map[string]Format {
	m := make(map[string]Format)
	for f, exts := range extensions {
		for _, ext := range exts {
			m[ext] = f
		}
	}
	return m
}()

// Formats returns every supported format identifier.
func Formats() []Format {
	return []Format{
		FormatPDF, FormatDOCX, FormatPPTX, FormatXLSX, FormatODT,
		FormatHTML, FormatMD, FormatTXT, FormatXML, FormatEML,
		FormatZIP, FormatTAR, FormatTGZ,
		FormatPNG, FormatJPEG, FormatGIF, FormatBMP, FormatTIFF, FormatWebP,
	}
}

// MimeType returns the canonical MIME type for a format, or "" if unknown.
func MimeType(f Format) string {
	return mimeTypes[f]
}

// Extensions returns the file extensions mapped to a format.
func Extensions(f Format) []string {
	return append([]string(nil), extensions[f]...)
}

// IsImage reports whether the format is a standalone raster image.
func IsImage(f Format) bool {
	switch f {
	case FormatPNG, FormatJPEG, FormatGIF, FormatBMP, FormatTIFF, FormatWebP:
		return true
	}
	return false
}

// Validate resolves a MIME string to a format. Parameters after ";" are
// ignored. Empty input is a validation error; an unrecognized type is an
// unsupported-format error carrying the offending identifier.
func Validate(mime string) (Format, error) {
	mime = strings.TrimSpace(mime)
	if mime == "" {
		return "", fault.Validation("mime type must not be empty")
	}
	base := mime
	if i := strings.IndexByte(base, ';'); i >= 0 {
		base = strings.TrimSpace(base[:i])
	}
	base = strings.ToLower(base)

	for f, m := range mimeTypes {
		if m == base {
			return f, nil
		}
	}
	if f, ok := mimeAliases[base]; ok {
		return f, nil
	}
	return "", fault.UnsupportedFormat(mime)
}

// Detect classifies a byte buffer by magic bytes and structure. Empty input
// is a validation error; unclassifiable content is an unsupported-format
// error.
func Detect(data []byte) (Format, error) {
	if len(data) == 0 {
		return "", fault.Validation("input must not be empty")
	}

	switch {
	case bytes.HasPrefix(data, []byte("%PDF-")):
		return FormatPDF, nil
	case bytes.HasPrefix(data, []byte("PK\x03\x04")):
		return detectZipContainer(data), nil
	case bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")):
		return FormatPNG, nil
	case bytes.HasPrefix(data, []byte("\xFF\xD8\xFF")):
		return FormatJPEG, nil
	case bytes.HasPrefix(data, []byte("GIF87a")) || bytes.HasPrefix(data, []byte("GIF89a")):
		return FormatGIF, nil
	case bytes.HasPrefix(data, []byte("BM")) && len(data) > 14:
		return FormatBMP, nil
	case bytes.HasPrefix(data, []byte("II*\x00")) || bytes.HasPrefix(data, []byte("MM\x00*")):
		return FormatTIFF, nil
	case len(data) >= 12 && bytes.HasPrefix(data, []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return FormatWebP, nil
	case bytes.HasPrefix(data, []byte("\x1f\x8b")):
		return FormatTGZ, nil
	case isTar(data):
		return FormatTAR, nil
	}

	if f, ok := detectTextual(data); ok {
		return f, nil
	}
	return "", fault.UnsupportedFormat("application/octet-stream")
}

// DetectFromPath classifies a file by its header bytes, refining ambiguous
// text content with the extension mapping. Header is the file's leading
// bytes (the caller reads them); pass nil to classify by extension alone.
func DetectFromPath(path string, header []byte) (Format, error) {
	extFormat, haveExt := extensionFormats[strings.ToLower(filepath.Ext(path))]

	if len(header) == 0 {
		if haveExt {
			return extFormat, nil
		}
		return "", fault.UnsupportedFormat(filepath.Ext(path))
	}

	f, err := Detect(header)
	if err != nil {
		if haveExt {
			return extFormat, nil
		}
		return "", err
	}

	// Plain text is inconclusive: a .md, .html or .eml file sniffs as text
	// when its leading bytes carry no structural signature.
	if f == FormatTXT && haveExt && isTextFamily(extFormat) {
		return extFormat, nil
	}
	// A bare zip signature with an office extension means the member probe
	// saw a truncated header; trust the extension.
	if f == FormatZIP && haveExt && isZipContainer(extFormat) {
		return extFormat, nil
	}
	return f, nil
}

func isTextFamily(f Format) bool {
	switch f {
	case FormatMD, FormatTXT, FormatHTML, FormatXML, FormatEML:
		return true
	}
	return false
}

func isZipContainer(f Format) bool {
	switch f {
	case FormatDOCX, FormatPPTX, FormatXLSX, FormatODT, FormatZIP:
		return true
	}
	return false
}

// detectZipContainer inspects zip member names to distinguish OOXML and
// OpenDocument containers from plain archives.
func detectZipContainer(data []byte) Format {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return FormatZIP
	}
	for _, f := range zr.File {
		switch {
		case f.Name == "word/document.xml" || strings.HasPrefix(f.Name, "word/"):
			return FormatDOCX
		case f.Name == "ppt/presentation.xml" || strings.HasPrefix(f.Name, "ppt/"):
			return FormatPPTX
		case f.Name == "xl/workbook.xml" || strings.HasPrefix(f.Name, "xl/"):
			return FormatXLSX
		case f.Name == "mimetype":
			rc, err := f.Open()
			if err != nil {
				continue
			}
			buf := make([]byte, 128)
			n, _ := rc.Read(buf)
			rc.Close()
			if strings.Contains(string(buf[:n]), "opendocument.text") {
				return FormatODT
			}
		}
	}
	return FormatZIP
}

func isTar(data []byte) bool {
	return len(data) > 262 && bytes.Equal(data[257:262], []byte("ustar"))
}

var emlHeaders = []string{
	"from:", "to:", "subject:", "received:", "return-path:", "date:",
	"message-id:", "mime-version:", "delivered-to:",
}

func detectTextual(data []byte) (Format, bool) {
	if !utf8.Valid(data) {
		return "", false
	}

	trimmed := bytes.TrimLeft(data, " \t\r\n\xef\xbb\xbf")
	lower := strings.ToLower(string(head(trimmed, 512)))

	switch {
	case strings.HasPrefix(lower, "<!doctype html"),
		strings.HasPrefix(lower, "<html"):
		return FormatHTML, true
	case strings.HasPrefix(lower, "<?xml"):
		// An XML prolog may still front an XHTML document.
		if strings.Contains(lower, "<html") {
			return FormatHTML, true
		}
		return FormatXML, true
	case strings.HasPrefix(lower, "<") && strings.Contains(lower, "</"):
		if strings.Contains(lower, "<body") || strings.Contains(lower, "<head") || strings.Contains(lower, "<div") || strings.Contains(lower, "<p>") {
			return FormatHTML, true
		}
		return FormatXML, true
	}

	for _, h := range emlHeaders {
		if strings.HasPrefix(lower, h) && looksLikeEmail(lower) {
			return FormatEML, true
		}
	}

	if printableFraction(trimmed) >= 0.9 {
		return FormatTXT, true
	}
	return "", false
}

// looksLikeEmail requires a second header line so a text file that happens
// to start with "Date:" is not misread as a message.
func looksLikeEmail(lower string) bool {
	count := 0
	for _, line := range strings.Split(lower, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			break
		}
		for _, h := range emlHeaders {
			if strings.HasPrefix(line, h) {
				count++
				break
			}
		}
		if count >= 2 {
			return true
		}
	}
	return false
}

func printableFraction(data []byte) float64 {
	if len(data) == 0 {
		return 1.0
	}
	total, printable := 0, 0
	for _, r := range string(head(data, 4096)) {
		total++
		if r == '\n' || r == '\r' || r == '\t' || (r >= 0x20 && r != 0xFFFD) {
			printable++
		}
	}
	if total == 0 {
		return 1.0
	}
	return float64(printable) / float64(total)
}

func head(data []byte, n int) []byte {
	if len(data) > n {
		return data[:n]
	}
	return data
}
