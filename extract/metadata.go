package extract

import "encoding/json"

// MetaFormat discriminates the format-specific metadata payload.
type MetaFormat string

const (
	MetaNone    MetaFormat = ""
	MetaPDF     MetaFormat = "pdf"
	MetaExcel   MetaFormat = "excel"
	MetaEmail   MetaFormat = "email"
	MetaPPTX    MetaFormat = "pptx"
	MetaArchive MetaFormat = "archive"
	MetaImage   MetaFormat = "image"
	MetaXML     MetaFormat = "xml"
	MetaText    MetaFormat = "text"
	MetaHTML    MetaFormat = "html"
	MetaOCR     MetaFormat = "ocr"
)

// Metadata aggregates format-independent document metadata with exactly one
// format-specific payload, discriminated by format_type. On the wire the
// payload fields are flattened into the same JSON object as the core
// fields; keys the current schema does not recognize are preserved in
// Additional so decode → re-encode reproduces the original object.
type Metadata struct {
	Language   *string                    `json:"language,omitempty"`
	Date       *string                    `json:"date,omitempty"`
	Subject    *string                    `json:"subject,omitempty"`
	Format     FormatMeta                 `json:"-"`
	Error      *ErrorMeta                 `json:"error,omitempty"`
	Preproc    *PreprocMeta               `json:"image_preprocessing,omitempty"`
	Additional map[string]json.RawMessage `json:"-"`
}

// FormatMeta holds the discriminated union. Exactly one payload pointer is
// non-nil, consistent with Kind.
type FormatMeta struct {
	Kind    MetaFormat
	PDF     *PDFMeta
	Excel   *ExcelMeta
	Email   *EmailMeta
	PPTX    *PptxMeta
	Archive *ArchiveMeta
	Image   *ImageMeta
	XML     *XMLMeta
	Text    *TextMeta
	HTML    *HTMLMeta
	OCR     *OCRMeta
}

// ErrorMeta records a per-item failure inside a batch result.
type ErrorMeta struct {
	ErrorType string `json:"error_type"`
	Message   string `json:"message"`
}

// PreprocMeta records image preprocessing applied before OCR.
type PreprocMeta struct {
	OriginalDimensions [2]int  `json:"original_dimensions"`
	TargetDPI          int     `json:"target_dpi"`
	ScaleFactor        float64 `json:"scale_factor"`
	FinalDPI           int     `json:"final_dpi"`
	NewDimensions      *[2]int `json:"new_dimensions,omitempty"`
	SkippedResize      bool    `json:"skipped_resize"`
}

// PDFMeta carries PDF document properties.
type PDFMeta struct {
	Title       *string  `json:"title,omitempty"`
	Subject     *string  `json:"subject,omitempty"`
	Authors     []string `json:"authors,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
	CreatedAt   *string  `json:"created_at,omitempty"`
	ModifiedAt  *string  `json:"modified_at,omitempty"`
	CreatedBy   *string  `json:"created_by,omitempty"`
	Producer    *string  `json:"producer,omitempty"`
	PageCount   *int     `json:"page_count,omitempty"`
	PDFVersion  *string  `json:"pdf_version,omitempty"`
	IsEncrypted *bool    `json:"is_encrypted,omitempty"`
	Summary     *string  `json:"summary,omitempty"`
}

// ExcelMeta lists the sheets of a spreadsheet.
type ExcelMeta struct {
	SheetCount int      `json:"sheet_count"`
	SheetNames []string `json:"sheet_names"`
}

// EmailMeta captures the envelope of an EML message.
type EmailMeta struct {
	FromEmail   *string  `json:"from_email,omitempty"`
	FromName    *string  `json:"from_name,omitempty"`
	ToEmails    []string `json:"to_emails"`
	CcEmails    []string `json:"cc_emails"`
	BccEmails   []string `json:"bcc_emails"`
	MessageID   *string  `json:"message_id,omitempty"`
	Attachments []string `json:"attachments"`
}

// PptxMeta summarizes a slide deck.
type PptxMeta struct {
	Title       *string  `json:"title,omitempty"`
	Author      *string  `json:"author,omitempty"`
	Description *string  `json:"description,omitempty"`
	SlideCount  *int     `json:"slide_count,omitempty"`
	Fonts       []string `json:"fonts"`
}

// ArchiveMeta summarizes archive contents.
type ArchiveMeta struct {
	Format         string   `json:"format"`
	FileCount      int      `json:"file_count"`
	FileList       []string `json:"file_list"`
	TotalSize      int      `json:"total_size"`
	CompressedSize *int     `json:"compressed_size,omitempty"`
}

// ImageMeta describes a standalone image document.
type ImageMeta struct {
	Width  uint32            `json:"width"`
	Height uint32            `json:"height"`
	Format string            `json:"format"`
	EXIF   map[string]string `json:"exif"`
}

// XMLMeta provides element statistics for XML documents.
type XMLMeta struct {
	ElementCount   int      `json:"element_count"`
	UniqueElements []string `json:"unique_elements"`
}

// TextMeta carries counts for plain text and Markdown documents.
type TextMeta struct {
	LineCount      int         `json:"line_count"`
	WordCount      int         `json:"word_count"`
	CharacterCount int         `json:"character_count"`
	Headers        []string    `json:"headers,omitempty"`
	Links          [][2]string `json:"links,omitempty"`
	CodeBlocks     [][2]string `json:"code_blocks,omitempty"`
}

// HTMLMeta carries document head metadata.
type HTMLMeta struct {
	Title         *string `json:"title,omitempty"`
	Description   *string `json:"description,omitempty"`
	Keywords      *string `json:"keywords,omitempty"`
	Author        *string `json:"author,omitempty"`
	Canonical     *string `json:"canonical,omitempty"`
	BaseHref      *string `json:"base_href,omitempty"`
	OGTitle       *string `json:"og_title,omitempty"`
	OGDescription *string `json:"og_description,omitempty"`
	OGImage       *string `json:"og_image,omitempty"`
	OGURL         *string `json:"og_url,omitempty"`
	OGType        *string `json:"og_type,omitempty"`
	OGSiteName    *string `json:"og_site_name,omitempty"`
}

// OCRMeta records settings and results of an OCR run.
type OCRMeta struct {
	Language     string `json:"language"`
	PSM          int    `json:"psm"`
	OutputFormat string `json:"output_format"`
	TableCount   int    `json:"table_count"`
	TableRows    *int   `json:"table_rows,omitempty"`
	TableCols    *int   `json:"table_cols,omitempty"`
}

// coreKeys are the format-independent metadata keys.
var coreKeys = map[string]struct{}{
	"language":            {},
	"date":                {},
	"subject":             {},
	"format_type":         {},
	"error":               {},
	"image_preprocessing": {},
}

// payloadKeys maps each discriminator to its recognized flattened fields.
var payloadKeys = map[MetaFormat][]string{
	MetaPDF: {
		"title", "subject", "authors", "keywords", "created_at", "modified_at",
		"created_by", "producer", "page_count", "pdf_version", "is_encrypted", "summary",
	},
	MetaExcel:   {"sheet_count", "sheet_names"},
	MetaEmail:   {"from_email", "from_name", "to_emails", "cc_emails", "bcc_emails", "message_id", "attachments"},
	MetaPPTX:    {"title", "author", "description", "slide_count", "fonts"},
	MetaArchive: {"format", "file_count", "file_list", "total_size", "compressed_size"},
	MetaImage:   {"width", "height", "format", "exif"},
	MetaXML:     {"element_count", "unique_elements"},
	MetaText:    {"line_count", "word_count", "character_count", "headers", "links", "code_blocks"},
	MetaHTML: {
		"title", "description", "keywords", "author", "canonical", "base_href",
		"og_title", "og_description", "og_image", "og_url", "og_type", "og_site_name",
	},
	MetaOCR: {"language", "psm", "output_format", "table_count", "table_rows", "table_cols"},
}

// payload returns the populated payload pointer for the current kind.
func (f *FormatMeta) payload() any {
	switch f.Kind {
	case MetaPDF:
		return f.PDF
	case MetaExcel:
		return f.Excel
	case MetaEmail:
		return f.Email
	case MetaPPTX:
		return f.PPTX
	case MetaArchive:
		return f.Archive
	case MetaImage:
		return f.Image
	case MetaXML:
		return f.XML
	case MetaText:
		return f.Text
	case MetaHTML:
		return f.HTML
	case MetaOCR:
		return f.OCR
	}
	return nil
}

// decodePayload unmarshals data into a fresh payload struct for the kind.
func (f *FormatMeta) decodePayload(data []byte) error {
	switch f.Kind {
	case MetaPDF:
		f.PDF = &PDFMeta{}
		return json.Unmarshal(data, f.PDF)
	case MetaExcel:
		f.Excel = &ExcelMeta{}
		return json.Unmarshal(data, f.Excel)
	case MetaEmail:
		f.Email = &EmailMeta{}
		return json.Unmarshal(data, f.Email)
	case MetaPPTX:
		f.PPTX = &PptxMeta{}
		return json.Unmarshal(data, f.PPTX)
	case MetaArchive:
		f.Archive = &ArchiveMeta{}
		return json.Unmarshal(data, f.Archive)
	case MetaImage:
		f.Image = &ImageMeta{}
		return json.Unmarshal(data, f.Image)
	case MetaXML:
		f.XML = &XMLMeta{}
		return json.Unmarshal(data, f.XML)
	case MetaText:
		f.Text = &TextMeta{}
		return json.Unmarshal(data, f.Text)
	case MetaHTML:
		f.HTML = &HTMLMeta{}
		return json.Unmarshal(data, f.HTML)
	case MetaOCR:
		f.OCR = &OCRMeta{}
		return json.Unmarshal(data, f.OCR)
	default:
		// An unrecognized discriminator keeps its tag so decode → encode
		// reproduces it; there is no payload schema to decode, and sibling
		// keys fall through to Additional.
		return nil
	}
}

// UnmarshalJSON decodes the flattened wire form: core fields, the payload
// selected by format_type, and everything else into Additional.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	str := func(key string) *string {
		v, ok := raw[key]
		if !ok {
			return nil
		}
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return nil
		}
		return &s
	}

	m.Language = str("language")
	m.Date = str("date")
	m.Subject = str("subject")

	if v, ok := raw["error"]; ok {
		var em ErrorMeta
		if err := json.Unmarshal(v, &em); err == nil {
			m.Error = &em
		}
	}
	if v, ok := raw["image_preprocessing"]; ok {
		var pm PreprocMeta
		if err := json.Unmarshal(v, &pm); err == nil {
			m.Preproc = &pm
		}
	}

	m.Format = FormatMeta{}
	if v, ok := raw["format_type"]; ok {
		var kind string
		if err := json.Unmarshal(v, &kind); err == nil {
			m.Format.Kind = MetaFormat(kind)
		}
	}
	if err := m.Format.decodePayload(data); err != nil {
		return err
	}

	recognized := make(map[string]struct{}, len(coreKeys))
	for k := range coreKeys {
		recognized[k] = struct{}{}
	}
	for _, k := range payloadKeys[m.Format.Kind] {
		recognized[k] = struct{}{}
	}

	m.Additional = nil
	for k, v := range raw {
		if _, ok := recognized[k]; ok {
			continue
		}
		if m.Additional == nil {
			m.Additional = make(map[string]json.RawMessage)
		}
		m.Additional[k] = v
	}
	return nil
}

// MarshalJSON re-emits the flattened wire form so a decode → encode cycle
// reproduces the original object structurally.
func (m Metadata) MarshalJSON() ([]byte, error) {
	out := make(map[string]any)

	if m.Language != nil {
		out["language"] = *m.Language
	}
	if m.Date != nil {
		out["date"] = *m.Date
	}
	if m.Subject != nil {
		out["subject"] = *m.Subject
	}
	if m.Error != nil {
		out["error"] = m.Error
	}
	if m.Preproc != nil {
		out["image_preprocessing"] = m.Preproc
	}

	if m.Format.Kind != MetaNone {
		out["format_type"] = string(m.Format.Kind)
		if p := m.Format.payload(); p != nil {
			flat, err := flattenStruct(p)
			if err != nil {
				return nil, err
			}
			for k, v := range flat {
				out[k] = v
			}
		}
	}

	for k, v := range m.Additional {
		out[k] = v
	}
	return json.Marshal(out)
}

func flattenStruct(v any) (map[string]json.RawMessage, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	flat := make(map[string]json.RawMessage)
	if err := json.Unmarshal(raw, &flat); err != nil {
		return nil, err
	}
	return flat, nil
}
