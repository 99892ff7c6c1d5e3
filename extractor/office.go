package extractor

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/hazyhaar/docintel/detect"
	"github.com/hazyhaar/docintel/extract"
	"github.com/hazyhaar/docintel/fault"
)

// Office extracts OOXML and OpenDocument text documents (docx, odt) and
// PowerPoint decks (pptx) by parsing the XML parts inside the container.
type Office struct{}

func (Office) Supports(f detect.Format) bool {
	switch f {
	case detect.FormatDOCX, detect.FormatODT, detect.FormatPPTX:
		return true
	}
	return false
}

func (Office) Extract(_ context.Context, req extract.Request) (*extract.Result, error) {
	zr, err := zip.NewReader(bytes.NewReader(req.Data), int64(len(req.Data)))
	if err != nil {
		return nil, fault.Parsing("open office container", err)
	}

	switch req.Format {
	case detect.FormatDOCX:
		return extractDocx(zr)
	case detect.FormatODT:
		return extractODT(zr)
	case detect.FormatPPTX:
		return extractPptx(zr)
	}
	return nil, fault.UnsupportedFormat(string(req.Format))
}

func zipMember(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name == name {
			rc, err := f.Open()
			if err != nil {
				return nil, fault.Parsing(fmt.Sprintf("open %s", name), err)
			}
			defer rc.Close()
			data, err := io.ReadAll(rc)
			if err != nil {
				return nil, fault.Parsing(fmt.Sprintf("read %s", name), err)
			}
			return data, nil
		}
	}
	return nil, nil
}

// coreProperties is the docProps/core.xml subset shared by OOXML formats.
type coreProperties struct {
	Title   string `xml:"title"`
	Subject string `xml:"subject"`
	Creator string `xml:"creator"`
	Created string `xml:"created"`
}

func readCoreProperties(zr *zip.Reader) *coreProperties {
	data, err := zipMember(zr, "docProps/core.xml")
	if err != nil || data == nil {
		return nil
	}
	var props coreProperties
	if xml.Unmarshal(data, &props) != nil {
		return nil
	}
	return &props
}

// extractDocx parses word/document.xml: paragraphs with their styles, so
// headings survive as Markdown headings.
func extractDocx(zr *zip.Reader) (*extract.Result, error) {
	data, err := zipMember(zr, "word/document.xml")
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, fault.Parsing("word/document.xml not found in archive", nil)
	}

	decoder := xml.NewDecoder(bytes.NewReader(data))
	var sb strings.Builder
	var paragraph strings.Builder
	var inParagraph bool
	var style string

	flush := func() {
		text := strings.TrimSpace(paragraph.String())
		paragraph.Reset()
		if text == "" {
			return
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		if level := docxHeadingLevel(style); level > 0 {
			sb.WriteString(strings.Repeat("#", level))
			sb.WriteByte(' ')
		}
		sb.WriteString(text)
	}

	for {
		tok, err := decoder.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				inParagraph = true
				paragraph.Reset()
				style = ""
			case "pStyle":
				for _, a := range t.Attr {
					if a.Name.Local == "val" {
						style = a.Value
					}
				}
			case "tab":
				if inParagraph {
					paragraph.WriteByte('\t')
				}
			case "br":
				if inParagraph {
					paragraph.WriteByte('\n')
				}
			}
		case xml.CharData:
			if inParagraph {
				paragraph.Write(t)
			}
		case xml.EndElement:
			if t.Name.Local == "p" && inParagraph {
				inParagraph = false
				flush()
			}
		}
	}

	content := sb.String()
	res := &extract.Result{
		Content:  content,
		MimeType: detect.MimeType(detect.FormatDOCX),
		Metadata: extract.Metadata{
			Format: extract.FormatMeta{Kind: extract.MetaText, Text: textStats(content)},
		},
	}
	applyCoreProperties(res, readCoreProperties(zr))
	return res, nil
}

// docxHeadingLevel maps a paragraph style name to a heading level.
// "Heading1" → 1, "Title" → 1, "Subtitle" → 2; localized prefixes too.
func docxHeadingLevel(style string) int {
	lower := strings.ToLower(style)
	if lower == "title" {
		return 1
	}
	if lower == "subtitle" {
		return 2
	}
	for _, prefix := range []string{"heading", "titre", "überschrift"} {
		if strings.HasPrefix(lower, prefix) {
			rest := lower[len(prefix):]
			if len(rest) == 1 && rest[0] >= '1' && rest[0] <= '6' {
				return int(rest[0] - '0')
			}
		}
	}
	return 0
}

// extractODT parses content.xml of an OpenDocument text file.
func extractODT(zr *zip.Reader) (*extract.Result, error) {
	data, err := zipMember(zr, "content.xml")
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, fault.Parsing("content.xml not found in archive", nil)
	}

	decoder := xml.NewDecoder(bytes.NewReader(data))
	var sb strings.Builder
	var current strings.Builder
	var inText bool
	var headingLevel int

	flush := func() {
		text := strings.TrimSpace(current.String())
		current.Reset()
		if text == "" {
			return
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		if headingLevel > 0 {
			sb.WriteString(strings.Repeat("#", headingLevel))
			sb.WriteByte(' ')
		}
		sb.WriteString(text)
	}

	for {
		tok, err := decoder.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "h":
				inText = true
				current.Reset()
				headingLevel = 1
				for _, a := range t.Attr {
					if a.Name.Local == "outline-level" {
						if n, err := strconv.Atoi(a.Value); err == nil && n >= 1 && n <= 6 {
							headingLevel = n
						}
					}
				}
			case "p":
				inText = true
				current.Reset()
				headingLevel = 0
			}
		case xml.CharData:
			if inText {
				current.Write(t)
			}
		case xml.EndElement:
			if (t.Name.Local == "h" || t.Name.Local == "p") && inText {
				inText = false
				flush()
			}
		}
	}

	content := sb.String()
	return &extract.Result{
		Content:  content,
		MimeType: detect.MimeType(detect.FormatODT),
		Metadata: extract.Metadata{
			Format: extract.FormatMeta{Kind: extract.MetaText, Text: textStats(content)},
		},
	}, nil
}

// extractPptx walks ppt/slides/slideN.xml in slide order, collecting text
// runs and typefaces.
func extractPptx(zr *zip.Reader) (*extract.Result, error) {
	type slideFile struct {
		num  int
		name string
	}
	var slides []slideFile
	for _, f := range zr.File {
		var num int
		if _, err := fmt.Sscanf(f.Name, "ppt/slides/slide%d.xml", &num); err == nil {
			slides = append(slides, slideFile{num: num, name: f.Name})
		}
	}
	if len(slides) == 0 {
		return nil, fault.Parsing("no slides found in archive", nil)
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].num < slides[j].num })

	fonts := map[string]struct{}{}
	var sb strings.Builder
	for _, slide := range slides {
		data, err := zipMember(zr, slide.name)
		if err != nil || data == nil {
			continue
		}
		text := slideText(data, fonts)
		if text == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(text)
	}

	fontList := make([]string, 0, len(fonts))
	for f := range fonts {
		fontList = append(fontList, f)
	}
	sort.Strings(fontList)

	slideCount := len(slides)
	meta := &extract.PptxMeta{SlideCount: &slideCount, Fonts: fontList}

	content := sb.String()
	res := &extract.Result{
		Content:  content,
		MimeType: detect.MimeType(detect.FormatPPTX),
		Metadata: extract.Metadata{
			Format: extract.FormatMeta{Kind: extract.MetaPPTX, PPTX: meta},
		},
	}
	if props := readCoreProperties(zr); props != nil {
		if props.Title != "" {
			meta.Title = &props.Title
		}
		if props.Creator != "" {
			meta.Author = &props.Creator
		}
		if props.Subject != "" {
			meta.Description = &props.Subject
		}
	}
	return res, nil
}

// slideText extracts the a:t text runs of one slide, one paragraph per
// line, recording typefaces along the way.
func slideText(data []byte, fonts map[string]struct{}) string {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	var sb strings.Builder
	var inRun bool
	for {
		tok, err := decoder.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inRun = true
			case "latin", "ea", "cs":
				for _, a := range t.Attr {
					if a.Name.Local == "typeface" && a.Value != "" {
						fonts[a.Value] = struct{}{}
					}
				}
			}
		case xml.CharData:
			if inRun {
				sb.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inRun = false
			case "p":
				sb.WriteByte('\n')
			}
		}
	}
	return strings.TrimSpace(sb.String())
}

// applyCoreProperties copies container document properties into the
// format-independent metadata fields.
func applyCoreProperties(res *extract.Result, props *coreProperties) {
	if props == nil {
		return
	}
	if props.Subject != "" {
		res.Metadata.Subject = &props.Subject
	}
	if props.Created != "" {
		res.Metadata.Date = &props.Created
	}
}
