package extractor

import (
	"bytes"
	"context"
	"encoding/xml"
	"io"
	"sort"
	"strings"

	"github.com/hazyhaar/docintel/detect"
	"github.com/hazyhaar/docintel/extract"
	"github.com/hazyhaar/docintel/fault"
)

// XML extracts the character data of an XML document and reports element
// statistics.
type XML struct{}

func (XML) Supports(f detect.Format) bool { return f == detect.FormatXML }

func (XML) Extract(_ context.Context, req extract.Request) (*extract.Result, error) {
	decoder := xml.NewDecoder(bytes.NewReader(req.Data))

	var sb strings.Builder
	elementCount := 0
	seen := map[string]struct{}{}

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fault.Parsing("malformed xml", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			elementCount++
			seen[t.Name.Local] = struct{}{}
		case xml.CharData:
			text := strings.TrimSpace(string(t))
			if text != "" {
				if sb.Len() > 0 {
					sb.WriteByte('\n')
				}
				sb.WriteString(text)
			}
		}
	}

	unique := make([]string, 0, len(seen))
	for name := range seen {
		unique = append(unique, name)
	}
	sort.Strings(unique)

	return &extract.Result{
		Content:  sb.String(),
		MimeType: "application/xml",
		Metadata: extract.Metadata{
			Format: extract.FormatMeta{
				Kind: extract.MetaXML,
				XML: &extract.XMLMeta{
					ElementCount:   elementCount,
					UniqueElements: unique,
				},
			},
		},
	}, nil
}
