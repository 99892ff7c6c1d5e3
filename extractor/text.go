package extractor

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/hazyhaar/docintel/detect"
	"github.com/hazyhaar/docintel/extract"
	"github.com/hazyhaar/docintel/fault"
)

// Text extracts plain text documents verbatim, attaching line, word and
// character statistics.
type Text struct{}

func (Text) Supports(f detect.Format) bool { return f == detect.FormatTXT }

func (Text) Extract(_ context.Context, req extract.Request) (*extract.Result, error) {
	if !utf8.Valid(req.Data) {
		return nil, fault.Parsing("text input is not valid UTF-8", nil)
	}
	content := string(req.Data)

	return &extract.Result{
		Content:  content,
		MimeType: "text/plain",
		Metadata: extract.Metadata{
			Format: extract.FormatMeta{
				Kind: extract.MetaText,
				Text: textStats(content),
			},
		},
	}, nil
}

// textStats computes the shared counters of the text payload.
func textStats(content string) *extract.TextMeta {
	lines := 0
	if content != "" {
		lines = strings.Count(content, "\n")
		if !strings.HasSuffix(content, "\n") {
			lines++
		}
	}
	return &extract.TextMeta{
		LineCount:      lines,
		WordCount:      len(strings.Fields(content)),
		CharacterCount: utf8.RuneCountInString(content),
	}
}
