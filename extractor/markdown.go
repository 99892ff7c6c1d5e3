package extractor

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gmtext "github.com/yuin/goldmark/text"

	"github.com/hazyhaar/docintel/detect"
	"github.com/hazyhaar/docintel/extract"
	"github.com/hazyhaar/docintel/fault"
)

// Markdown extracts Markdown documents: the content passes through
// unchanged while the AST provides headings, links and code blocks for the
// text payload.
type Markdown struct{}

func (Markdown) Supports(f detect.Format) bool { return f == detect.FormatMD }

func (Markdown) Extract(_ context.Context, req extract.Request) (*extract.Result, error) {
	if !utf8.Valid(req.Data) {
		return nil, fault.Parsing("markdown input is not valid UTF-8", nil)
	}
	content := string(req.Data)

	md := goldmark.New()
	doc := md.Parser().Parse(gmtext.NewReader(req.Data))

	meta := textStats(content)
	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Heading:
			if t := nodeText(node, req.Data); t != "" {
				meta.Headers = append(meta.Headers, t)
			}
			return ast.WalkSkipChildren, nil
		case *ast.Link:
			meta.Links = append(meta.Links, [2]string{
				nodeText(node, req.Data),
				string(node.Destination),
			})
		case *ast.AutoLink:
			url := string(node.URL(req.Data))
			meta.Links = append(meta.Links, [2]string{url, url})
		case *ast.FencedCodeBlock:
			meta.CodeBlocks = append(meta.CodeBlocks, [2]string{
				string(node.Language(req.Data)),
				blockLines(node, req.Data),
			})
			return ast.WalkSkipChildren, nil
		case *ast.CodeBlock:
			meta.CodeBlocks = append(meta.CodeBlocks, [2]string{"", blockLines(node, req.Data)})
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})

	return &extract.Result{
		Content:  content,
		MimeType: "text/markdown",
		Metadata: extract.Metadata{
			Format: extract.FormatMeta{Kind: extract.MetaText, Text: meta},
		},
	}, nil
}

// nodeText concatenates the leaf text of a node's children.
func nodeText(n ast.Node, src []byte) string {
	var sb strings.Builder
	ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering {
			if t, ok := c.(*ast.Text); ok {
				sb.Write(t.Segment.Value(src))
			}
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(sb.String())
}

// blockLines reads the raw source lines of a block node.
func blockLines(n ast.Node, src []byte) string {
	var sb strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		sb.Write(seg.Value(src))
	}
	return strings.TrimRight(sb.String(), "\n")
}
