package extractor

import (
	"bytes"
	"context"
	"regexp"
	"strings"
	"sync"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	mdtable "github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/docintel/detect"
	"github.com/hazyhaar/docintel/extract"
	"github.com/hazyhaar/docintel/fault"
)

var (
	mdConvOnce sync.Once
	mdConv     *converter.Converter
	sanitizer  = bluemonday.UGCPolicy()
)

func markdownConverter() *converter.Converter {
	mdConvOnce.Do(func() {
		mdConv = converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				mdtable.NewTablePlugin(),
			),
		)
	})
	return mdConv
}

// htmlToMarkdown sanitizes untrusted HTML and converts it to Markdown.
func htmlToMarkdown(data []byte) (string, error) {
	return markdownConverter().ConvertString(string(sanitizer.SanitizeBytes(data)))
}

// HTML extracts web documents: head metadata, a Markdown rendering of the
// main content, and any tables. Boilerplate regions (nav, footer, hidden
// elements) are dropped before conversion; semantic landmarks like
// <article> and <main> take precedence over the full body.
type HTML struct{}

func (HTML) Supports(f detect.Format) bool { return f == detect.FormatHTML }

func (HTML) Extract(_ context.Context, req extract.Request) (*extract.Result, error) {
	doc, err := html.Parse(bytes.NewReader(req.Data))
	if err != nil {
		return nil, fault.Parsing("parse html", err)
	}

	meta := headMetadata(doc)

	roots := contentLandmarks(doc)
	if len(roots) == 0 {
		if body := findElement(doc, atom.Body); body != nil {
			roots = []*html.Node{body}
		} else {
			roots = []*html.Node{doc}
		}
	}

	var rendered bytes.Buffer
	for _, n := range roots {
		pruned := pruneBoilerplate(n)
		if pruned == nil {
			continue
		}
		if err := html.Render(&rendered, pruned); err != nil {
			return nil, fault.Parsing("render html subtree", err)
		}
	}

	content, err := htmlToMarkdown(rendered.Bytes())
	if err != nil {
		// Conversion failure degrades to raw visible text.
		content = collectText(doc)
	}

	return &extract.Result{
		Content:  strings.TrimSpace(content),
		MimeType: "text/html",
		Tables:   htmlTables(doc),
		Metadata: extract.Metadata{
			Format: extract.FormatMeta{Kind: extract.MetaHTML, HTML: meta},
		},
	}, nil
}

// headMetadata pulls document metadata out of <head>.
func headMetadata(doc *html.Node) *extract.HTMLMeta {
	meta := &extract.HTMLMeta{}
	set := func(dst **string, val string) {
		val = strings.TrimSpace(val)
		if val != "" && *dst == nil {
			*dst = &val
		}
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Title:
				if n.FirstChild != nil {
					set(&meta.Title, n.FirstChild.Data)
				}
			case atom.Base:
				set(&meta.BaseHref, attr(n, "href"))
			case atom.Link:
				if strings.EqualFold(attr(n, "rel"), "canonical") {
					set(&meta.Canonical, attr(n, "href"))
				}
			case atom.Meta:
				content := attr(n, "content")
				switch strings.ToLower(attr(n, "name")) {
				case "description":
					set(&meta.Description, content)
				case "keywords":
					set(&meta.Keywords, content)
				case "author":
					set(&meta.Author, content)
				}
				switch strings.ToLower(attr(n, "property")) {
				case "og:title":
					set(&meta.OGTitle, content)
				case "og:description":
					set(&meta.OGDescription, content)
				case "og:image":
					set(&meta.OGImage, content)
				case "og:url":
					set(&meta.OGURL, content)
				case "og:type":
					set(&meta.OGType, content)
				case "og:site_name":
					set(&meta.OGSiteName, content)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return meta
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// contentLandmarks finds semantic main-content roots: <article>, <main>,
// or any element with role="main".
func contentLandmarks(doc *html.Node) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if n.DataAtom == atom.Article || n.DataAtom == atom.Main ||
				strings.EqualFold(attr(n, "role"), "main") {
				out = append(out, n)
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return out
}

var hiddenStylePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)display\s*:\s*none`),
	regexp.MustCompile(`(?i)visibility\s*:\s*hidden`),
	regexp.MustCompile(`(?i)font-size\s*:\s*0[^1-9]`),
	regexp.MustCompile(`(?i)opacity\s*:\s*0[^.]`),
}

func hasHiddenStyle(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	style := attr(n, "style")
	if style == "" {
		return false
	}
	for _, pat := range hiddenStylePatterns {
		if pat.MatchString(style) {
			return true
		}
	}
	return false
}

func isBoilerplate(n *html.Node) bool {
	switch n.DataAtom {
	case atom.Script, atom.Style, atom.Noscript, atom.Nav, atom.Footer, atom.Aside, atom.Iframe:
		return true
	}
	return hasHiddenStyle(n)
}

// pruneBoilerplate deep-copies the subtree without boilerplate regions.
// Returns nil when the whole subtree is boilerplate.
func pruneBoilerplate(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && isBoilerplate(n) {
		return nil
	}
	clone := &html.Node{
		Type:     n.Type,
		DataAtom: n.DataAtom,
		Data:     n.Data,
		Attr:     append([]html.Attribute(nil), n.Attr...),
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if cc := pruneBoilerplate(c); cc != nil {
			clone.AppendChild(cc)
		}
	}
	return clone
}

// collectText gathers the visible text of a subtree, boilerplate excluded.
func collectText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				if sb.Len() > 0 {
					sb.WriteByte(' ')
				}
				sb.WriteString(text)
			}
		}
		if n.Type == html.ElementNode && isBoilerplate(n) {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

// htmlTables converts each <table> into ordered cells with a Markdown
// rendering.
func htmlTables(doc *html.Node) []extract.Table {
	var tables []extract.Table
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Table {
			if cells := tableCells(n); len(cells) > 0 {
				tables = append(tables, extract.Table{
					Cells:    cells,
					Markdown: tableMarkdown(cells),
				})
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return tables
}

func tableCells(table *html.Node) [][]string {
	var cells [][]string
	var walkRows func(*html.Node)
	walkRows = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Tr {
			var row []string
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.ElementNode && (c.DataAtom == atom.Td || c.DataAtom == atom.Th) {
					row = append(row, collectText(c))
				}
			}
			if len(row) > 0 {
				cells = append(cells, row)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walkRows(c)
		}
	}
	walkRows(table)
	return cells
}

// tableMarkdown renders cells as a GitHub-style Markdown table, treating
// the first row as the header.
func tableMarkdown(cells [][]string) string {
	if len(cells) == 0 {
		return ""
	}
	width := 0
	for _, row := range cells {
		if len(row) > width {
			width = len(row)
		}
	}

	var sb strings.Builder
	writeRow := func(row []string) {
		sb.WriteByte('|')
		for i := 0; i < width; i++ {
			cell := ""
			if i < len(row) {
				cell = strings.ReplaceAll(row[i], "|", `\|`)
			}
			sb.WriteByte(' ')
			sb.WriteString(cell)
			sb.WriteString(" |")
		}
		sb.WriteByte('\n')
	}

	writeRow(cells[0])
	sb.WriteByte('|')
	for i := 0; i < width; i++ {
		sb.WriteString(" --- |")
	}
	sb.WriteByte('\n')
	for _, row := range cells[1:] {
		writeRow(row)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// findElement returns the first element with the given atom.
func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}
