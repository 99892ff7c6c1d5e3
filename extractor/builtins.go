// Package extractor provides the built-in format extractors: plain text,
// Markdown, HTML, PDF, office documents, spreadsheets, email, archives,
// standalone images and XML.
//
// Registration is explicit. Nothing registers at init time and nothing
// re-registers behind the caller's back:
//
//	extractor.RegisterBuiltins()
//	res, err := engine.ExtractFile(ctx, "report.pdf", nil)
package extractor

import "github.com/hazyhaar/docintel/extract"

// Builtin registration priorities. All built-ins sit at the baseline so
// user plugins registered with a positive priority win their formats.
const builtinPriority = 0

// RegisterBuiltins registers every built-in extractor on the shared
// extractor registry. Calling it twice replaces the previous entries
// without changing their position.
func RegisterBuiltins() {
	reg := extract.Extractors()
	reg.Register("text", builtinPriority, Text{})
	reg.Register("markdown", builtinPriority, Markdown{})
	reg.Register("html", builtinPriority, HTML{})
	reg.Register("pdf", builtinPriority, PDF{})
	reg.Register("office", builtinPriority, Office{})
	reg.Register("excel", builtinPriority, Excel{})
	reg.Register("email", builtinPriority, Email{})
	reg.Register("archive", builtinPriority, Archive{})
	reg.Register("image", builtinPriority, Image{})
	reg.Register("xml", builtinPriority, XML{})
}
