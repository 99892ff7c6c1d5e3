package extractor

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/hazyhaar/docintel/detect"
	"github.com/hazyhaar/docintel/extract"
	"github.com/hazyhaar/docintel/fault"
)

// Excel extracts xlsx workbooks: every sheet becomes a table, the content
// is a Markdown rendering of all sheets.
type Excel struct{}

func (Excel) Supports(f detect.Format) bool { return f == detect.FormatXLSX }

func (Excel) Extract(_ context.Context, req extract.Request) (*extract.Result, error) {
	zr, err := zip.NewReader(bytes.NewReader(req.Data), int64(len(req.Data)))
	if err != nil {
		return nil, fault.Parsing("open xlsx container", err)
	}

	sheetNames, err := workbookSheets(zr)
	if err != nil {
		return nil, err
	}
	shared, err := sharedStrings(zr)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	var tables []extract.Table
	for i, name := range sheetNames {
		data, err := zipMember(zr, fmt.Sprintf("xl/worksheets/sheet%d.xml", i+1))
		if err != nil {
			return nil, err
		}
		if data == nil {
			continue
		}
		cells, err := sheetCells(data, shared)
		if err != nil {
			return nil, err
		}
		if len(cells) == 0 {
			continue
		}

		md := tableMarkdown(cells)
		tables = append(tables, extract.Table{Cells: cells, Markdown: md})

		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "## %s\n\n%s", name, md)
	}

	return &extract.Result{
		Content:  sb.String(),
		MimeType: detect.MimeType(detect.FormatXLSX),
		Tables:   tables,
		Metadata: extract.Metadata{
			Format: extract.FormatMeta{
				Kind: extract.MetaExcel,
				Excel: &extract.ExcelMeta{
					SheetCount: len(sheetNames),
					SheetNames: sheetNames,
				},
			},
		},
	}, nil
}

// workbookSheets lists sheet names in workbook order.
func workbookSheets(zr *zip.Reader) ([]string, error) {
	data, err := zipMember(zr, "xl/workbook.xml")
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, fault.Parsing("xl/workbook.xml not found in archive", nil)
	}

	var workbook struct {
		Sheets struct {
			Sheet []struct {
				Name string `xml:"name,attr"`
			} `xml:"sheet"`
		} `xml:"sheets"`
	}
	if err := xml.Unmarshal(data, &workbook); err != nil {
		return nil, fault.Parsing("parse workbook.xml", err)
	}

	names := make([]string, 0, len(workbook.Sheets.Sheet))
	for _, s := range workbook.Sheets.Sheet {
		names = append(names, s.Name)
	}
	if len(names) == 0 {
		return nil, fault.Parsing("workbook has no sheets", nil)
	}
	return names, nil
}

// sharedStrings loads the shared string table; rich-text runs are
// concatenated per entry.
func sharedStrings(zr *zip.Reader) ([]string, error) {
	data, err := zipMember(zr, "xl/sharedStrings.xml")
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}

	var sst struct {
		SI []struct {
			T string `xml:"t"`
			R []struct {
				T string `xml:"t"`
			} `xml:"r"`
		} `xml:"si"`
	}
	if err := xml.Unmarshal(data, &sst); err != nil {
		return nil, fault.Parsing("parse sharedStrings.xml", err)
	}

	out := make([]string, 0, len(sst.SI))
	for _, si := range sst.SI {
		if len(si.R) == 0 {
			out = append(out, si.T)
			continue
		}
		var sb strings.Builder
		for _, r := range si.R {
			sb.WriteString(r.T)
		}
		out = append(out, sb.String())
	}
	return out, nil
}

// sheetCells parses one worksheet into a dense 2-D grid. Shared-string
// cells are resolved through the string table; gaps from sparse cell
// references are padded with empty strings.
func sheetCells(data []byte, shared []string) ([][]string, error) {
	var sheet struct {
		SheetData struct {
			Row []struct {
				C []struct {
					R  string `xml:"r,attr"`
					T  string `xml:"t,attr"`
					V  string `xml:"v"`
					IS struct {
						T string `xml:"t"`
					} `xml:"is"`
				} `xml:"c"`
			} `xml:"row"`
		} `xml:"sheetData"`
	}
	if err := xml.Unmarshal(data, &sheet); err != nil {
		return nil, fault.Parsing("parse worksheet", err)
	}

	var cells [][]string
	for _, row := range sheet.SheetData.Row {
		var out []string
		for _, c := range row.C {
			col := columnIndex(c.R)
			for len(out) < col {
				out = append(out, "")
			}

			val := c.V
			switch c.T {
			case "s":
				var idx int
				if _, err := fmt.Sscanf(c.V, "%d", &idx); err == nil && idx >= 0 && idx < len(shared) {
					val = shared[idx]
				}
			case "inlineStr":
				val = c.IS.T
			case "b":
				if c.V == "1" {
					val = "TRUE"
				} else {
					val = "FALSE"
				}
			}
			out = append(out, val)
		}
		if len(out) > 0 {
			cells = append(cells, out)
		}
	}
	return cells, nil
}

// columnIndex converts the column letters of an A1-style reference to a
// zero-based index: A1 → 0, B3 → 1, AA7 → 26.
func columnIndex(ref string) int {
	col := 0
	for _, r := range ref {
		if r < 'A' || r > 'Z' {
			break
		}
		col = col*26 + int(r-'A'+1)
	}
	if col == 0 {
		return 0
	}
	return col - 1
}
