package extract

import (
	"encoding/json"
	"reflect"
	"testing"
)

func strp(s string) *string { return &s }
func intp(n int) *int       { return &n }

// normalize round-trips JSON through a map so key order and whitespace do
// not affect comparison.
func normalize(t *testing.T, data []byte) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal %s: %v", data, err)
	}
	return m
}

func TestMetadataRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		wire string
	}{
		{
			name: "pdf",
			wire: `{"format_type":"pdf","title":"Report","authors":["Ada","Grace"],"page_count":12,"is_encrypted":false,"language":"en"}`,
		},
		{
			name: "excel",
			wire: `{"format_type":"excel","sheet_count":2,"sheet_names":["Q1","Q2"]}`,
		},
		{
			name: "email",
			wire: `{"format_type":"email","from_email":"a@example.com","to_emails":["b@example.com"],"cc_emails":[],"bcc_emails":[],"attachments":["inv.pdf"],"subject":"hello"}`,
		},
		{
			name: "pptx",
			wire: `{"format_type":"pptx","title":"Deck","slide_count":8,"fonts":["Calibri"]}`,
		},
		{
			name: "archive",
			wire: `{"format_type":"archive","format":"zip","file_count":3,"file_list":["a.txt","b.txt","c/"],"total_size":4096}`,
		},
		{
			name: "image",
			wire: `{"format_type":"image","width":640,"height":480,"format":"png","exif":{"Make":"X"}}`,
		},
		{
			name: "xml",
			wire: `{"format_type":"xml","element_count":42,"unique_elements":["item","name"]}`,
		},
		{
			name: "text",
			wire: `{"format_type":"text","line_count":10,"word_count":55,"character_count":312,"headers":["Intro"],"links":[["here","https://example.com"]]}`,
		},
		{
			name: "html",
			wire: `{"format_type":"html","title":"Page","description":"d","og_title":"OG","og_site_name":"Site"}`,
		},
		{
			name: "ocr",
			wire: `{"format_type":"ocr","language":"eng","psm":3,"output_format":"tsv","table_count":1,"table_rows":4}`,
		},
		{
			name: "no payload",
			wire: `{"language":"fr","date":"2024-03-01","subject":"plain"}`,
		},
		{
			name: "unknown keys preserved",
			wire: `{"format_type":"pdf","title":"T","custom_field":"kept","nested":{"a":1}}`,
		},
		{
			name: "unknown format_type preserved",
			wire: `{"format_type":"hologram","shine":3,"language":"en"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var m Metadata
			if err := json.Unmarshal([]byte(tt.wire), &m); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			out, err := json.Marshal(m)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			got := normalize(t, out)
			want := normalize(t, []byte(tt.wire))
			if !reflect.DeepEqual(got, want) {
				t.Errorf("round trip changed the object:\n got %s\nwant %s", out, tt.wire)
			}
		})
	}
}

func TestMetadataDiscriminator(t *testing.T) {
	wire := `{"format_type":"excel","sheet_count":1,"sheet_names":["only"]}`
	var m Metadata
	if err := json.Unmarshal([]byte(wire), &m); err != nil {
		t.Fatal(err)
	}
	if m.Format.Kind != MetaExcel {
		t.Errorf("Kind = %q, want excel", m.Format.Kind)
	}
	if m.Format.Excel == nil || m.Format.Excel.SheetCount != 1 {
		t.Errorf("Excel payload = %+v", m.Format.Excel)
	}
	if m.Format.PDF != nil || m.Format.HTML != nil {
		t.Error("other payload pointers must stay nil")
	}
}

func TestMetadataUnknownDiscriminator(t *testing.T) {
	wire := `{"format_type":"hologram","shine":3}`
	var m Metadata
	if err := json.Unmarshal([]byte(wire), &m); err != nil {
		t.Fatal(err)
	}
	if m.Format.Kind != MetaFormat("hologram") {
		t.Errorf("Kind = %q, want the unknown tag kept", m.Format.Kind)
	}
	if m.Format.payload() != nil {
		t.Error("unknown kind must carry no payload")
	}
	if _, ok := m.Additional["shine"]; !ok {
		t.Error("sibling key missing from Additional")
	}
}

func TestMetadataPayloadKeysNotLeakedToAdditional(t *testing.T) {
	wire := `{"format_type":"text","line_count":3,"word_count":9,"character_count":40,"stray":"x"}`
	var m Metadata
	if err := json.Unmarshal([]byte(wire), &m); err != nil {
		t.Fatal(err)
	}
	if _, ok := m.Additional["line_count"]; ok {
		t.Error("recognized payload key ended up in Additional")
	}
	if _, ok := m.Additional["stray"]; !ok {
		t.Error("unrecognized key missing from Additional")
	}
}

func TestMetadataMarshalFromStructs(t *testing.T) {
	m := Metadata{
		Language: strp("en"),
		Format: FormatMeta{
			Kind: MetaPDF,
			PDF: &PDFMeta{
				Title:     strp("Annual Report"),
				PageCount: intp(42),
			},
		},
	}
	out, err := json.Marshal(m)
	if err != nil {
		t.Fatal(err)
	}
	got := normalize(t, out)
	if got["format_type"] != "pdf" {
		t.Errorf("format_type = %v", got["format_type"])
	}
	if got["title"] != "Annual Report" {
		t.Errorf("title = %v (payload must be flattened, not nested)", got["title"])
	}
	if got["page_count"] != float64(42) {
		t.Errorf("page_count = %v", got["page_count"])
	}
	if _, ok := got["pdf"]; ok {
		t.Error("payload must not appear as a nested object")
	}
}

func TestResultJSONShape(t *testing.T) {
	res := Result{
		Content:  "hello",
		MimeType: "text/plain",
		Tables:   []Table{},
		Success:  true,
	}
	out, err := json.Marshal(res)
	if err != nil {
		t.Fatal(err)
	}
	got := normalize(t, out)
	for _, key := range []string{"content", "mime_type", "metadata", "tables", "success"} {
		if _, ok := got[key]; !ok {
			t.Errorf("missing key %q in %s", key, out)
		}
	}
	if _, ok := got["chunks"]; ok {
		t.Error("empty chunks must be omitted")
	}
}
