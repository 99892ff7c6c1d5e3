package extract

import (
	"strings"
	"testing"
)

func TestTextNeedsOCR(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{"empty", "", true},
		{"whitespace only", "  \n\t  ", true},
		{"clean prose", "The quarterly results exceeded expectations across all regions.", false},
		{"replacement chars", strings.Repeat("\ufffd", 20) + " ok", true},
		{"private use area", strings.Repeat("\ue000", 30) + " short", true},
		{"control chars", strings.Repeat("\x01\x02", 20) + "hi", true},
		{"zero width run", "looks fine \u200b\u200b\u200b but is not", true},
		{"isolated zero width", "a\u200bb is fine", false},
		{"newlines and tabs", "col1\tcol2\nval1\tval2\n", false},
		{"accented text", "Résumé détaillé des activités européennes.", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := textNeedsOCR(tt.text); got != tt.want {
				t.Errorf("textNeedsOCR(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestPrintableRatio(t *testing.T) {
	if r := printableRatio("hello"); r != 1.0 {
		t.Errorf("clean text ratio = %v", r)
	}
	if r := printableRatio(strings.Repeat("\ufffd", 10)); r != 0 {
		t.Errorf("all-garbage ratio = %v", r)
	}
	if r := printableRatio(""); r != 1.0 {
		t.Errorf("empty ratio = %v", r)
	}
}

func TestWordlikeRatio(t *testing.T) {
	if r := wordlikeRatio("these are normal words"); r != 1.0 {
		t.Errorf("normal words ratio = %v", r)
	}
	if r := wordlikeRatio("a b c d"); r != 0 {
		t.Errorf("single letters ratio = %v", r)
	}
	if r := wordlikeRatio(""); r != 0 {
		t.Errorf("empty ratio = %v", r)
	}
}
