package fault

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"validation", Validation("empty input"), KindValidation},
		{"parsing", Parsing("bad pdf", nil), KindParsing},
		{"ocr", OCR("tesseract failed", nil), KindOCR},
		{"cache", Cache("disk tier", nil), KindCache},
		{"image", ImageProcessing("decode", nil), KindImageProcessing},
		{"serialization", Serialization("marshal", nil), KindSerialization},
		{"missing_dep", MissingDependency("tesseract", ""), KindMissingDependency},
		{"plugin", PluginFault("myplugin", "", nil), KindPlugin},
		{"unsupported", UnsupportedFormat("application/x-foo"), KindUnsupportedFormat},
		{"io", IO("read", nil), KindIO},
		{"runtime", Runtime("oops", nil), KindRuntime},
		{"wrapped", fmt.Errorf("context: %w", Parsing("bad", nil)), KindParsing},
		{"plain", errors.New("plain"), KindUnknown},
		{"nil-ish", fmt.Errorf("no fault inside"), KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestErrorFields(t *testing.T) {
	uf := UnsupportedFormat("application/x-foo")
	if uf.Format != "application/x-foo" {
		t.Errorf("Format = %q", uf.Format)
	}

	md := MissingDependency("pdftoppm", "")
	if md.Dependency != "pdftoppm" {
		t.Errorf("Dependency = %q", md.Dependency)
	}
	if !strings.Contains(md.Error(), "pdftoppm") {
		t.Errorf("message should name the dependency: %q", md.Error())
	}

	pe := PluginFault("sanitizer", "", errors.New("boom"))
	if pe.Plugin != "sanitizer" {
		t.Errorf("Plugin = %q", pe.Plugin)
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := Parsing("outer", cause)
	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the cause")
	}
	if !strings.Contains(err.Error(), "root cause") {
		t.Errorf("Error() should include cause: %q", err.Error())
	}
}

func TestFromPanic(t *testing.T) {
	var got *Error
	func() {
		defer func() {
			if r := recover(); r != nil {
				got = FromPanic(r)
			}
		}()
		panic("kaboom")
	}()

	if got == nil {
		t.Fatal("expected recovered error")
	}
	if got.Kind() != KindRuntime {
		t.Errorf("Kind = %q, want runtime", got.Kind())
	}
	if got.Panic == nil {
		t.Fatal("expected panic context")
	}
	if got.Panic.Message != "kaboom" {
		t.Errorf("Message = %q", got.Panic.Message)
	}
	if got.Panic.File == "" || got.Panic.Line == 0 {
		t.Errorf("expected file/line, got %q:%d", got.Panic.File, got.Panic.Line)
	}
	if !strings.Contains(got.Panic.Function, "fault") {
		t.Errorf("Function = %q, want a frame in this package", got.Panic.Function)
	}
	if got.Panic.Timestamp.IsZero() {
		t.Error("expected timestamp")
	}
}
