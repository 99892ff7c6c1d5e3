// Package fault defines the error taxonomy shared by every docintel
// component. Each error carries a machine-checkable Kind alongside its
// message so callers can branch on error category without string-matching.
//
// Usage:
//
//	if err := engine.ExtractFile(ctx, path, cfg); err != nil {
//		switch fault.KindOf(err) {
//		case fault.KindUnsupportedFormat:
//			// skip
//		case fault.KindMissingDependency:
//			// install tool
//		}
//	}
package fault

import (
	"errors"
	"fmt"
	"strings"
)

// Kind identifies the category of a docintel error.
type Kind string

const (
	KindUnknown           Kind = "unknown"
	KindValidation        Kind = "validation"
	KindParsing           Kind = "parsing"
	KindOCR               Kind = "ocr"
	KindCache             Kind = "cache"
	KindImageProcessing   Kind = "image_processing"
	KindSerialization     Kind = "serialization"
	KindMissingDependency Kind = "missing_dependency"
	KindPlugin            Kind = "plugin"
	KindUnsupportedFormat Kind = "unsupported_format"
	KindIO                Kind = "io"
	KindRuntime           Kind = "runtime"
)

// Error is the concrete error type returned by docintel packages.
type Error struct {
	kind    Kind
	message string
	cause   error

	// Format is set for unsupported-format errors: the offending identifier.
	Format string
	// Plugin is set when a named plugin misbehaved.
	Plugin string
	// Dependency is set when a required external tool is absent.
	Dependency string
	// Panic is set when the error was recovered from a panic.
	Panic *PanicContext
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Kind returns the error category.
func (e *Error) Kind() Kind { return e.kind }

func (e *Error) Unwrap() error { return e.cause }

// KindOf classifies any error. Non-fault errors report KindUnknown.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.kind
	}
	return KindUnknown
}

// New creates an error with an explicit kind.
func New(kind Kind, message string) *Error {
	return &Error{kind: kind, message: message}
}

// Wrap creates an error with an explicit kind and underlying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{kind: kind, message: message, cause: cause}
}

// Validation reports bad or missing input.
func Validation(format string, args ...any) *Error {
	return &Error{kind: KindValidation, message: fmt.Sprintf(format, args...)}
}

// Parsing reports a malformed document.
func Parsing(message string, cause error) *Error {
	return &Error{kind: KindParsing, message: message, cause: cause}
}

// OCR reports an OCR backend failure.
func OCR(message string, cause error) *Error {
	return &Error{kind: KindOCR, message: message, cause: cause}
}

// Cache reports a cache-layer failure.
func Cache(message string, cause error) *Error {
	return &Error{kind: KindCache, message: message, cause: cause}
}

// ImageProcessing reports an image decode or conversion failure.
func ImageProcessing(message string, cause error) *Error {
	return &Error{kind: KindImageProcessing, message: message, cause: cause}
}

// Serialization reports an encode/decode failure.
func Serialization(message string, cause error) *Error {
	return &Error{kind: KindSerialization, message: message, cause: cause}
}

// MissingDependency reports an absent external tool.
func MissingDependency(dependency, message string) *Error {
	if strings.TrimSpace(message) == "" {
		message = fmt.Sprintf("missing dependency: %s", dependency)
	}
	return &Error{kind: KindMissingDependency, message: message, Dependency: dependency}
}

// PluginFault reports that a named plugin misbehaved.
func PluginFault(plugin, message string, cause error) *Error {
	if strings.TrimSpace(message) == "" {
		message = fmt.Sprintf("plugin %q failed", plugin)
	}
	return &Error{kind: KindPlugin, message: message, cause: cause, Plugin: plugin}
}

// UnsupportedFormat reports that no extractor handles the given identifier.
func UnsupportedFormat(format string) *Error {
	return &Error{
		kind:    KindUnsupportedFormat,
		message: fmt.Sprintf("unsupported format: %q", format),
		Format:  format,
	}
}

// IO reports a filesystem or network failure.
func IO(message string, cause error) *Error {
	return &Error{kind: KindIO, message: message, cause: cause}
}

// Runtime reports an unexpected internal failure, including recovered panics.
func Runtime(message string, cause error) *Error {
	return &Error{kind: KindRuntime, message: message, cause: cause}
}
