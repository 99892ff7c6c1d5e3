// Package boundary exposes the extraction engine through a foreign-call
// friendly surface: numeric status codes, JSON envelopes, and a last-error
// accessor instead of Go error values. Panics never cross the boundary.
package boundary

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/hazyhaar/docintel/extract"
	"github.com/hazyhaar/docintel/fault"
)

// Code is the numeric status of a boundary call.
type Code int32

const (
	CodeOK                Code = 0
	CodeError             Code = 1
	CodePanic             Code = 2
	CodeInvalidArgument   Code = 3
	CodeIO                Code = 4
	CodeParsing           Code = 5
	CodeOCR               Code = 6
	CodeMissingDependency Code = 7
)

// codeFor maps an error to its boundary code.
func codeFor(err error) Code {
	var fe *fault.Error
	if errors.As(err, &fe) && fe.Panic != nil {
		return CodePanic
	}
	switch fault.KindOf(err) {
	case fault.KindValidation:
		return CodeInvalidArgument
	case fault.KindIO:
		return CodeIO
	case fault.KindParsing, fault.KindSerialization, fault.KindUnsupportedFormat:
		return CodeParsing
	case fault.KindOCR:
		return CodeOCR
	case fault.KindMissingDependency:
		return CodeMissingDependency
	case fault.KindRuntime:
		return CodePanic
	}
	return CodeError
}

// envelope is the JSON shape of every boundary response.
type envelope struct {
	Code   Code            `json:"code"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *errorBody      `json:"error,omitempty"`
}

type errorBody struct {
	Kind    string              `json:"kind"`
	Message string              `json:"message"`
	Panic   *fault.PanicContext `json:"panic,omitempty"`
}

// Boundary wraps an engine for foreign callers. Safe for concurrent use;
// the last error is shared per Boundary, callers needing isolation create
// one Boundary per caller thread.
type Boundary struct {
	engine *extract.Engine

	mu        sync.Mutex
	lastCode  Code
	lastErr   string
	lastPanic []byte
}

// New wraps an engine.
func New(engine *extract.Engine) *Boundary {
	return &Boundary{engine: engine}
}

// LastError reports the most recent failed call: its code, message and, for
// panics, the JSON-encoded panic context. Code is CodeOK with an empty
// message when the last call succeeded.
func (b *Boundary) LastError() (Code, string, []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastCode, b.lastErr, b.lastPanic
}

func (b *Boundary) setLastError(code Code, msg string, panicJSON []byte) {
	b.mu.Lock()
	b.lastCode = code
	b.lastErr = msg
	b.lastPanic = panicJSON
	b.mu.Unlock()
}

// ExtractFile extracts one file. configJSON is an optional extraction
// config; nil or empty means defaults.
func (b *Boundary) ExtractFile(path string, configJSON []byte) (Code, []byte) {
	return b.call(func(ctx context.Context, cfg *extract.Config) (any, error) {
		if path == "" {
			return nil, fault.Validation("path must not be empty")
		}
		return b.engine.ExtractFile(ctx, path, cfg)
	}, configJSON)
}

// ExtractBytes extracts a byte buffer. The MIME type is mandatory at this
// surface: foreign callers pass opaque buffers, so content sniffing alone
// cannot be trusted to pick the caller's intended format.
func (b *Boundary) ExtractBytes(data []byte, mimeType string, configJSON []byte) (Code, []byte) {
	return b.call(func(ctx context.Context, cfg *extract.Config) (any, error) {
		if mimeType == "" {
			return nil, fault.Validation("mime_type must not be empty")
		}
		return b.engine.ExtractBytes(ctx, data, mimeType, cfg)
	}, configJSON)
}

// BatchExtractFiles extracts many files; the result is the ordered item
// list with per-item errors inlined.
func (b *Boundary) BatchExtractFiles(pathsJSON, configJSON []byte) (Code, []byte) {
	return b.call(func(ctx context.Context, cfg *extract.Config) (any, error) {
		var paths []string
		if err := json.Unmarshal(pathsJSON, &paths); err != nil {
			return nil, fault.Validation("paths must be a JSON string array: %v", err)
		}
		return b.engine.Batch(ctx, paths, cfg), nil
	}, configJSON)
}

// call runs one boundary operation: config decode, panic containment,
// envelope encoding, last-error bookkeeping.
func (b *Boundary) call(fn func(ctx context.Context, cfg *extract.Config) (any, error), configJSON []byte) (code Code, out []byte) {
	defer func() {
		if r := recover(); r != nil {
			code, out = b.fail(fault.FromPanic(r))
		}
	}()

	cfg, err := decodeConfig(configJSON)
	if err != nil {
		return b.fail(err)
	}

	result, err := fn(context.Background(), cfg)
	if err != nil {
		return b.fail(err)
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return b.fail(fault.Serialization("encode result", err))
	}
	b.setLastError(CodeOK, "", nil)
	data, _ := json.Marshal(envelope{Code: CodeOK, Result: raw})
	return CodeOK, data
}

func (b *Boundary) fail(err error) (Code, []byte) {
	body := &errorBody{
		Kind:    string(fault.KindOf(err)),
		Message: err.Error(),
	}
	var fe *fault.Error
	if errors.As(err, &fe) {
		body.Panic = fe.Panic
	}

	code := codeFor(err)
	var panicJSON []byte
	if body.Panic != nil {
		panicJSON, _ = json.Marshal(body.Panic)
	}
	b.setLastError(code, err.Error(), panicJSON)

	data, _ := json.Marshal(envelope{Code: code, Error: body})
	return code, data
}

func decodeConfig(configJSON []byte) (*extract.Config, error) {
	if len(configJSON) == 0 {
		return nil, nil
	}
	cfg := extract.DefaultConfig()
	if err := json.Unmarshal(configJSON, cfg); err != nil {
		return nil, fault.Validation("invalid config json: %v", err)
	}
	return cfg, nil
}
