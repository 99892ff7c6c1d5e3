package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/docintel/detect"
)

// RegisterMCP registers the docintel tools on an MCP server.
//
// Registered tools:
//
//	docintel_extract — extract structured content from a document file
//	docintel_detect  — detect a document's format
//	docintel_formats — list supported formats
//	docintel_batch   — extract many files with bounded concurrency
func (e *Engine) RegisterMCP(srv *mcp.Server) {
	e.registerExtractTool(srv)
	e.registerDetectTool(srv)
	e.registerFormatsTool(srv)
	e.registerBatchTool(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// addTool wires a JSON-in/JSON-out handler as an MCP tool. Handler errors
// become tool errors; the response is serialized into a single text block.
func addTool(srv *mcp.Server, tool *mcp.Tool, handler func(ctx context.Context, args json.RawMessage) (any, error)) {
	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		resp, err := handler(ctx, req.Params.Arguments)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(errors.New(err.Error()))
			return &res, nil
		}
		data, err := json.Marshal(resp)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(fmt.Errorf("marshal: %w", err))
			return &res, nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		}, nil
	})
}

// --- extract ---

type mcpExtractReq struct {
	Path   string  `json:"path"`
	Config *Config `json:"config,omitempty"`
}

func (e *Engine) registerExtractTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "docintel_extract",
		Description: "Extract structured content, tables and metadata from a document file.",
		InputSchema: inputSchema(map[string]any{
			"path":   map[string]any{"type": "string", "description": "File path to extract"},
			"config": map[string]any{"type": "object", "description": "Optional extraction configuration"},
		}, []string{"path"}),
	}

	addTool(srv, tool, func(ctx context.Context, args json.RawMessage) (any, error) {
		var req mcpExtractReq
		if err := json.Unmarshal(args, &req); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
		return e.ExtractFile(ctx, req.Path, req.Config)
	})
}

// --- detect ---

type mcpDetectReq struct {
	Path string `json:"path"`
}

func (e *Engine) registerDetectTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "docintel_detect",
		Description: "Detect the format of a document file from its content and extension.",
		InputSchema: inputSchema(map[string]any{
			"path": map[string]any{"type": "string", "description": "File path to classify"},
		}, []string{"path"}),
	}

	addTool(srv, tool, func(ctx context.Context, args json.RawMessage) (any, error) {
		var req mcpDetectReq
		if err := json.Unmarshal(args, &req); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
		header, _ := readHeader(req.Path)
		format, err := detect.DetectFromPath(req.Path, header)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"format":    string(format),
			"mime_type": detect.MimeType(format),
		}, nil
	})
}

// --- formats ---

func (e *Engine) registerFormatsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "docintel_formats",
		Description: "List all supported document formats with MIME types and extensions.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	addTool(srv, tool, func(_ context.Context, _ json.RawMessage) (any, error) {
		type formatInfo struct {
			Format     string   `json:"format"`
			MimeType   string   `json:"mime_type"`
			Extensions []string `json:"extensions"`
		}
		var out []formatInfo
		for _, f := range detect.Formats() {
			out = append(out, formatInfo{
				Format:     string(f),
				MimeType:   detect.MimeType(f),
				Extensions: detect.Extensions(f),
			})
		}
		return map[string]any{"formats": out}, nil
	})
}

// --- batch ---

type mcpBatchReq struct {
	Paths  []string `json:"paths"`
	Config *Config  `json:"config,omitempty"`
}

func (e *Engine) registerBatchTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "docintel_batch",
		Description: "Extract many document files concurrently; per-file failures are isolated.",
		InputSchema: inputSchema(map[string]any{
			"paths":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"config": map[string]any{"type": "object", "description": "Optional extraction configuration"},
		}, []string{"paths"}),
	}

	addTool(srv, tool, func(ctx context.Context, args json.RawMessage) (any, error) {
		var req mcpBatchReq
		if err := json.Unmarshal(args, &req); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
		return map[string]any{"results": e.Batch(ctx, req.Paths, req.Config)}, nil
	})
}

// readHeader reads the leading bytes of a file for content sniffing.
func readHeader(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	buf := make([]byte, 8192)
	n, _ := f.Read(buf)
	return buf[:n], nil
}
