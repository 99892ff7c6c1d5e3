package extract

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/docintel/detect"
)

var testMCPImpl = &mcp.Implementation{Name: "docintel-test", Version: "0.1.0"}

func mcpSession(t *testing.T) *mcp.ClientSession {
	t.Helper()
	e := newTestEngine(t)
	srv := mcp.NewServer(testMCPImpl, nil)
	e.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	client := mcp.NewClient(testMCPImpl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func mcpCallTool(t *testing.T, session *mcp.ClientSession, name string, args any) string {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	// IsError is the wire-level tool failure flag; the unexported error set
	// by SetError never reaches the client side.
	if result.IsError {
		t.Fatalf("CallTool(%s) tool error: %s", name, resultText(t, result))
	}
	return resultText(t, result)
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("result has no content")
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func TestMCPFormats(t *testing.T) {
	resetRegistries(t)
	session := mcpSession(t)

	text := mcpCallTool(t, session, "docintel_formats", map[string]any{})

	var resp struct {
		Formats []struct {
			Format     string   `json:"format"`
			MimeType   string   `json:"mime_type"`
			Extensions []string `json:"extensions"`
		} `json:"formats"`
	}
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Formats) != len(detect.Formats()) {
		t.Errorf("got %d formats, want %d", len(resp.Formats), len(detect.Formats()))
	}
	seen := map[string]bool{}
	for _, f := range resp.Formats {
		seen[f.Format] = true
		if f.MimeType == "" {
			t.Errorf("format %q missing mime type", f.Format)
		}
	}
	for _, want := range []string{"pdf", "docx", "html", "txt", "eml"} {
		if !seen[want] {
			t.Errorf("missing format %q", want)
		}
	}
}

func TestMCPDetect(t *testing.T) {
	resetRegistries(t)
	session := mcpSession(t)

	path := writeTemp(t, "notes.md", []byte("# Heading\n\nBody text."))
	text := mcpCallTool(t, session, "docintel_detect", map[string]any{"path": path})

	var resp struct {
		Format   string `json:"format"`
		MimeType string `json:"mime_type"`
	}
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Format != "md" {
		t.Errorf("format = %q, want md", resp.Format)
	}
	if resp.MimeType != "text/markdown" {
		t.Errorf("mime_type = %q", resp.MimeType)
	}
}

func TestMCPExtract(t *testing.T) {
	resetRegistries(t)
	extractors.Register("fake-text", 0, &fakeExtractor{formats: []detect.Format{detect.FormatTXT}})
	session := mcpSession(t)

	path := writeTemp(t, "doc.txt", []byte("mcp extract content"))
	text := mcpCallTool(t, session, "docintel_extract", map[string]any{"path": path})

	var res Result
	if err := json.Unmarshal([]byte(text), &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if res.Content != "mcp extract content" {
		t.Errorf("Content = %q", res.Content)
	}
	if !res.Success {
		t.Error("Success = false")
	}
}

func TestMCPExtractError(t *testing.T) {
	resetRegistries(t)
	session := mcpSession(t)

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "docintel_extract",
		Arguments: map[string]any{"path": "/nonexistent/ghost.txt"},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error for missing file")
	}
	if text := resultText(t, result); !strings.Contains(text, "ghost.txt") {
		t.Errorf("tool error = %q, want path mentioned", text)
	}
}

func TestMCPBatch(t *testing.T) {
	resetRegistries(t)
	extractors.Register("fake-text", 0, &fakeExtractor{formats: []detect.Format{detect.FormatTXT}})
	session := mcpSession(t)

	good := writeTemp(t, "a.txt", []byte("alpha"))
	text := mcpCallTool(t, session, "docintel_batch", map[string]any{
		"paths": []string{good, "/nonexistent/b.txt"},
	})

	var resp struct {
		Results []map[string]json.RawMessage `json:"results"`
	}
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("got %d results", len(resp.Results))
	}
	if _, ok := resp.Results[0]["result"]; !ok {
		t.Error("item 0 missing result")
	}
	if _, ok := resp.Results[1]["error"]; !ok {
		t.Error("item 1 missing error")
	}
}
