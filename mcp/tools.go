package mcp

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/tieubaoca/memory-be/adapter"
	"github.com/tieubaoca/memory-be/types"
)

// SourceSearchInput is the shared input schema of the per-source search tools.
type SourceSearchInput struct {
	Keywords   []string `json:"keywords" jsonschema:"keywords to search for"`
	MaxResults int      `json:"max_results,omitempty" jsonschema:"maximum number of documents to return (default 20)"`
	Days       int      `json:"days,omitempty" jsonschema:"how many days back to search where the source supports it"`
}

// SourceSearchOutput is the shared output schema of the per-source search tools.
type SourceSearchOutput struct {
	Documents []DocumentOutput `json:"documents"`
	Count     int              `json:"count"`
}

// DocumentOutput is one retrieved document.
type DocumentOutput struct {
	SourceType string `json:"source_type"`
	SourceID   string `json:"source_id"`
	Title      string `json:"title,omitempty"`
	URL        string `json:"url,omitempty"`
	Content    string `json:"content"`
}

// WebFetchInput is the input schema for the web_fetch tool.
type WebFetchInput struct {
	URL string `json:"url" jsonschema:"the http(s) URL to fetch and extract text from"`
}

// OCRInput is the input schema for the process_pdf_ocr tool.
type OCRInput struct {
	FileName      string `json:"file_name" jsonschema:"name of the PDF file"`
	ContentBase64 string `json:"content_base64" jsonschema:"base64-encoded PDF bytes"`
}

// OCROutput is the output schema for the process_pdf_ocr tool.
type OCROutput struct {
	Markdown string `json:"markdown"`
}

// registerTools registers one search tool per configured source plus the
// web fetch and OCR utilities.
func (s *Server) registerTools() {
	searchTools := []struct {
		source      types.SourceType
		name        string
		description string
	}{
		{types.SourceDrive, "search_google_drive", "Search Google Drive documents by keyword"},
		{types.SourceChromeHistory, "search_chrome_history", "Search Chrome browsing history by keyword"},
		{types.SourceChatGPT, "search_chatgpt_archive", "Search archived ChatGPT conversations by keyword"},
		{types.SourceGemini, "search_gemini_archive", "Search archived Gemini conversations by keyword"},
	}
	for _, tool := range searchTools {
		if s.registry.Get(tool.source) == nil {
			continue
		}
		source := tool.source
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        tool.name,
			Description: tool.description,
		}, func(ctx context.Context, req *mcp.CallToolRequest, input SourceSearchInput) (*mcp.CallToolResult, SourceSearchOutput, error) {
			return s.handleSourceSearch(ctx, source, input)
		})
	}

	if wf := s.registry.Get(types.SourceWebFetch); wf != nil {
		if fetcher, ok := wf.(*adapter.WebFetchAdapter); ok {
			mcp.AddTool(s.server, &mcp.Tool{
				Name:        "web_fetch",
				Description: "Fetch a web page and extract its readable text",
			}, func(ctx context.Context, req *mcp.CallToolRequest, input WebFetchInput) (*mcp.CallToolResult, DocumentOutput, error) {
				return s.handleWebFetch(ctx, fetcher, input)
			})
		}
	}

	if s.ocr != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "process_pdf_ocr",
			Description: "Extract Markdown text from a PDF via OCR",
		}, s.handleOCR)
	}
}

func (s *Server) handleSourceSearch(ctx context.Context, source types.SourceType, input SourceSearchInput) (*mcp.CallToolResult, SourceSearchOutput, error) {
	a := s.registry.Get(source)
	if a == nil {
		return nil, SourceSearchOutput{}, fmt.Errorf("source %s is not configured", source)
	}
	maxResults := input.MaxResults
	if maxResults <= 0 {
		maxResults = 20
	}

	docs, err := a.Search(ctx, input.Keywords, adapter.SearchOptions{
		MaxResults: maxResults,
		Days:       input.Days,
	})
	if err != nil {
		return nil, SourceSearchOutput{}, err
	}

	output := SourceSearchOutput{
		Documents: make([]DocumentOutput, len(docs)),
		Count:     len(docs),
	}
	for i, doc := range docs {
		output.Documents[i] = DocumentOutput{
			SourceType: string(doc.SourceType),
			SourceID:   doc.SourceID,
			Title:      doc.Title,
			URL:        doc.URL,
			Content:    doc.Content,
		}
	}
	return nil, output, nil
}

func (s *Server) handleWebFetch(ctx context.Context, fetcher *adapter.WebFetchAdapter, input WebFetchInput) (*mcp.CallToolResult, DocumentOutput, error) {
	if !adapter.IsValidFetchURL(input.URL) {
		return nil, DocumentOutput{}, fmt.Errorf("URL is not fetchable: %s", input.URL)
	}
	doc, err := fetcher.Fetch(ctx, input.URL)
	if err != nil {
		return nil, DocumentOutput{}, err
	}
	return nil, DocumentOutput{
		SourceType: string(doc.SourceType),
		SourceID:   doc.SourceID,
		Title:      doc.Title,
		URL:        doc.URL,
		Content:    doc.Content,
	}, nil
}

func (s *Server) handleOCR(ctx context.Context, _ *mcp.CallToolRequest, input OCRInput) (*mcp.CallToolResult, OCROutput, error) {
	content, err := base64.StdEncoding.DecodeString(input.ContentBase64)
	if err != nil {
		return nil, OCROutput{}, fmt.Errorf("invalid base64 content: %w", err)
	}
	markdown, err := s.ocr.ProcessPDF(ctx, content, input.FileName)
	if err != nil {
		return nil, OCROutput{}, err
	}
	return nil, OCROutput{Markdown: markdown}, nil
}
