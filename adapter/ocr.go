package adapter

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxOCRFileSize is the Mistral OCR API document limit.
const maxOCRFileSize = 50 * 1024 * 1024

const defaultMistralEndpoint = "https://api.mistral.ai/v1/ocr"

// OCRClient converts a PDF to markdown. The orchestrator uses it to upgrade
// PDF documents before chunking; a failure degrades the document to its
// original content instead of failing the run.
type OCRClient interface {
	ProcessPDF(ctx context.Context, content []byte, fileName string) (string, error)
}

// MistralOCR calls the Mistral OCR API with a base64 data URL and joins the
// returned per-page markdown with horizontal rules.
type MistralOCR struct {
	apiKey   string
	endpoint string
	model    string
	client   *http.Client
}

func NewMistralOCR(apiKey, endpoint, model string) *MistralOCR {
	if endpoint == "" {
		endpoint = defaultMistralEndpoint
	}
	if model == "" {
		model = "mistral-ocr-latest"
	}
	return &MistralOCR{
		apiKey:   apiKey,
		endpoint: endpoint,
		model:    model,
		client:   &http.Client{Timeout: 120 * time.Second},
	}
}

type ocrRequest struct {
	Model    string      `json:"model"`
	Document ocrDocument `json:"document"`
}

type ocrDocument struct {
	Type        string `json:"type"`
	DocumentURL string `json:"document_url"`
}

type ocrResponse struct {
	Pages []struct {
		Markdown string `json:"markdown"`
	} `json:"pages"`
	Markdown string `json:"markdown"`
	Content  string `json:"content"`
}

func (m *MistralOCR) ProcessPDF(ctx context.Context, content []byte, fileName string) (string, error) {
	if len(content) == 0 {
		return "", fmt.Errorf("empty pdf content for %s", fileName)
	}
	if len(content) > maxOCRFileSize {
		return "", fmt.Errorf("file %s exceeds 50MB ocr limit", fileName)
	}

	reqBody := ocrRequest{
		Model: m.model,
		Document: ocrDocument{
			Type:        "document_url",
			DocumentURL: "data:application/pdf;base64," + base64.StdEncoding.EncodeToString(content),
		},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal ocr request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := m.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ocr request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read ocr response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ocr request failed: status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var parsed ocrResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("parse ocr response: %w", err)
	}

	markdown := extractOCRMarkdown(parsed)
	if markdown == "" {
		return "", fmt.Errorf("no markdown content in ocr response for %s", fileName)
	}
	return markdown, nil
}

func extractOCRMarkdown(resp ocrResponse) string {
	if len(resp.Pages) > 0 {
		var parts []string
		for _, page := range resp.Pages {
			if strings.TrimSpace(page.Markdown) != "" {
				parts = append(parts, page.Markdown)
			}
		}
		return strings.Join(parts, "\n\n---\n\n")
	}
	if resp.Markdown != "" {
		return resp.Markdown
	}
	return resp.Content
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
