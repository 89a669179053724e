package types

import (
	"strings"
	"time"
)

// SourceType identifies the external system a document was retrieved from.
type SourceType string

const (
	SourceDrive         SourceType = "drive"
	SourceChromeHistory SourceType = "chrome_history"
	SourceChatGPT       SourceType = "chatgpt"
	SourceGemini        SourceType = "gemini"
	SourceWebFetch      SourceType = "web_fetch"
	SourceOCR           SourceType = "ocr"
)

// Document is a normalized unit of retrieved content. It is created by a
// source adapter during fan-out, read by the indexer, and never mutated
// after creation.
type Document struct {
	Content     string     `json:"content"`
	SourceType  SourceType `json:"source_type"`
	SourceID    string     `json:"source_id"`
	Title       string     `json:"title,omitempty"`
	URL         string     `json:"url,omitempty"`
	RetrievedAt time.Time  `json:"retrieved_at"`
	MimeType    string     `json:"mime_type,omitempty"`
}

// DocumentKey is the dedup identity of a document within one pipeline run.
type DocumentKey struct {
	SourceType SourceType
	SourceID   string
}

func (d Document) Key() DocumentKey {
	return DocumentKey{SourceType: d.SourceType, SourceID: d.SourceID}
}

// Chunk is a retrieval-sized slice of exactly one document. The back-reference
// fields carry everything citation mapping needs without holding the parent.
type Chunk struct {
	Text             string     `json:"text"`
	ParentSourceID   string     `json:"parent_source_id"`
	ParentSourceType SourceType `json:"parent_source_type"`
	ParentTitle      string     `json:"parent_title,omitempty"`
	ParentURL        string     `json:"parent_url,omitempty"`
	RetrievedAt      time.Time  `json:"retrieved_at"`
	HeaderPath       []string   `json:"header_path,omitempty"`
}

// RetrievalResult is a scored chunk returned by the semantic retriever.
type RetrievalResult struct {
	Chunk     Chunk   `json:"chunk"`
	Score     float32 `json:"score"`
	QueryUsed string  `json:"query_used"`
}

// ReportCitation is a numbered reference in the final report. Indices are
// dense and 1-based for the duration of one report generation.
type ReportCitation struct {
	Index       int        `json:"index"`
	SourceURL   string     `json:"source_url,omitempty"`
	SourceTitle string     `json:"source_title,omitempty"`
	SourceType  SourceType `json:"source_type"`
}

// Report is the synthesized Markdown output plus its citation table.
type Report struct {
	Body      string           `json:"body"`
	Citations []ReportCitation `json:"citations"`
}

// KeywordSet is the tiered keyword output of the keyword generator.
// Primary is guaranteed non-empty by the generator's fallback.
type KeywordSet struct {
	Primary   []string `json:"primary_keywords"`
	Secondary []string `json:"secondary_keywords"`
	Context   []string `json:"context_keywords"`
	Negative  []string `json:"negative_keywords"`
}

// Flatten merges the searchable tiers, dropping case-insensitive duplicates
// and capping the result. Negative keywords are excluded: they narrow
// ranking, not recall.
func (k KeywordSet) Flatten(max int) []string {
	seen := make(map[string]bool)
	var out []string
	for _, tier := range [][]string{k.Primary, k.Secondary, k.Context} {
		for _, kw := range tier {
			key := strings.ToLower(strings.TrimSpace(kw))
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, kw)
			if max > 0 && len(out) >= max {
				return out
			}
		}
	}
	return out
}
