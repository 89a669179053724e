package utils

import (
	"net/url"
	"strings"
)

// CleanText strips control characters and extraction artifacts that confuse
// both chunking and embedding.
func CleanText(text string) string {
	replacements := map[string]string{
		"\x00": "",   // Null character
		"�":    "",   // Unicode replacement character
		"\x1b": "",   // Escape character
		"\r":   "",   // Carriage return
		"\f":   "\n", // Form feed to newline
	}
	cleaned := text
	for old, repl := range replacements {
		cleaned = strings.ReplaceAll(cleaned, old, repl)
	}
	for strings.Contains(cleaned, "  ") {
		cleaned = strings.ReplaceAll(cleaned, "  ", " ")
	}
	return strings.TrimSpace(cleaned)
}

var skipURLPatterns = []string{
	"google.com/search",
	"bing.com/search",
	"youtube.com/watch",
	"twitter.com",
	"facebook.com",
	"instagram.com",
	"localhost",
	"127.0.0.1",
}

var skipURLExtensions = []string{
	".pdf", ".doc", ".docx", ".xls", ".xlsx", ".zip", ".tar", ".gz",
}

// IsFetchableURL reports whether a history URL is worth a web fetch: public
// HTTP(S) page content, not search result pages, social feeds, or downloads.
func IsFetchableURL(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false
	}
	lower := strings.ToLower(raw)
	for _, pattern := range skipURLPatterns {
		if strings.Contains(lower, pattern) {
			return false
		}
	}
	for _, ext := range skipURLExtensions {
		if strings.HasSuffix(lower, ext) {
			return false
		}
	}
	return true
}

// IsMarkdown reports whether document content should get header-aware
// splitting: OCR output, .md files, or content that opens with a heading.
func IsMarkdown(title, mimeType, content string) bool {
	if mimeType == "text/markdown" {
		return true
	}
	if strings.Contains(strings.ToLower(title), ".md") {
		return true
	}
	return strings.HasPrefix(strings.TrimSpace(content), "#")
}
