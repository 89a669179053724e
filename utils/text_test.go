package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"control characters", "a\x00b\x1bc", "abc"},
		{"replacement character", "caf�e", "cafe"},
		{"carriage returns", "line1\r\nline2\r", "line1\nline2"},
		{"form feed becomes newline", "page1\fpage2", "page1\npage2"},
		{"collapses runs of spaces", "too    many   spaces", "too many spaces"},
		{"trims surrounding whitespace", "  padded  ", "padded"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanText(tt.input))
		})
	}
}

func TestIsFetchableURL(t *testing.T) {
	fetchable := []string{
		"https://go.dev/blog/generics",
		"http://example.com/article?utm=x",
	}
	for _, u := range fetchable {
		assert.True(t, IsFetchableURL(u), u)
	}

	skipped := []string{
		"chrome://newtab",
		"file:///home/me/doc.txt",
		"https://www.google.com/search?q=golang",
		"https://www.youtube.com/watch?v=abc",
		"https://twitter.com/someone/status/1",
		"http://localhost:3000/debug",
		"https://example.com/report.pdf",
		"https://example.com/archive.tar.gz",
		"https://example.com/data.XLSX",
	}
	for _, u := range skipped {
		assert.False(t, IsFetchableURL(u), u)
	}
}

func TestIsMarkdown(t *testing.T) {
	assert.True(t, IsMarkdown("notes", "text/markdown", "plain body"))
	assert.True(t, IsMarkdown("README.md", "text/plain", "plain body"))
	assert.True(t, IsMarkdown("scan", "text/plain", "\n# Heading first"))
	assert.False(t, IsMarkdown("notes.txt", "text/plain", "no headings here"))
	assert.False(t, IsMarkdown("", "", ""))
}
