package adapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildDriveQuery(t *testing.T) {
	query := buildDriveQuery([]string{"sourdough", "bread recipe"}, nil)

	assert.Equal(t, "trashed=false and (fullText contains 'sourdough' or fullText contains 'bread recipe')", query)
}

func TestBuildDriveQueryEscapesQuotes(t *testing.T) {
	query := buildDriveQuery([]string{`it's`, `back\slash`}, nil)

	assert.Contains(t, query, `fullText contains 'it\'s'`)
	assert.Contains(t, query, `fullText contains 'back\\slash'`)
}

func TestBuildDriveQueryExcludesFolders(t *testing.T) {
	query := buildDriveQuery([]string{"notes"}, []string{"folder-1", "", "folder-2"})

	assert.Contains(t, query, "not 'folder-1' in parents")
	assert.Contains(t, query, "not 'folder-2' in parents")
	// Empty IDs are dropped, not rendered as not '' in parents.
	assert.NotContains(t, query, "not '' in parents")
}

func TestBuildDriveQueryNoKeywords(t *testing.T) {
	query := buildDriveQuery(nil, []string{"folder-1"})

	assert.Equal(t, "trashed=false and not 'folder-1' in parents", query)
}

func TestIsTextMime(t *testing.T) {
	textual := []string{
		"text/plain",
		"text/markdown",
		"text/csv",
		"application/json",
		"application/x-yaml",
		"application/sql",
	}
	for _, m := range textual {
		assert.True(t, isTextMime(m), m)
	}

	opaque := []string{
		"application/pdf",
		"image/png",
		"application/vnd.google-apps.document",
		"application/octet-stream",
	}
	for _, m := range opaque {
		assert.False(t, isTextMime(m), m)
	}
}
