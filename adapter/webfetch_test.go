package adapter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tieubaoca/memory-be/types"
)

func TestIsValidFetchURL(t *testing.T) {
	valid := []string{
		"https://example.com/article",
		"http://news.example.org/2026/08/post?id=3",
	}
	for _, u := range valid {
		assert.True(t, IsValidFetchURL(u), u)
	}

	invalid := []string{
		"",
		"not a url",
		"ftp://example.com/file",
		"file:///etc/passwd",
		"chrome://settings",
		"https://localhost/admin",
		"http://127.0.0.1:8080/",
		"https://[::1]/",
		"https:///missing-host",
	}
	for _, u := range invalid {
		assert.False(t, IsValidFetchURL(u), u)
	}
}

func TestExtractPageText(t *testing.T) {
	html := `<html>
<head><title>  Bread Science  </title><style>body { color: red }</style></head>
<body>
  <nav>Home | About</nav>
  <script>trackPageview()</script>
  <h1>Bread Science</h1>
  <p>Gluten develops with kneading.</p>

  <footer>Copyright</footer>
</body>
</html>`

	title, text, err := extractPageText(html)
	require.NoError(t, err)
	assert.Equal(t, "Bread Science", title)
	assert.Contains(t, text, "Gluten develops with kneading.")
	assert.NotContains(t, text, "trackPageview")
	assert.NotContains(t, text, "color: red")
	assert.NotContains(t, text, "Home | About")
	assert.NotContains(t, text, "Copyright")
	// Blank lines are squeezed out.
	assert.NotContains(t, text, "\n\n")
}

func TestFetchRejectsInvalidURL(t *testing.T) {
	a := NewWebFetchAdapter()
	_, err := a.Fetch(context.Background(), "file:///etc/passwd")
	assert.Error(t, err)
}

func TestFetchServesFromCache(t *testing.T) {
	a := NewWebFetchAdapter()
	const u = "https://example.com/cached"
	cached := types.Document{Content: "cached text", SourceID: u, URL: u}
	a.cache[u] = cacheEntry{doc: cached, fetchedAt: time.Now()}

	doc, err := a.Fetch(context.Background(), u)
	require.NoError(t, err)
	assert.Equal(t, "cached text", doc.Content)
}

func TestSearchFiltersNonURLKeywords(t *testing.T) {
	a := NewWebFetchAdapter()
	const u = "https://example.com/page"
	a.cache[u] = cacheEntry{
		doc:       types.Document{Content: "page text", SourceID: u, URL: u, SourceType: types.SourceWebFetch},
		fetchedAt: time.Now(),
	}

	docs, err := a.Search(context.Background(), []string{"plain keyword", u}, SearchOptions{})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, u, docs[0].SourceID)
}

func TestFetchAllEmptyAndFailing(t *testing.T) {
	a := NewWebFetchAdapter()
	assert.Nil(t, a.FetchAll(context.Background(), nil))
	// Invalid targets are skipped, never returned as errors.
	docs := a.FetchAll(context.Background(), []string{"ftp://example.com/x"})
	assert.Empty(t, docs)
}
