package adapter

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github.com/tieubaoca/memory-be/types"
)

const (
	fetchCacheTTL       = 30 * time.Minute
	maxFetchBodySize    = 2 * 1024 * 1024
	defaultFetchWorkers = 3
)

var blockedHosts = []string{"localhost", "127.0.0.1", "0.0.0.0", "::1"}

// WebFetchAdapter downloads public web pages and reduces them to text. The
// retrieval orchestrator uses it to follow up URLs found in browser history;
// as a registered source it treats any keyword that parses as a URL as a
// fetch target.
type WebFetchAdapter struct {
	client  *http.Client
	limiter *rate.Limiter
	workers int

	mu    sync.Mutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	doc       types.Document
	fetchedAt time.Time
}

func NewWebFetchAdapter() *WebFetchAdapter {
	return &WebFetchAdapter{
		client:  &http.Client{Timeout: 20 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(5), 5),
		workers: defaultFetchWorkers,
		cache:   make(map[string]cacheEntry),
	}
}

func (a *WebFetchAdapter) Type() types.SourceType { return types.SourceWebFetch }

func (a *WebFetchAdapter) Search(ctx context.Context, keywords []string, opts SearchOptions) ([]types.Document, error) {
	var urls []string
	for _, kw := range keywords {
		if IsValidFetchURL(kw) {
			urls = append(urls, kw)
		}
	}
	if opts.MaxResults > 0 && len(urls) > opts.MaxResults {
		urls = urls[:opts.MaxResults]
	}
	return a.FetchAll(ctx, urls), nil
}

// FetchAll fetches URLs concurrently through the rate limiter. Individual
// failures are logged and skipped; the call itself never fails.
func (a *WebFetchAdapter) FetchAll(ctx context.Context, urls []string) []types.Document {
	if len(urls) == 0 {
		return nil
	}

	results := make([]types.Document, len(urls))
	ok := make([]bool, len(urls))

	sem := make(chan struct{}, a.workers)
	var wg sync.WaitGroup
	for i, u := range urls {
		wg.Add(1)
		go func(i int, u string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			doc, err := a.Fetch(ctx, u)
			if err != nil {
				log.Printf("web fetch: %s: %v", u, err)
				return
			}
			results[i] = doc
			ok[i] = true
		}(i, u)
	}
	wg.Wait()

	var docs []types.Document
	for i := range results {
		if ok[i] {
			docs = append(docs, results[i])
		}
	}
	return docs
}

// Fetch returns one page as a document, serving repeated URLs from a
// 30-minute cache.
func (a *WebFetchAdapter) Fetch(ctx context.Context, rawURL string) (types.Document, error) {
	if !IsValidFetchURL(rawURL) {
		return types.Document{}, fmt.Errorf("invalid url: %s", rawURL)
	}

	a.mu.Lock()
	if entry, hit := a.cache[rawURL]; hit && time.Since(entry.fetchedAt) < fetchCacheTTL {
		a.mu.Unlock()
		return entry.doc, nil
	}
	a.mu.Unlock()

	if err := a.limiter.Wait(ctx); err != nil {
		return types.Document{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return types.Document{}, err
	}
	req.Header.Set("User-Agent", "memory-be/1.0")

	resp, err := a.client.Do(req)
	if err != nil {
		return types.Document{}, fmt.Errorf("fetch failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return types.Document{}, fmt.Errorf("fetch failed: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBodySize))
	if err != nil {
		return types.Document{}, fmt.Errorf("read body: %w", err)
	}

	title, text, err := extractPageText(string(body))
	if err != nil {
		return types.Document{}, err
	}

	doc := types.Document{
		Content:     text,
		SourceType:  types.SourceWebFetch,
		SourceID:    rawURL,
		Title:       title,
		URL:         rawURL,
		RetrievedAt: time.Now(),
		MimeType:    "text/html",
	}

	a.mu.Lock()
	a.cache[rawURL] = cacheEntry{doc: doc, fetchedAt: time.Now()}
	a.mu.Unlock()
	return doc, nil
}

// extractPageText strips scripts and styles and flattens the page body.
func extractPageText(html string) (title, text string, err error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", "", fmt.Errorf("html parse: %w", err)
	}
	title = strings.TrimSpace(doc.Find("title").First().Text())
	doc.Find("script, style, noscript, nav, footer").Remove()

	var sb strings.Builder
	doc.Find("body").Each(func(_ int, s *goquery.Selection) {
		sb.WriteString(s.Text())
	})
	lines := strings.Split(sb.String(), "\n")
	var cleaned []string
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	return title, strings.Join(cleaned, "\n"), nil
}

// IsValidFetchURL allows only public HTTP(S) targets.
func IsValidFetchURL(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return false
	}
	if parsed.Host == "" {
		return false
	}
	host := strings.ToLower(parsed.Hostname())
	for _, blocked := range blockedHosts {
		if host == blocked {
			return false
		}
	}
	return true
}
