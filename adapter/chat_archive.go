package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/tieubaoca/memory-be/types"
)

// ChatArchiveAdapter holds conversations pushed by the browser-extension
// bridge and serves keyword search over them. Extraction from the pushed
// payloads is best-effort: page and export formats drift, so a chain of
// strategies is tried in priority order and the first non-empty result wins.
type ChatArchiveAdapter struct {
	source     types.SourceType
	mu         sync.RWMutex
	byID       map[string]conversation
	strategies []extractionStrategy
}

type conversation struct {
	ID        string
	Title     string
	Content   string
	URL       string
	UpdatedAt time.Time
}

// extractionStrategy parses one bridge payload shape. Confidence reflects how
// structural the match was; the adapter only uses it for logging-grade
// tie-breaking, order in the chain is what decides.
type extractionStrategy interface {
	name() string
	extract(raw []byte) ([]conversation, float64, error)
}

func NewChatArchiveAdapter(source types.SourceType) *ChatArchiveAdapter {
	return &ChatArchiveAdapter{
		source: source,
		byID:   make(map[string]conversation),
		strategies: []extractionStrategy{
			mappingTreeStrategy{},
			messageListStrategy{},
			htmlScrapeStrategy{},
		},
	}
}

func (a *ChatArchiveAdapter) Type() types.SourceType { return a.source }

// Ingest runs the strategy chain over one pushed payload and merges the
// result into the archive, newest version of a conversation winning.
func (a *ChatArchiveAdapter) Ingest(raw []byte) (int, error) {
	var convs []conversation
	var lastErr error
	for _, s := range a.strategies {
		extracted, _, err := s.extract(raw)
		if err != nil {
			lastErr = err
			continue
		}
		if len(extracted) > 0 {
			convs = extracted
			break
		}
	}
	if len(convs) == 0 {
		if lastErr != nil {
			return 0, fmt.Errorf("no extraction strategy matched: %w", lastErr)
		}
		return 0, fmt.Errorf("no conversations found in payload")
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	for _, c := range convs {
		existing, ok := a.byID[c.ID]
		if ok && existing.UpdatedAt.After(c.UpdatedAt) {
			continue
		}
		a.byID[c.ID] = c
	}
	return len(convs), nil
}

func (a *ChatArchiveAdapter) Search(ctx context.Context, keywords []string, opts SearchOptions) ([]types.Document, error) {
	if len(keywords) == 0 {
		return nil, nil
	}
	a.mu.RLock()
	defer a.mu.RUnlock()

	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = 50
	}

	var matched []conversation
	for _, c := range a.byID {
		haystack := strings.ToLower(c.Title + "\n" + c.Content)
		for _, kw := range keywords {
			if strings.Contains(haystack, strings.ToLower(kw)) {
				matched = append(matched, c)
				break
			}
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].UpdatedAt.After(matched[j].UpdatedAt)
	})
	if len(matched) > maxResults {
		matched = matched[:maxResults]
	}

	docs := make([]types.Document, 0, len(matched))
	for _, c := range matched {
		docs = append(docs, types.Document{
			Content:     c.Content,
			SourceType:  a.source,
			SourceID:    c.ID,
			Title:       c.Title,
			URL:         c.URL,
			RetrievedAt: time.Now(),
			MimeType:    "text/plain",
		})
	}
	return docs, nil
}

// Len reports how many conversations the archive currently holds.
func (a *ChatArchiveAdapter) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.byID)
}

// mappingTreeStrategy parses the ChatGPT export shape: a list of
// conversations each carrying a message tree under "mapping".
type mappingTreeStrategy struct{}

func (mappingTreeStrategy) name() string { return "mapping_tree" }

type mappingConversation struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	URL        string  `json:"url"`
	CreateTime float64 `json:"create_time"`
	UpdateTime float64 `json:"update_time"`
	Mapping    map[string]struct {
		Message *struct {
			Content struct {
				Parts []json.RawMessage `json:"parts"`
			} `json:"content"`
		} `json:"message"`
	} `json:"mapping"`
}

func (mappingTreeStrategy) extract(raw []byte) ([]conversation, float64, error) {
	var payload []mappingConversation
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, 0, fmt.Errorf("mapping tree parse: %w", err)
	}

	var out []conversation
	for _, c := range payload {
		if c.ID == "" || c.Title == "" || len(c.Mapping) == 0 {
			continue
		}
		var sb strings.Builder
		for _, node := range c.Mapping {
			if node.Message == nil {
				continue
			}
			for _, part := range node.Message.Content.Parts {
				var text string
				if err := json.Unmarshal(part, &text); err != nil {
					continue // non-text part (image, tool call)
				}
				if strings.TrimSpace(text) != "" {
					sb.WriteString(text)
					sb.WriteString("\n")
				}
			}
		}
		if sb.Len() == 0 {
			continue
		}
		out = append(out, conversation{
			ID:        c.ID,
			Title:     c.Title,
			Content:   sb.String(),
			URL:       c.URL,
			UpdatedAt: timestampOrNow(c.UpdateTime, c.CreateTime),
		})
	}
	return out, 0.9, nil
}

// messageListStrategy parses the flat shape some bridge versions send:
// conversations with a plain "messages" array.
type messageListStrategy struct{}

func (messageListStrategy) name() string { return "message_list" }

type listConversation struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	URL        string  `json:"url"`
	UpdateTime float64 `json:"update_time"`
	Messages   []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func (messageListStrategy) extract(raw []byte) ([]conversation, float64, error) {
	var payload []listConversation
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, 0, fmt.Errorf("message list parse: %w", err)
	}

	var out []conversation
	for _, c := range payload {
		if c.ID == "" || len(c.Messages) == 0 {
			continue
		}
		var sb strings.Builder
		for _, m := range c.Messages {
			if strings.TrimSpace(m.Content) == "" {
				continue
			}
			sb.WriteString(m.Role)
			sb.WriteString(": ")
			sb.WriteString(m.Content)
			sb.WriteString("\n")
		}
		if sb.Len() == 0 {
			continue
		}
		out = append(out, conversation{
			ID:        c.ID,
			Title:     c.Title,
			Content:   sb.String(),
			URL:       c.URL,
			UpdatedAt: timestampOrNow(c.UpdateTime, 0),
		})
	}
	return out, 0.7, nil
}

// htmlScrapeStrategy is the last resort: the bridge sent a raw HTML snapshot
// of the conversation page. Selectors track unstable page structure, so this
// is inherently best-effort.
type htmlScrapeStrategy struct{}

func (htmlScrapeStrategy) name() string { return "html_scrape" }

func (htmlScrapeStrategy) extract(raw []byte) ([]conversation, float64, error) {
	trimmed := strings.TrimSpace(string(raw))
	// The bridge wraps page snapshots as a JSON string; unwrap before
	// sniffing for markup.
	if strings.HasPrefix(trimmed, `"`) {
		var unquoted string
		if err := json.Unmarshal([]byte(trimmed), &unquoted); err == nil {
			trimmed = strings.TrimSpace(unquoted)
		}
	}
	if !strings.HasPrefix(trimmed, "<") {
		return nil, 0, fmt.Errorf("payload is not html")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(trimmed))
	if err != nil {
		return nil, 0, fmt.Errorf("html parse: %w", err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	var sb strings.Builder
	selectors := []string{
		"[data-message-author-role]",
		".conversation-turn",
		"article",
	}
	for _, sel := range selectors {
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			text := strings.TrimSpace(s.Text())
			if text != "" {
				sb.WriteString(text)
				sb.WriteString("\n")
			}
		})
		if sb.Len() > 0 {
			break
		}
	}
	if sb.Len() == 0 {
		return nil, 0, nil
	}
	if title == "" {
		title = "Untitled conversation"
	}
	return []conversation{{
		ID:        "html:" + title,
		Title:     title,
		Content:   sb.String(),
		UpdatedAt: time.Now(),
	}}, 0.4, nil
}

func timestampOrNow(primary, fallback float64) time.Time {
	if primary > 0 {
		return time.Unix(int64(primary), 0)
	}
	if fallback > 0 {
		return time.Unix(int64(fallback), 0)
	}
	return time.Now()
}
