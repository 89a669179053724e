package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"unicode"

	"github.com/tieubaoca/memory-be/types"
)

const keywordSystemPrompt = `You are a search keyword generator. Given a user question, produce search keywords for document retrieval.
Respond with ONLY a JSON object, no prose, in this exact shape:
{
  "primary_keywords": ["..."],
  "secondary_keywords": ["..."],
  "context_keywords": ["..."],
  "negative_keywords": ["..."]
}
primary_keywords are the core terms of the question. secondary_keywords are synonyms and close variants. context_keywords are broader topic terms. negative_keywords are terms that indicate an irrelevant document.`

const followupSystemPrompt = `You are a retrieval query writer. Given a user question and keywords already searched, produce short alternative search queries that approach the question from different angles.
Respond with ONLY a JSON array of strings, no prose.`

// KeywordService turns a raw user query into tiered search keywords and
// follow-up retrieval queries. It never fails outright: when the model
// output cannot be parsed, it falls back to tokenizing the query itself.
type KeywordService struct {
	ai AIService
}

func NewKeywordService(ai AIService) *KeywordService {
	return &KeywordService{ai: ai}
}

func (s *KeywordService) GenerateKeywords(ctx context.Context, query string, maxKeywords int) types.KeywordSet {
	raw, err := s.ai.Complete(ctx, keywordSystemPrompt, query)
	if err != nil {
		log.Println("keyword generation failed, falling back to query tokens:", err)
		return fallbackKeywords(query, maxKeywords)
	}

	var set types.KeywordSet
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &set); err != nil {
		log.Printf("keyword generation returned malformed JSON (%v), falling back to query tokens", fmt.Errorf("%w: %v", types.ErrLLMFormat, err))
		return fallbackKeywords(query, maxKeywords)
	}
	if len(set.Primary) == 0 {
		fallback := fallbackKeywords(query, maxKeywords)
		set.Primary = fallback.Primary
	}
	return set
}

// GenerateFollowupQueries produces up to max alternative retrieval queries.
// The original query is always usable on its own, so failures degrade to
// keyword-templated variants instead of erroring.
func (s *KeywordService) GenerateFollowupQueries(ctx context.Context, query string, keywords types.KeywordSet, max int) []string {
	if max <= 0 {
		return nil
	}
	prompt := fmt.Sprintf("Question: %s\nKeywords already searched: %s\nProduce up to %d alternative queries.",
		query, strings.Join(keywords.Flatten(0), ", "), max)

	raw, err := s.ai.Complete(ctx, followupSystemPrompt, prompt)
	if err == nil {
		var queries []string
		if jsonErr := json.Unmarshal([]byte(stripCodeFence(raw)), &queries); jsonErr == nil {
			return dedupQueries(query, queries, max)
		}
		log.Println("follow-up query generation returned malformed JSON, using templated fallback")
	} else {
		log.Println("follow-up query generation failed, using templated fallback:", err)
	}

	var fallback []string
	for _, kw := range keywords.Primary {
		fallback = append(fallback, fmt.Sprintf("%s %s", query, kw))
	}
	return dedupQueries(query, fallback, max)
}

func dedupQueries(original string, queries []string, max int) []string {
	seen := map[string]bool{strings.ToLower(strings.TrimSpace(original)): true}
	var out []string
	for _, q := range queries {
		q = strings.TrimSpace(q)
		key := strings.ToLower(q)
		if q == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, q)
		if len(out) >= max {
			break
		}
	}
	return out
}

// fallbackKeywords tokenizes the query on whitespace and punctuation,
// dropping single-character tokens. It yields at least one keyword for any
// query containing a word.
func fallbackKeywords(query string, max int) types.KeywordSet {
	tokens := strings.FieldsFunc(query, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	})
	seen := make(map[string]bool)
	var primary []string
	for _, tok := range tokens {
		key := strings.ToLower(tok)
		if len([]rune(tok)) < 2 || seen[key] {
			continue
		}
		seen[key] = true
		primary = append(primary, tok)
		if max > 0 && len(primary) >= max {
			break
		}
	}
	if len(primary) == 0 {
		trimmed := strings.TrimSpace(query)
		if trimmed != "" {
			primary = []string{trimmed}
		}
	}
	return types.KeywordSet{Primary: primary}
}

// stripCodeFence unwraps ```json ... ``` blocks that chat models wrap
// around structured output.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 {
		// drop the language tag line
		s = s[idx+1:]
	}
	if idx := strings.LastIndex(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}
