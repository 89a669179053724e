package service

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/tieubaoca/memory-be/adapter"
	"github.com/tieubaoca/memory-be/types"
	"github.com/tieubaoca/memory-be/utils"
)

const (
	defaultAdapterTimeout = 30 * time.Second
	maxFollowupFetchURLs  = 50
)

// RetrievalOutcome is everything fan-out produced: the deduplicated document
// set plus per-source counts and errors. A failed source appears in Stats
// with its error string and zero or more documents from before the failure.
type RetrievalOutcome struct {
	Documents []types.Document
	Stats     map[types.SourceType]types.SourceStats
}

// RetrievalService fans a keyword set out across every enabled source
// adapter concurrently. One source failing, hanging, or panicking never
// takes down the run.
type RetrievalService struct {
	registry *adapter.Registry
	webFetch *adapter.WebFetchAdapter
	ocr      adapter.OCRClient
}

func NewRetrievalService(registry *adapter.Registry, webFetch *adapter.WebFetchAdapter, ocr adapter.OCRClient) *RetrievalService {
	return &RetrievalService{
		registry: registry,
		webFetch: webFetch,
		ocr:      ocr,
	}
}

// Retrieve runs the fan-out. onSource, when non-nil, is called once per
// adapter as it finishes, with that source's final stats.
func (s *RetrievalService) Retrieve(ctx context.Context, keywords []string, cfg types.PipelineConfig, onSource func(types.SourceType, types.SourceStats)) RetrievalOutcome {
	outcome := RetrievalOutcome{
		Stats: make(map[types.SourceType]types.SourceStats),
	}
	if len(keywords) == 0 {
		return outcome
	}

	timeout := cfg.AdapterTimeout
	if timeout <= 0 {
		timeout = defaultAdapterTimeout
	}
	opts := adapter.SearchOptions{
		MaxResults:        cfg.MaxResultsPerSource,
		Days:              cfg.HistoryDays,
		ExcludedFolderIDs: cfg.ExcludedSourceIDs,
	}

	adapters := s.registry.Enabled(cfg.EnabledSources)

	type sourceResult struct {
		source types.SourceType
		docs   []types.Document
		err    error
	}
	results := make(chan sourceResult, len(adapters))

	var wg sync.WaitGroup
	for _, a := range adapters {
		wg.Add(1)
		go func(a adapter.SourceAdapter) {
			defer wg.Done()
			res := sourceResult{source: a.Type()}
			defer func() {
				if r := recover(); r != nil {
					res.err = &types.SourceError{Source: a.Type(), Err: fmt.Errorf("adapter panicked: %v", r)}
					res.docs = nil
				}
				results <- res
			}()

			searchCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			docs, err := a.Search(searchCtx, keywords, opts)
			if err != nil {
				res.err = &types.SourceError{Source: a.Type(), Err: err}
				return
			}
			res.docs = docs
		}(a)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	var all []types.Document
	for res := range results {
		stats := types.SourceStats{Count: len(res.docs)}
		if res.err != nil {
			stats.Error = res.err.Error()
			log.Println("source failed:", res.err)
		}
		outcome.Stats[res.source] = stats
		if onSource != nil {
			onSource(res.source, stats)
		}
		all = append(all, res.docs...)
	}

	all = append(all, s.followupFetch(ctx, all, cfg, outcome.Stats)...)
	all = s.processPDFs(ctx, all)
	outcome.Documents = dedupDocuments(all)
	return outcome
}

// followupFetch turns the most recent fetchable Chrome history URLs into
// full page documents. History rows only carry titles, so without this the
// browsing source contributes almost no retrievable text.
func (s *RetrievalService) followupFetch(ctx context.Context, docs []types.Document, cfg types.PipelineConfig, stats map[types.SourceType]types.SourceStats) []types.Document {
	if s.webFetch == nil {
		return nil
	}
	if len(cfg.EnabledSources) > 0 {
		enabled := false
		for _, src := range cfg.EnabledSources {
			if src == types.SourceWebFetch {
				enabled = true
				break
			}
		}
		if !enabled {
			return nil
		}
	}

	seen := make(map[string]bool)
	var urls []string
	for _, doc := range docs {
		if doc.SourceType != types.SourceChromeHistory {
			continue
		}
		if doc.URL == "" || seen[doc.URL] || !utils.IsFetchableURL(doc.URL) {
			continue
		}
		seen[doc.URL] = true
		urls = append(urls, doc.URL)
		if len(urls) >= maxFollowupFetchURLs {
			break
		}
	}
	if len(urls) == 0 {
		return nil
	}

	fetched := s.webFetch.FetchAll(ctx, urls)
	existing := stats[types.SourceWebFetch]
	existing.Count += len(fetched)
	stats[types.SourceWebFetch] = existing
	return fetched
}

// processPDFs runs OCR over PDF documents carried through from Drive.
// Successful extraction replaces the content with Markdown; an OCR failure
// (or no OCR client) keeps the document with its original content so the
// source still contributes whatever text it had.
func (s *RetrievalService) processPDFs(ctx context.Context, docs []types.Document) []types.Document {
	for i, doc := range docs {
		if doc.MimeType != "application/pdf" {
			continue
		}
		if s.ocr == nil {
			log.Printf("keeping PDF %q as-is: no OCR client configured", doc.Title)
			continue
		}
		markdown, err := s.ocr.ProcessPDF(ctx, []byte(doc.Content), doc.Title)
		if err != nil {
			log.Printf("OCR failed for %q, keeping original content: %v", doc.Title, err)
			continue
		}
		docs[i].Content = markdown
		docs[i].MimeType = "text/markdown"
	}
	return docs
}

// dedupDocuments keeps one document per (source type, source id), preferring
// the most recently retrieved copy. Order is stable for equal keys.
func dedupDocuments(docs []types.Document) []types.Document {
	byKey := make(map[types.DocumentKey]int)
	var out []types.Document
	for _, doc := range docs {
		key := doc.Key()
		if idx, ok := byKey[key]; ok {
			if doc.RetrievedAt.After(out[idx].RetrievedAt) {
				out[idx] = doc
			}
			continue
		}
		byKey[key] = len(out)
		out = append(out, doc)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RetrievedAt.After(out[j].RetrievedAt)
	})
	return out
}
