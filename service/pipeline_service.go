package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/tieubaoca/memory-be/database"
	"github.com/tieubaoca/memory-be/types"
)

// SearchHistorySaver persists finished runs. Saving is best effort: a failed
// save never fails the run.
type SearchHistorySaver interface {
	Save(ctx context.Context, record types.SearchRecord) error
}

// SearchHistoryLister reads back persisted runs, newest first.
type SearchHistoryLister interface {
	List(ctx context.Context, limit, offset int) ([]types.SearchRecord, error)
}

// ProgressFunc receives pipeline state transitions as they happen. It is
// called from the pipeline goroutine, so implementations that write to a
// socket must serialize themselves.
type ProgressFunc func(event types.ProgressEvent)

// PipelineService drives one search end to end: keywords, source fan-out,
// chunk indexing, semantic retrieval, and report synthesis, emitting a
// progress event at each stage boundary.
type PipelineService struct {
	keywords     *KeywordService
	retrieval    *RetrievalService
	indexer      *IndexerService
	retriever    *RetrieverService
	report       *ReportService
	indexFactory database.IndexFactory
	history      SearchHistorySaver
	defaults     types.PipelineConfig
	excludedIDs  func() []string
}

func NewPipelineService(
	keywords *KeywordService,
	retrieval *RetrievalService,
	indexer *IndexerService,
	retriever *RetrieverService,
	report *ReportService,
	indexFactory database.IndexFactory,
	history SearchHistorySaver,
	defaults types.PipelineConfig,
) *PipelineService {
	return &PipelineService{
		keywords:     keywords,
		retrieval:    retrieval,
		indexer:      indexer,
		retriever:    retriever,
		report:       report,
		indexFactory: indexFactory,
		history:      history,
		defaults:     defaults,
	}
}

// SetExcludedFolderProvider wires in the live excluded-folder set. It is
// consulted on every run so settings edits apply without a restart.
func (s *PipelineService) SetExcludedFolderProvider(fn func() []string) {
	s.excludedIDs = fn
}

// Run executes the pipeline for one query. Every stage transition goes
// through emit with a step counter that starts at 1 and only counts up.
// Source failures are isolated into stats; keyword generation degrades to
// token fallback; only index, retrieval, and report failures are fatal.
func (s *PipelineService) Run(ctx context.Context, query string, cfg types.PipelineConfig, emit ProgressFunc) (*types.SearchResult, error) {
	started := time.Now()
	cfg = s.applyDefaults(cfg)
	if s.excludedIDs != nil {
		cfg.ExcludedSourceIDs = mergeUnique(cfg.ExcludedSourceIDs, s.excludedIDs())
	}
	if emit == nil {
		emit = func(types.ProgressEvent) {}
	}

	step := 0
	progress := func(stage types.Stage, message string, details map[string]any) {
		step++
		emit(types.ProgressEvent{Step: step, Stage: stage, Message: message, Details: details})
	}
	fail := func(stage types.Stage, err error) (*types.SearchResult, error) {
		progress(types.StageError, err.Error(), map[string]any{"failed_stage": string(stage)})
		return nil, err
	}

	// keyword_generation
	progress(types.StageKeywordGeneration, "Generating search keywords", nil)
	keywordSet := s.keywords.GenerateKeywords(ctx, query, cfg.MaxKeywords)
	keywords := keywordSet.Flatten(cfg.MaxKeywords)
	followups := s.keywords.GenerateFollowupQueries(ctx, query, keywordSet, cfg.MaxFollowupQueries)
	if err := ctx.Err(); err != nil {
		return fail(types.StageKeywordGeneration, err)
	}

	// mcp_search
	progress(types.StageMCPSearch, "Searching connected sources", map[string]any{
		"keywords": keywords,
	})
	outcome := s.retrieval.Retrieve(ctx, keywords, cfg, func(source types.SourceType, stats types.SourceStats) {
		message := fmt.Sprintf("%s returned %d documents", source, stats.Count)
		if stats.Error != "" {
			message = fmt.Sprintf("%s failed: %s", source, stats.Error)
		}
		progress(types.StageMCPSearch, message, map[string]any{
			"source": string(source),
			"count":  stats.Count,
		})
	})
	if err := ctx.Err(); err != nil {
		return fail(types.StageMCPSearch, err)
	}

	result := &types.SearchResult{
		KeywordsUsed:   keywords,
		RAGQueries:     append([]string{query}, followups...),
		TotalDocuments: len(outcome.Documents),
		SourceStats:    outcome.Stats,
	}

	if len(outcome.Documents) == 0 {
		// Nothing retrieved from any source: skip indexing and go straight
		// to the templated empty report.
		progress(types.StageReportGeneration, "No documents found, generating empty report", nil)
		report, _ := s.report.Synthesize(ctx, query, nil, cfg.MaxSourcesInReport)
		result.Report = report.Body
		progress(types.StageComplete, "Search complete", map[string]any{
			"total_documents": 0,
		})
		s.saveHistory(ctx, query, result, started)
		return result, nil
	}

	// vectorization
	progress(types.StageVectorization, fmt.Sprintf("Indexing %d documents", len(outcome.Documents)), map[string]any{
		"total_documents": len(outcome.Documents),
	})
	index, err := s.indexFactory(ctx)
	if err != nil {
		return fail(types.StageVectorization, &types.FatalPipelineError{Stage: types.StageVectorization, Err: err})
	}
	defer func() {
		if clearErr := index.Clear(context.WithoutCancel(ctx)); clearErr != nil {
			log.Println("failed to clear vector index:", clearErr)
		}
	}()
	indexed, err := s.indexer.Index(ctx, index, outcome.Documents)
	if err != nil {
		return fail(types.StageVectorization, &types.FatalPipelineError{Stage: types.StageVectorization, Err: err})
	}
	if err := ctx.Err(); err != nil {
		return fail(types.StageVectorization, err)
	}

	// rag_search
	progress(types.StageRAGSearch, "Running semantic retrieval", map[string]any{
		"indexed_chunks": indexed,
		"queries":        result.RAGQueries,
	})
	relevant, err := s.retriever.Retrieve(ctx, index, result.RAGQueries, cfg)
	if err != nil {
		return fail(types.StageRAGSearch, &types.FatalPipelineError{Stage: types.StageRAGSearch, Err: err})
	}
	if err := ctx.Err(); err != nil {
		return fail(types.StageRAGSearch, err)
	}
	result.RelevantDocuments = len(relevant)
	result.Sources = sourcesForResults(outcome.Documents, relevant, cfg.MaxSourcesInReport)

	// report_generation
	progress(types.StageReportGeneration, fmt.Sprintf("Writing report from %d relevant documents", len(relevant)), map[string]any{
		"relevant_documents": len(relevant),
	})
	report, err := s.report.Synthesize(ctx, query, relevant, cfg.MaxSourcesInReport)
	if err != nil {
		return fail(types.StageReportGeneration, err)
	}
	result.Report = report.Body
	result.Citations = report.Citations

	progress(types.StageComplete, "Search complete", map[string]any{
		"total_documents":    result.TotalDocuments,
		"relevant_documents": result.RelevantDocuments,
		"citations":          len(result.Citations),
	})
	s.saveHistory(ctx, query, result, started)
	return result, nil
}

func (s *PipelineService) applyDefaults(cfg types.PipelineConfig) types.PipelineConfig {
	def := s.defaults
	if cfg.SimilarityThreshold <= 0 {
		if def.SimilarityThreshold > 0 {
			cfg.SimilarityThreshold = def.SimilarityThreshold
		} else {
			cfg.SimilarityThreshold = 0.3
		}
	}
	if cfg.MaxKeywords <= 0 {
		cfg.MaxKeywords = intOr(def.MaxKeywords, 10)
	}
	if cfg.MaxResultsPerSource <= 0 {
		cfg.MaxResultsPerSource = intOr(def.MaxResultsPerSource, 20)
	}
	if cfg.MaxSourcesInReport <= 0 {
		cfg.MaxSourcesInReport = intOr(def.MaxSourcesInReport, 10)
	}
	if cfg.MaxFollowupQueries <= 0 {
		cfg.MaxFollowupQueries = intOr(def.MaxFollowupQueries, 3)
	}
	if cfg.HistoryDays <= 0 {
		cfg.HistoryDays = intOr(def.HistoryDays, 30)
	}
	if cfg.KPerQuery <= 0 {
		cfg.KPerQuery = intOr(def.KPerQuery, 10)
	}
	if cfg.FetchK <= 0 {
		cfg.FetchK = intOr(def.FetchK, 4*cfg.KPerQuery)
	}
	if cfg.LambdaMult <= 0 || cfg.LambdaMult > 1 {
		if def.LambdaMult > 0 && def.LambdaMult <= 1 {
			cfg.LambdaMult = def.LambdaMult
		} else {
			cfg.LambdaMult = 0.5
		}
	}
	if cfg.AdapterTimeout <= 0 {
		if def.AdapterTimeout > 0 {
			cfg.AdapterTimeout = def.AdapterTimeout
		} else {
			cfg.AdapterTimeout = defaultAdapterTimeout
		}
	}
	if len(cfg.EnabledSources) == 0 {
		cfg.EnabledSources = def.EnabledSources
	}
	if len(cfg.ExcludedSourceIDs) == 0 {
		cfg.ExcludedSourceIDs = def.ExcludedSourceIDs
	}
	return cfg
}

func mergeUnique(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, s := range append(append([]string(nil), a...), b...) {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func intOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

// sourcesForResults maps relevant chunks back to their parent documents, in
// relevance order, capped at max.
func sourcesForResults(docs []types.Document, results []types.RetrievalResult, max int) []types.Document {
	byKey := make(map[types.DocumentKey]types.Document, len(docs))
	for _, doc := range docs {
		byKey[doc.Key()] = doc
	}
	var out []types.Document
	for _, res := range results {
		doc, ok := byKey[types.DocumentKey{SourceType: res.Chunk.ParentSourceType, SourceID: res.Chunk.ParentSourceID}]
		if !ok {
			continue
		}
		out = append(out, doc)
		if max > 0 && len(out) >= max {
			break
		}
	}
	return out
}

func (s *PipelineService) saveHistory(ctx context.Context, query string, result *types.SearchResult, started time.Time) {
	if s.history == nil {
		return
	}
	record := types.SearchRecord{
		Query:             query,
		Keywords:          result.KeywordsUsed,
		RAGQueries:        result.RAGQueries,
		TotalDocuments:    result.TotalDocuments,
		RelevantDocuments: result.RelevantDocuments,
		DurationMillis:    time.Since(started).Milliseconds(),
		CreatedAt:         time.Now().Unix(),
	}
	if err := s.history.Save(context.WithoutCancel(ctx), record); err != nil {
		log.Println("failed to save search record:", err)
	}
}
