package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tieubaoca/memory-be/adapter"
	"github.com/tieubaoca/memory-be/database"
	"github.com/tieubaoca/memory-be/types"
)

// constEmbedder maps every text to the same vector, making every chunk a
// perfect match for every query.
type constEmbedder struct{}

func (constEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

func (constEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

type memorySaver struct {
	records []types.SearchRecord
}

func (m *memorySaver) Save(ctx context.Context, record types.SearchRecord) error {
	m.records = append(m.records, record)
	return nil
}

func newTestPipeline(ai AIService, adapters []adapter.SourceAdapter, history SearchHistorySaver) *PipelineService {
	embedder := constEmbedder{}
	return NewPipelineService(
		NewKeywordService(ai),
		NewRetrievalService(adapter.NewRegistry(adapters...), nil, nil),
		NewIndexerService(embedder),
		NewRetrieverService(embedder),
		NewReportService(ai),
		database.NewMemoryIndexFactory(),
		history,
		types.PipelineConfig{},
	)
}

func collectEvents() (*[]types.ProgressEvent, ProgressFunc) {
	events := &[]types.ProgressEvent{}
	return events, func(e types.ProgressEvent) {
		*events = append(*events, e)
	}
}

func TestPipelineRunHappyPathStageOrder(t *testing.T) {
	ai := &stubAI{responses: []string{
		`{"primary_keywords": ["notes"]}`,
		`["alt query"]`,
		"Report body citing [1].",
	}}
	adapters := []adapter.SourceAdapter{
		&fakeAdapter{source: types.SourceDrive, docs: []types.Document{doc(types.SourceDrive, "d1", time.Now())}},
	}
	saver := &memorySaver{}
	pipeline := newTestPipeline(ai, adapters, saver)
	events, emit := collectEvents()

	result, err := pipeline.Run(context.Background(), "what did i read", types.PipelineConfig{}, emit)

	require.NoError(t, err)
	require.NotNil(t, result)

	wantStages := []types.Stage{
		types.StageKeywordGeneration,
		types.StageMCPSearch,
		types.StageMCPSearch, // per-source sub-event
		types.StageVectorization,
		types.StageRAGSearch,
		types.StageReportGeneration,
		types.StageComplete,
	}
	require.Len(t, *events, len(wantStages))
	for i, e := range *events {
		assert.Equal(t, i+1, e.Step, "steps count up from 1")
		assert.Equal(t, wantStages[i], e.Stage)
	}

	assert.Equal(t, "Report body citing [1].", result.Report)
	require.Len(t, result.Citations, 1)
	assert.Equal(t, []string{"notes"}, result.KeywordsUsed)
	assert.Equal(t, []string{"what did i read", "alt query"}, result.RAGQueries)
	assert.Equal(t, 1, result.TotalDocuments)
	assert.Equal(t, 1, result.RelevantDocuments)

	require.Len(t, saver.records, 1)
	assert.Equal(t, "what did i read", saver.records[0].Query)
	assert.Equal(t, 1, saver.records[0].TotalDocuments)
}

func TestPipelineRunNoDocumentsShortCircuits(t *testing.T) {
	ai := &stubAI{responses: []string{
		`{"primary_keywords": ["notes"]}`,
		`[]`,
	}}
	adapters := []adapter.SourceAdapter{
		&fakeAdapter{source: types.SourceDrive},
	}
	pipeline := newTestPipeline(ai, adapters, nil)
	events, emit := collectEvents()

	result, err := pipeline.Run(context.Background(), "anything", types.PipelineConfig{}, emit)

	require.NoError(t, err)
	assert.Contains(t, result.Report, "No Sources Found")
	assert.Zero(t, result.TotalDocuments)

	var stages []types.Stage
	for _, e := range *events {
		stages = append(stages, e.Stage)
	}
	assert.Equal(t, []types.Stage{
		types.StageKeywordGeneration,
		types.StageMCPSearch,
		types.StageMCPSearch, // sub-event for the empty source
		types.StageReportGeneration,
		types.StageComplete,
	}, stages)
}

func TestPipelineRunSourceFailureIsNotFatal(t *testing.T) {
	ai := &stubAI{responses: []string{
		`{"primary_keywords": ["notes"]}`,
		`[]`,
		"body",
	}}
	adapters := []adapter.SourceAdapter{
		&fakeAdapter{source: types.SourceDrive, err: errors.New("drive down")},
		&fakeAdapter{source: types.SourceChatGPT, docs: []types.Document{doc(types.SourceChatGPT, "c1", time.Now())}},
	}
	pipeline := newTestPipeline(ai, adapters, nil)

	result, err := pipeline.Run(context.Background(), "q", types.PipelineConfig{}, nil)

	require.NoError(t, err)
	assert.Equal(t, 1, result.TotalDocuments)
	assert.Contains(t, result.SourceStats[types.SourceDrive].Error, "drive down")
}

func TestPipelineRunReportFailureIsFatal(t *testing.T) {
	// keyword generation degrades to the token fallback when the model is
	// down; only the report stage turns the same failure fatal.
	ai := &stubAI{err: errors.New("model down")}
	adapters := []adapter.SourceAdapter{
		&fakeAdapter{source: types.SourceDrive, docs: []types.Document{doc(types.SourceDrive, "d1", time.Now())}},
	}
	pipeline := newTestPipeline(ai, adapters, nil)
	events, emit := collectEvents()

	_, err := pipeline.Run(context.Background(), "what did i read", types.PipelineConfig{}, emit)

	var fatal *types.FatalPipelineError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, types.StageReportGeneration, fatal.Stage)

	last := (*events)[len(*events)-1]
	assert.Equal(t, types.StageError, last.Stage)
	assert.Equal(t, len(*events), last.Step)
}

func TestPipelineRunCancelledContext(t *testing.T) {
	ai := &stubAI{responses: []string{`{"primary_keywords": ["x"]}`}}
	pipeline := newTestPipeline(ai, nil, nil)
	events, emit := collectEvents()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := pipeline.Run(ctx, "q", types.PipelineConfig{}, emit)

	require.Error(t, err)
	last := (*events)[len(*events)-1]
	assert.Equal(t, types.StageError, last.Stage)
}

func TestPipelineRunNilEmit(t *testing.T) {
	ai := &stubAI{responses: []string{
		`{"primary_keywords": ["notes"]}`,
		`[]`,
		"body",
	}}
	adapters := []adapter.SourceAdapter{
		&fakeAdapter{source: types.SourceDrive, docs: []types.Document{doc(types.SourceDrive, "d1", time.Now())}},
	}
	pipeline := newTestPipeline(ai, adapters, nil)

	result, err := pipeline.Run(context.Background(), "q", types.PipelineConfig{}, nil)

	require.NoError(t, err)
	assert.NotEmpty(t, result.Report)
}

func TestApplyDefaults(t *testing.T) {
	pipeline := newTestPipeline(&stubAI{}, nil, nil)

	cfg := pipeline.applyDefaults(types.PipelineConfig{})

	assert.InDelta(t, 0.3, float64(cfg.SimilarityThreshold), 1e-6)
	assert.Equal(t, 10, cfg.MaxKeywords)
	assert.Equal(t, 10, cfg.KPerQuery)
	assert.Equal(t, 40, cfg.FetchK)
	assert.InDelta(t, 0.5, float64(cfg.LambdaMult), 1e-6)
	assert.Equal(t, 30*time.Second, cfg.AdapterTimeout)

	custom := pipeline.applyDefaults(types.PipelineConfig{KPerQuery: 5, SimilarityThreshold: 0.7})
	assert.Equal(t, 5, custom.KPerQuery)
	assert.Equal(t, 20, custom.FetchK)
	assert.InDelta(t, 0.7, float64(custom.SimilarityThreshold), 1e-6)
}
