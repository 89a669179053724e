package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tieubaoca/memory-be/adapter"
	"github.com/tieubaoca/memory-be/types"
)

type fakeAdapter struct {
	source types.SourceType
	docs   []types.Document
	err    error
	panics bool
	block  bool
	delay  time.Duration
}

func (f *fakeAdapter) Type() types.SourceType { return f.source }

func (f *fakeAdapter) Search(ctx context.Context, keywords []string, opts adapter.SearchOptions) ([]types.Document, error) {
	if f.panics {
		panic("adapter exploded")
	}
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.docs, f.err
}

func doc(source types.SourceType, id string, retrievedAt time.Time) types.Document {
	return types.Document{
		Content:     "content of " + id,
		SourceType:  source,
		SourceID:    id,
		Title:       id,
		RetrievedAt: retrievedAt,
	}
}

func TestRetrieveFanOutCollectsAllSources(t *testing.T) {
	now := time.Now()
	svc := NewRetrievalService(adapter.NewRegistry(
		&fakeAdapter{source: types.SourceDrive, docs: []types.Document{doc(types.SourceDrive, "d1", now)}},
		&fakeAdapter{source: types.SourceChatGPT, docs: []types.Document{doc(types.SourceChatGPT, "c1", now)}},
	), nil, nil)

	outcome := svc.Retrieve(context.Background(), []string{"kw"}, types.PipelineConfig{}, nil)

	assert.Len(t, outcome.Documents, 2)
	assert.Equal(t, 1, outcome.Stats[types.SourceDrive].Count)
	assert.Equal(t, 1, outcome.Stats[types.SourceChatGPT].Count)
	assert.Empty(t, outcome.Stats[types.SourceDrive].Error)
}

func TestRetrieveReportsEachSourceAsItFinishes(t *testing.T) {
	now := time.Now()
	svc := NewRetrievalService(adapter.NewRegistry(
		&fakeAdapter{source: types.SourceDrive, docs: []types.Document{doc(types.SourceDrive, "d1", now)}},
		&fakeAdapter{source: types.SourceChatGPT, err: errors.New("archive empty")},
	), nil, nil)

	got := make(map[types.SourceType]types.SourceStats)
	svc.Retrieve(context.Background(), []string{"kw"}, types.PipelineConfig{}, func(source types.SourceType, stats types.SourceStats) {
		got[source] = stats
	})

	require.Len(t, got, 2)
	assert.Equal(t, 1, got[types.SourceDrive].Count)
	assert.Contains(t, got[types.SourceChatGPT].Error, "archive empty")
}

func TestRetrieveIsolatesFailedSource(t *testing.T) {
	now := time.Now()
	svc := NewRetrievalService(adapter.NewRegistry(
		&fakeAdapter{source: types.SourceDrive, err: errors.New("quota exceeded")},
		&fakeAdapter{source: types.SourceChatGPT, docs: []types.Document{doc(types.SourceChatGPT, "c1", now)}},
	), nil, nil)

	outcome := svc.Retrieve(context.Background(), []string{"kw"}, types.PipelineConfig{}, nil)

	require.Len(t, outcome.Documents, 1)
	assert.Equal(t, types.SourceChatGPT, outcome.Documents[0].SourceType)
	assert.Contains(t, outcome.Stats[types.SourceDrive].Error, "quota exceeded")
	assert.Zero(t, outcome.Stats[types.SourceDrive].Count)
}

func TestRetrieveRecoversFromPanic(t *testing.T) {
	now := time.Now()
	svc := NewRetrievalService(adapter.NewRegistry(
		&fakeAdapter{source: types.SourceDrive, panics: true},
		&fakeAdapter{source: types.SourceGemini, docs: []types.Document{doc(types.SourceGemini, "g1", now)}},
	), nil, nil)

	outcome := svc.Retrieve(context.Background(), []string{"kw"}, types.PipelineConfig{}, nil)

	assert.Len(t, outcome.Documents, 1)
	assert.Contains(t, outcome.Stats[types.SourceDrive].Error, "panicked")
}

func TestRetrieveTimesOutSlowSource(t *testing.T) {
	now := time.Now()
	svc := NewRetrievalService(adapter.NewRegistry(
		&fakeAdapter{source: types.SourceDrive, block: true},
		&fakeAdapter{source: types.SourceChatGPT, docs: []types.Document{doc(types.SourceChatGPT, "c1", now)}},
	), nil, nil)

	cfg := types.PipelineConfig{AdapterTimeout: 20 * time.Millisecond}
	start := time.Now()
	outcome := svc.Retrieve(context.Background(), []string{"kw"}, cfg, nil)

	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Len(t, outcome.Documents, 1)
	assert.NotEmpty(t, outcome.Stats[types.SourceDrive].Error)
}

func TestRetrieveEmptyKeywordsShortCircuits(t *testing.T) {
	called := &fakeAdapter{source: types.SourceDrive, docs: []types.Document{doc(types.SourceDrive, "d1", time.Now())}}
	svc := NewRetrievalService(adapter.NewRegistry(called), nil, nil)

	outcome := svc.Retrieve(context.Background(), nil, types.PipelineConfig{}, nil)

	assert.Empty(t, outcome.Documents)
	assert.Empty(t, outcome.Stats)
}

func TestRetrieveHonorsEnabledSources(t *testing.T) {
	now := time.Now()
	svc := NewRetrievalService(adapter.NewRegistry(
		&fakeAdapter{source: types.SourceDrive, docs: []types.Document{doc(types.SourceDrive, "d1", now)}},
		&fakeAdapter{source: types.SourceChatGPT, docs: []types.Document{doc(types.SourceChatGPT, "c1", now)}},
	), nil, nil)

	cfg := types.PipelineConfig{EnabledSources: []types.SourceType{types.SourceDrive}}
	outcome := svc.Retrieve(context.Background(), []string{"kw"}, cfg, nil)

	require.Len(t, outcome.Documents, 1)
	assert.Equal(t, types.SourceDrive, outcome.Documents[0].SourceType)
	_, hasChat := outcome.Stats[types.SourceChatGPT]
	assert.False(t, hasChat)
}

func TestDedupDocumentsKeepsLatest(t *testing.T) {
	older := time.Now().Add(-time.Hour)
	newer := time.Now()
	oldDoc := doc(types.SourceDrive, "d1", older)
	oldDoc.Content = "stale"
	newDoc := doc(types.SourceDrive, "d1", newer)
	newDoc.Content = "fresh"
	other := doc(types.SourceChatGPT, "d1", older)

	out := dedupDocuments([]types.Document{oldDoc, newDoc, other})

	require.Len(t, out, 2)
	for _, d := range out {
		if d.SourceType == types.SourceDrive {
			assert.Equal(t, "fresh", d.Content)
		}
	}
}

func TestProcessPDFsKeepsOriginalWhenNoOCR(t *testing.T) {
	svc := NewRetrievalService(adapter.NewRegistry(), nil, nil)
	pdf := doc(types.SourceDrive, "p1", time.Now())
	pdf.MimeType = "application/pdf"
	text := doc(types.SourceDrive, "t1", time.Now())

	out := svc.processPDFs(context.Background(), []types.Document{pdf, text})

	require.Len(t, out, 2)
	assert.Equal(t, "p1", out[0].SourceID)
	assert.Equal(t, "content of p1", out[0].Content)
	assert.Equal(t, "application/pdf", out[0].MimeType)
}

type fakeOCR struct {
	markdown string
	err      error
}

func (f *fakeOCR) ProcessPDF(ctx context.Context, content []byte, fileName string) (string, error) {
	return f.markdown, f.err
}

func TestProcessPDFsConvertsToMarkdown(t *testing.T) {
	svc := NewRetrievalService(adapter.NewRegistry(), nil, &fakeOCR{markdown: "# Extracted"})
	pdf := doc(types.SourceDrive, "p1", time.Now())
	pdf.MimeType = "application/pdf"

	out := svc.processPDFs(context.Background(), []types.Document{pdf})

	require.Len(t, out, 1)
	assert.Equal(t, "# Extracted", out[0].Content)
	assert.Equal(t, "text/markdown", out[0].MimeType)
}

func TestProcessPDFsKeepsOriginalOnOCRFailure(t *testing.T) {
	svc := NewRetrievalService(adapter.NewRegistry(), nil, &fakeOCR{err: errors.New("bad pdf")})
	pdf := doc(types.SourceDrive, "p1", time.Now())
	pdf.MimeType = "application/pdf"

	out := svc.processPDFs(context.Background(), []types.Document{pdf})

	require.Len(t, out, 1)
	assert.Equal(t, "content of p1", out[0].Content)
	assert.Equal(t, "application/pdf", out[0].MimeType)
}
