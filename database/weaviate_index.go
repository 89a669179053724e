package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tieubaoca/memory-be/types"
	"github.com/weaviate/weaviate-go-client/v4/weaviate"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/auth"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

const BATCH_SIZE = 200

var (
	CHUNK_CLASS        = "MemoryChunk"
	CHUNK_CLASS_OBJECT = &models.Class{
		Class: CHUNK_CLASS,
		Properties: []*models.Property{
			{Name: "text", DataType: []string{"text"}},
			{Name: "parentSourceId", DataType: []string{"text"}},
			{Name: "parentSourceType", DataType: []string{"text"}},
			{Name: "parentTitle", DataType: []string{"text"}},
			{Name: "parentUrl", DataType: []string{"text"}},
			{Name: "headerPath", DataType: []string{"text[]"}},
			{Name: "retrievedAt", DataType: []string{"int"}},
			{Name: "runId", DataType: []string{"text"}},
		},
		Vectorizer:      "none",
		VectorIndexType: "hnsw",
	}
)

// WeaviateIndex persists chunks across runs. Each pipeline run tags its
// objects with a runId so cleanup and retrieval stay scoped to one run
// while the class itself survives restarts.
type WeaviateIndex struct {
	client *weaviate.Client
	runID  string
	count  int
}

// NewWeaviateIndex connects to the configured instance and ensures the
// chunk class exists.
func NewWeaviateIndex(host, apiKey, runID string) (*WeaviateIndex, error) {
	var scheme string
	if strings.Contains(host, "https") {
		scheme = "https"
	} else {
		scheme = "http"
	}
	host = strings.TrimPrefix(host, scheme+"://")
	cfg := weaviate.Config{
		Host:   host,
		Scheme: scheme,
	}
	if apiKey != "" {
		cfg.AuthConfig = auth.ApiKey{
			Value: apiKey,
		}
		cfg.Headers = map[string]string{
			"X-Weaviate-Api-Key":     apiKey,
			"X-Weaviate-Cluster-Url": fmt.Sprintf("%s://%s", scheme, host),
		}
	}
	client, err := weaviate.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create weaviate client: %v", err)
	}

	schema, err := client.Schema().Getter().Do(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to get schema: %v", err)
	}

	hasChunkClass := false
	for _, class := range schema.Classes {
		if class.Class == CHUNK_CLASS {
			hasChunkClass = true
			break
		}
	}
	if !hasChunkClass {
		err = client.Schema().ClassCreator().WithClass(CHUNK_CLASS_OBJECT).Do(context.Background())
		if err != nil {
			return nil, fmt.Errorf("failed to create %s class: %v", CHUNK_CLASS, err)
		}
	}
	return &WeaviateIndex{
		client: client,
		runID:  runID,
	}, nil
}

// NewWeaviateIndexFactory builds a fresh run-scoped index per pipeline run.
func NewWeaviateIndexFactory(host, apiKey string, newRunID func() string) IndexFactory {
	return func(ctx context.Context) (VectorIndex, error) {
		return NewWeaviateIndex(host, apiKey, newRunID())
	}
}

func (s *WeaviateIndex) Add(ctx context.Context, chunks []types.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks and vectors length mismatch: %d != %d", len(chunks), len(vectors))
	}
	total := len(chunks)
	for i := 0; i < total; i += BATCH_SIZE {
		end := i + BATCH_SIZE
		if end > total {
			end = total
		}

		batcher := s.client.Batch().ObjectsBatcher()
		for j := i; j < end; j++ {
			batcher = batcher.WithObjects(&models.Object{
				Class:      CHUNK_CLASS,
				Properties: chunkProperties(chunks[j], s.runID),
				Vector:     vectors[j],
			})
		}

		resp, err := batcher.Do(ctx)
		if err != nil {
			return fmt.Errorf("failed to insert batch %d-%d: %v", i, end, err)
		}
		for _, obj := range resp {
			if obj.Result != nil && obj.Result.Errors != nil && len(obj.Result.Errors.Error) > 0 {
				return fmt.Errorf("failed to insert batch %d-%d: %s", i, end, obj.Result.Errors.Error[0].Message)
			}
		}
	}
	s.count += total
	return nil
}

func (s *WeaviateIndex) Search(ctx context.Context, vector []float32, k int) ([]ScoredChunk, error) {
	if k <= 0 {
		return nil, nil
	}
	fields := []graphql.Field{
		{Name: "text"},
		{Name: "parentSourceId"},
		{Name: "parentSourceType"},
		{Name: "parentTitle"},
		{Name: "parentUrl"},
		{Name: "headerPath"},
		{Name: "retrievedAt"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "distance"}}},
	}

	nearVector := s.client.GraphQL().NearVectorArgBuilder().WithVector(vector)
	where := filters.Where().
		WithPath([]string{"runId"}).
		WithOperator(filters.Equal).
		WithValueString(s.runID)

	result, err := s.client.GraphQL().Get().
		WithClassName(CHUNK_CLASS).
		WithFields(fields...).
		WithNearVector(nearVector).
		WithWhere(where).
		WithLimit(k).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	if result.Errors != nil {
		return nil, fmt.Errorf("search failed: %v", result.Errors[0].Message)
	}

	var scored []ScoredChunk
	for _, item := range classObjects(result.Data, CHUNK_CLASS) {
		obj, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		chunk := chunkFromProperties(obj)
		var score float32
		if additional, ok := obj["_additional"].(map[string]interface{}); ok {
			if distance, ok := additional["distance"].(float64); ok {
				// weaviate cosine distance is 1-cos, so cos = 1-distance
				score = normalizeCosine(float32(1 - distance))
			}
		}
		scored = append(scored, ScoredChunk{Chunk: chunk, Score: score})
	}
	return scored, nil
}

// MaxMarginalRelevanceSearch re-fetches the candidate vectors so the shared
// selector can score redundancy; weaviate's Get response does not carry them
// unless asked for explicitly.
func (s *WeaviateIndex) MaxMarginalRelevanceSearch(ctx context.Context, vector []float32, k, fetchK int, lambda float32) ([]ScoredChunk, error) {
	if fetchK < k {
		fetchK = k
	}
	fields := []graphql.Field{
		{Name: "text"},
		{Name: "parentSourceId"},
		{Name: "parentSourceType"},
		{Name: "parentTitle"},
		{Name: "parentUrl"},
		{Name: "headerPath"},
		{Name: "retrievedAt"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "distance"}, {Name: "vector"}}},
	}

	nearVector := s.client.GraphQL().NearVectorArgBuilder().WithVector(vector)
	where := filters.Where().
		WithPath([]string{"runId"}).
		WithOperator(filters.Equal).
		WithValueString(s.runID)

	result, err := s.client.GraphQL().Get().
		WithClassName(CHUNK_CLASS).
		WithFields(fields...).
		WithNearVector(nearVector).
		WithWhere(where).
		WithLimit(fetchK).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	if result.Errors != nil {
		return nil, fmt.Errorf("search failed: %v", result.Errors[0].Message)
	}

	var candidates []ScoredChunk
	var candidateVecs [][]float32
	for _, item := range classObjects(result.Data, CHUNK_CLASS) {
		obj, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		additional, ok := obj["_additional"].(map[string]interface{})
		if !ok {
			continue
		}
		vec := parseVector(additional["vector"])
		if vec == nil {
			continue
		}
		var score float32
		if distance, ok := additional["distance"].(float64); ok {
			score = normalizeCosine(float32(1 - distance))
		}
		candidates = append(candidates, ScoredChunk{Chunk: chunkFromProperties(obj), Score: score})
		candidateVecs = append(candidateVecs, l2Normalize(vec))
	}
	return mmrSelect(candidates, candidateVecs, k, lambda), nil
}

func (s *WeaviateIndex) Len() int {
	return s.count
}

// Clear drops this run's objects but leaves the class and other runs intact.
func (s *WeaviateIndex) Clear(ctx context.Context) error {
	where := filters.Where().
		WithPath([]string{"runId"}).
		WithOperator(filters.Equal).
		WithValueString(s.runID)
	_, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(CHUNK_CLASS).
		WithWhere(where).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to clear run %s: %v", s.runID, err)
	}
	s.count = 0
	return nil
}

func chunkProperties(chunk types.Chunk, runID string) map[string]interface{} {
	return map[string]interface{}{
		"text":             chunk.Text,
		"parentSourceId":   chunk.ParentSourceID,
		"parentSourceType": string(chunk.ParentSourceType),
		"parentTitle":      chunk.ParentTitle,
		"parentUrl":        chunk.ParentURL,
		"headerPath":       chunk.HeaderPath,
		"retrievedAt":      chunk.RetrievedAt.Unix(),
		"runId":            runID,
	}
}

// classObjects digs the per-class object list out of a GraphQL Get response.
// Each level is asserted separately so a missing or malformed section yields
// an empty result instead of a panic.
func classObjects(data map[string]models.JSONObject, class string) []interface{} {
	get, ok := data["Get"].(map[string]interface{})
	if !ok {
		return nil
	}
	objs, ok := get[class].([]interface{})
	if !ok {
		return nil
	}
	return objs
}

func chunkFromProperties(obj map[string]interface{}) types.Chunk {
	chunk := types.Chunk{
		Text:             stringProp(obj, "text"),
		ParentSourceID:   stringProp(obj, "parentSourceId"),
		ParentSourceType: types.SourceType(stringProp(obj, "parentSourceType")),
		ParentTitle:      stringProp(obj, "parentTitle"),
		ParentURL:        stringProp(obj, "parentUrl"),
		HeaderPath:       parseStringArray(obj["headerPath"]),
	}
	if ts, ok := obj["retrievedAt"].(float64); ok {
		chunk.RetrievedAt = time.Unix(int64(ts), 0).UTC()
	}
	return chunk
}

func stringProp(obj map[string]interface{}, key string) string {
	s, _ := obj[key].(string)
	return s
}

func parseStringArray(v interface{}) []string {
	if v == nil {
		return nil
	}
	arr, ok := v.([]interface{})
	if !ok {
		return nil
	}
	result := make([]string, 0, len(arr))
	for _, item := range arr {
		if s, ok := item.(string); ok {
			result = append(result, s)
		}
	}
	return result
}

func parseVector(v interface{}) []float32 {
	arr, ok := v.([]interface{})
	if !ok {
		return nil
	}
	result := make([]float32, 0, len(arr))
	for _, item := range arr {
		f, ok := item.(float64)
		if !ok {
			return nil
		}
		result = append(result, float32(f))
	}
	return result
}
