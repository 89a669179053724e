package service

import (
	"context"
	"log"
	"sort"

	"github.com/tieubaoca/memory-be/database"
	"github.com/tieubaoca/memory-be/types"
)

// RetrieverService runs semantic queries against the run's vector index.
// Each query goes through maximal marginal relevance so the evidence set is
// both relevant and diverse, then a score floor drops weak matches.
type RetrieverService struct {
	embedder Embedder
}

func NewRetrieverService(embedder Embedder) *RetrieverService {
	return &RetrieverService{embedder: embedder}
}

// Retrieve runs every query against the index and merges the results, one
// chunk per parent document at its best score. Results come back sorted by
// score, then recency. A query whose embedding fails is skipped.
func (s *RetrieverService) Retrieve(ctx context.Context, index database.VectorIndex, queries []string, cfg types.PipelineConfig) ([]types.RetrievalResult, error) {
	if index == nil || index.Len() == 0 || len(queries) == 0 {
		return nil, nil
	}

	k := cfg.KPerQuery
	if k <= 0 {
		k = 10
	}
	fetchK := cfg.FetchK
	if fetchK <= 0 {
		fetchK = 4 * k
	}
	lambda := cfg.LambdaMult
	if lambda <= 0 || lambda > 1 {
		lambda = 0.5
	}
	floor := cfg.SimilarityThreshold

	best := make(map[string]int)
	var results []types.RetrievalResult
	for _, query := range queries {
		vector, err := s.embedder.Embed(ctx, query)
		if err != nil {
			log.Printf("skipping query %q: %v", query, err)
			continue
		}
		scored, err := index.MaxMarginalRelevanceSearch(ctx, vector, k, fetchK, lambda)
		if err != nil {
			return nil, err
		}

		for _, sc := range scored {
			if sc.Score < floor {
				continue
			}
			key := sc.Chunk.ParentSourceID
			if idx, ok := best[key]; ok {
				if sc.Score > results[idx].Score {
					results[idx] = types.RetrievalResult{Chunk: sc.Chunk, Score: sc.Score, QueryUsed: query}
				}
				continue
			}
			best[key] = len(results)
			results = append(results, types.RetrievalResult{Chunk: sc.Chunk, Score: sc.Score, QueryUsed: query})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Chunk.RetrievedAt.After(results[j].Chunk.RetrievedAt)
	})
	return results, nil
}
