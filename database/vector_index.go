package database

import (
	"context"

	"github.com/tieubaoca/memory-be/types"
)

// ScoredChunk pairs a chunk with its similarity to the query vector,
// normalized to [0,1].
type ScoredChunk struct {
	Chunk types.Chunk
	Score float32
}

// VectorIndex stores embedded chunks for one pipeline run and serves
// similarity search over them. The index is write-only during indexing and
// read-only during retrieval; the pipeline never interleaves the two.
type VectorIndex interface {
	Add(ctx context.Context, chunks []types.Chunk, vectors [][]float32) error
	Search(ctx context.Context, vector []float32, k int) ([]ScoredChunk, error)
	// MaxMarginalRelevanceSearch fetches fetchK candidates by similarity and
	// re-ranks them down to k, trading relevance against diversity via
	// lambda in [0,1] (1 = pure relevance).
	MaxMarginalRelevanceSearch(ctx context.Context, vector []float32, k, fetchK int, lambda float32) ([]ScoredChunk, error)
	Len() int
	Clear(ctx context.Context) error
}

// IndexFactory builds a fresh index handle for one pipeline run. Which
// implementation it returns (session-scoped memory or persistent weaviate)
// is a configuration choice; correctness never depends on persistence.
type IndexFactory func(ctx context.Context) (VectorIndex, error)

// mmrSelect is the shared MMR re-ranking step: greedily pick k candidates
// maximizing lambda*sim(query) - (1-lambda)*max sim(already selected).
// Candidates must arrive sorted by query similarity descending with their
// normalized vectors alongside.
func mmrSelect(candidates []ScoredChunk, vectors [][]float32, k int, lambda float32) []ScoredChunk {
	if k <= 0 || len(candidates) == 0 {
		return nil
	}
	if k > len(candidates) {
		k = len(candidates)
	}

	selected := make([]ScoredChunk, 0, k)
	selectedVecs := make([][]float32, 0, k)
	remaining := make([]int, len(candidates))
	for i := range remaining {
		remaining[i] = i
	}

	for len(selected) < k && len(remaining) > 0 {
		bestPos := -1
		bestScore := float32(-2)
		for pos, idx := range remaining {
			redundancy := float32(0)
			for _, sv := range selectedVecs {
				// same [0,1] scale as the candidate scores
				if sim := normalizeCosine(dot(vectors[idx], sv)); sim > redundancy {
					redundancy = sim
				}
			}
			mmr := lambda*candidates[idx].Score - (1-lambda)*redundancy
			if mmr > bestScore {
				bestScore = mmr
				bestPos = pos
			}
		}
		idx := remaining[bestPos]
		selected = append(selected, candidates[idx])
		selectedVecs = append(selectedVecs, vectors[idx])
		remaining = append(remaining[:bestPos], remaining[bestPos+1:]...)
	}
	return selected
}

// normalizeCosine maps cosine similarity from [-1,1] onto [0,1] so score
// floors and MMR trade-offs work on one scale.
func normalizeCosine(cos float32) float32 {
	s := (1 + cos) / 2
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

func dot(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float32
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
