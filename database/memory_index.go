package database

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/tieubaoca/memory-be/types"
)

// MemoryIndex is the session-scoped default: a brute-force cosine store that
// lives exactly as long as one pipeline run. Vectors are L2-normalized on
// insert so similarity is a dot product.
type MemoryIndex struct {
	mu      sync.RWMutex
	chunks  []types.Chunk
	vectors [][]float32
}

func NewMemoryIndex() *MemoryIndex { return &MemoryIndex{} }

// NewMemoryIndexFactory returns the default per-run index factory.
func NewMemoryIndexFactory() IndexFactory {
	return func(ctx context.Context) (VectorIndex, error) {
		return NewMemoryIndex(), nil
	}
}

func (s *MemoryIndex) Add(ctx context.Context, chunks []types.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks and vectors length mismatch: %d != %d", len(chunks), len(vectors))
	}
	normalized := make([][]float32, len(vectors))
	for i, v := range vectors {
		if len(v) == 0 {
			return fmt.Errorf("empty vector at position %d", i)
		}
		normalized[i] = l2Normalize(v)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = append(s.chunks, chunks...)
	s.vectors = append(s.vectors, normalized...)
	return nil
}

func (s *MemoryIndex) Search(ctx context.Context, vector []float32, k int) ([]ScoredChunk, error) {
	candidates, _, err := s.topK(vector, k)
	return candidates, err
}

func (s *MemoryIndex) MaxMarginalRelevanceSearch(ctx context.Context, vector []float32, k, fetchK int, lambda float32) ([]ScoredChunk, error) {
	if fetchK < k {
		fetchK = k
	}
	candidates, candidateVecs, err := s.topK(vector, fetchK)
	if err != nil {
		return nil, err
	}
	return mmrSelect(candidates, candidateVecs, k, lambda), nil
}

func (s *MemoryIndex) topK(vector []float32, k int) ([]ScoredChunk, [][]float32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if k <= 0 || len(s.chunks) == 0 {
		return nil, nil, nil
	}
	query := l2Normalize(vector)

	type scored struct {
		idx   int
		score float32
	}
	all := make([]scored, len(s.vectors))
	for i, v := range s.vectors {
		all[i] = scored{idx: i, score: normalizeCosine(dot(v, query))}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].score > all[j].score })

	if k > len(all) {
		k = len(all)
	}
	chunks := make([]ScoredChunk, k)
	vecs := make([][]float32, k)
	for i := 0; i < k; i++ {
		chunks[i] = ScoredChunk{Chunk: s.chunks[all[i].idx], Score: all[i].score}
		vecs[i] = s.vectors[all[i].idx]
	}
	return chunks, vecs, nil
}

func (s *MemoryIndex) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

func (s *MemoryIndex) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = nil
	s.vectors = nil
	return nil
}

func l2Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}
