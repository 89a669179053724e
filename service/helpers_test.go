package service

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/tieubaoca/memory-be/types"
)

func kwSet(primary ...string) types.KeywordSet {
	return types.KeywordSet{Primary: primary}
}

// stubAI returns canned completions in order, or an error.
type stubAI struct {
	responses []string
	err       error
	calls     int
	prompts   []string
}

func (s *stubAI) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	s.calls++
	s.prompts = append(s.prompts, userPrompt)
	if s.err != nil {
		return "", s.err
	}
	if len(s.responses) == 0 {
		return "", nil
	}
	resp := s.responses[0]
	if len(s.responses) > 1 {
		s.responses = s.responses[1:]
	}
	return resp, nil
}

// stubEmbedder produces deterministic unit vectors from text so similar
// strings embed identically and different strings differ.
type stubEmbedder struct {
	err      error
	failText string
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.failText != "" && strings.Contains(text, s.failText) {
		return nil, fmt.Errorf("embedding rejected: %s", s.failText)
	}
	h := fnv.New32a()
	h.Write([]byte(text))
	seed := h.Sum32()
	vec := make([]float32, 8)
	for i := range vec {
		seed = seed*1664525 + 1013904223
		vec[i] = float32(seed%1000)/500 - 1
	}
	return vec, nil
}

func (s *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := s.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}
