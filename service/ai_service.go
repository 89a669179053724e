package service

import (
	"context"
)

// AIService is the completion surface the pipeline depends on. Keyword
// generation and report synthesis both go through it, so either provider
// can back the whole pipeline.
type AIService interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Embedder turns text into vectors for the session index. EmbedBatch exists
// because both providers accept batched inputs and indexing thousands of
// chunks one call at a time is too slow.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}
