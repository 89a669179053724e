package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"github.com/tieubaoca/memory-be/types"
	"google.golang.org/api/option"
)

const geminiEmbedBatchSize = 100

type GeminiService struct {
	apiKeys    []string
	currentKey int
	client     *genai.Client
	modelName  string
	embedModel string
	mu         sync.Mutex
}

func NewGeminiService(apiKeys []string, modelName, embedModel string) (*GeminiService, error) {
	if len(apiKeys) == 0 {
		return nil, errors.New("no API keys provided")
	}
	if embedModel == "" {
		embedModel = "text-embedding-004"
	}

	service := &GeminiService{
		apiKeys:    apiKeys,
		currentKey: 0,
		modelName:  modelName,
		embedModel: embedModel,
	}

	if err := service.initClient(); err != nil {
		return nil, err
	}
	return service, nil
}

func (s *GeminiService) initClient() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	client, err := genai.NewClient(context.Background(), option.WithAPIKey(s.apiKeys[s.currentKey]))
	if err != nil {
		return err
	}
	s.client = client
	return nil
}

func (s *GeminiService) rotateAPIKey() error {
	s.mu.Lock()
	s.currentKey = (s.currentKey + 1) % len(s.apiKeys)
	if err := s.client.Close(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()
	return s.initClient()
}

func (s *GeminiService) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := s.generate(ctx, systemPrompt, userPrompt)
	if err != nil {
		// Quota errors clear after switching keys, so rotate once and retry.
		if rotateErr := s.rotateAPIKey(); rotateErr != nil {
			return "", rotateErr
		}
		resp, err = s.generate(ctx, systemPrompt, userPrompt)
		if err != nil {
			return "", err
		}
	}

	if len(resp.Candidates) == 0 {
		return "", errors.New("no response generated")
	}

	content := ""
	for _, cand := range resp.Candidates {
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				if text, ok := part.(genai.Text); ok {
					content += string(text)
				}
			}
		}
	}
	return content, nil
}

func (s *GeminiService) generate(ctx context.Context, systemPrompt, userPrompt string) (*genai.GenerateContentResponse, error) {
	model := s.client.GenerativeModel(s.modelName)
	if systemPrompt != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(systemPrompt)},
		}
	}
	return model.GenerateContent(ctx, genai.Text(userPrompt))
}

func (s *GeminiService) Embed(ctx context.Context, text string) ([]float32, error) {
	em := s.client.EmbeddingModel(s.embedModel)
	resp, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		if rotateErr := s.rotateAPIKey(); rotateErr != nil {
			return nil, rotateErr
		}
		em = s.client.EmbeddingModel(s.embedModel)
		resp, err = em.EmbedContent(ctx, genai.Text(text))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrEmbedding, err)
		}
	}
	if resp.Embedding == nil {
		return nil, fmt.Errorf("%w: empty embedding response", types.ErrEmbedding)
	}
	return resp.Embedding.Values, nil
}

func (s *GeminiService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	em := s.client.EmbeddingModel(s.embedModel)
	vectors := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += geminiEmbedBatchSize {
		end := i + geminiEmbedBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := em.NewBatch()
		for _, text := range texts[i:end] {
			batch.AddContent(genai.Text(text))
		}
		resp, err := em.BatchEmbedContents(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrEmbedding, err)
		}
		if len(resp.Embeddings) != end-i {
			return nil, fmt.Errorf("%w: expected %d embeddings, got %d", types.ErrEmbedding, end-i, len(resp.Embeddings))
		}
		for _, emb := range resp.Embeddings {
			vectors = append(vectors, emb.Values)
		}
	}
	return vectors, nil
}
