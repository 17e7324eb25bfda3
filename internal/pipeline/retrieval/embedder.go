package retrieval

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// Embedder turns question text into a vector for similarity search.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// GenaiEmbedder embeds text with the Gemini embedding API over the shared
// genai client.
type GenaiEmbedder struct {
	client *genai.Client
	model  string
}

func NewGenaiEmbedder(client *genai.Client, model string) *GenaiEmbedder {
	return &GenaiEmbedder{client: client, model: model}
}

func (e *GenaiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.Models.EmbedContent(ctx, e.model, genai.Text(text), nil)
	if err != nil {
		return nil, fmt.Errorf("embed content: %w", err)
	}
	if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
		return nil, fmt.Errorf("embed content: empty response")
	}
	return resp.Embeddings[0].Values, nil
}
