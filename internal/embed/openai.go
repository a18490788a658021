package embed

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const openAIDimensions = 1536 // text-embedding-3-small

// OpenAIEmbedder calls the OpenAI embeddings API. Vectors come back
// unit-normalized from the API already.
type OpenAIEmbedder struct {
	client openai.Client
	model  openai.EmbeddingModel
}

// NewOpenAI returns an embedder backed by text-embedding-3-small.
func NewOpenAI(apiKey string) *OpenAIEmbedder {
	return &OpenAIEmbedder{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  openai.EmbeddingModelTextEmbedding3Small,
	}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model: e.model,
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("openai embeddings: empty response")
	}
	raw := resp.Data[0].Embedding
	vec := make([]float32, len(raw))
	for i, v := range raw {
		vec[i] = float32(v)
	}
	return vec, nil
}

func (e *OpenAIEmbedder) Dimensions() int { return openAIDimensions }
