// Package openai embeds text with the OpenAI embeddings API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"
)

// Config selects the embedding model and credentials.
type Config struct {
	APIKey string `yaml:"apiKey"`
	Model  string `yaml:"model"`
}

// dimensions per supported model; text-embedding-3-small is the default.
var modelDimensions = map[string]int{
	string(goopenai.SmallEmbedding3): 1536,
	string(goopenai.LargeEmbedding3): 3072,
	string(goopenai.AdaEmbeddingV2):  1536,
}

// Provider implements embeddings.Provider over the OpenAI API.
type Provider struct {
	client *goopenai.Client
	model  goopenai.EmbeddingModel
	dim    int
}

// New builds a Provider from cfg. Model defaults to text-embedding-3-small.
func New(cfg Config) (*Provider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("openai embeddings: API key is required")
	}
	model := cfg.Model
	if model == "" {
		model = string(goopenai.SmallEmbedding3)
	}
	dim, ok := modelDimensions[model]
	if !ok {
		return nil, fmt.Errorf("openai embeddings: unsupported model %q", model)
	}
	return &Provider{
		client: goopenai.NewClient(cfg.APIKey),
		model:  goopenai.EmbeddingModel(model),
		dim:    dim,
	}, nil
}

// Embed returns the embedding vector for text.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("openai embeddings: empty text")
	}
	resp, err := p.client.CreateEmbeddings(ctx, goopenai.EmbeddingRequest{
		Input: []string{text},
		Model: p.model,
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("openai embeddings: empty response")
	}
	return resp.Data[0].Embedding, nil
}

// Dimension reports the configured model's vector length.
func (p *Provider) Dimension() int { return p.dim }
