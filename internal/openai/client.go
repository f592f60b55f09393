// Package openai adapts the OpenAI embeddings API to the retrieval
// engine's embedding provider boundary.
package openai

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

const (
	// DefaultEmbeddingModel is the model used for query embeddings
	DefaultEmbeddingModel = openai.SmallEmbedding3
	// DefaultEmbeddingDimensions matches the vector(1536) column in the dense index
	DefaultEmbeddingDimensions = 1536
)

var (
	// ErrEmptyText is returned when the text to embed is empty
	ErrEmptyText = errors.New("text cannot be empty")
	// ErrWrongDimensions is returned when the provider returns an embedding
	// of an unexpected size
	ErrWrongDimensions = errors.New("embedding has unexpected dimensions")
)

// embeddingAPI is the slice of the OpenAI client the adapter needs.
type embeddingAPI interface {
	CreateEmbeddings(ctx context.Context, req openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// Client generates dense embeddings for query text.
type Client struct {
	api        embeddingAPI
	model      openai.EmbeddingModel
	dimensions int
}

// Config holds the settings for constructing a Client.
type Config struct {
	APIKey     string
	Model      openai.EmbeddingModel
	Dimensions int
}

// NewClient creates an embedding client with default model settings.
func NewClient(apiKey string) *Client {
	return NewClientWithConfig(Config{APIKey: apiKey})
}

// NewClientWithConfig creates an embedding client with explicit settings.
func NewClientWithConfig(cfg Config) *Client {
	model := cfg.Model
	if model == "" {
		model = DefaultEmbeddingModel
	}
	dimensions := cfg.Dimensions
	if dimensions <= 0 {
		dimensions = DefaultEmbeddingDimensions
	}
	return &Client{
		api:        openai.NewClient(cfg.APIKey),
		model:      model,
		dimensions: dimensions,
	}
}

// Embed generates a dense embedding for the given text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: c.model,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding: %w", err)
	}

	if len(resp.Data) == 0 {
		return nil, errors.New("no embedding data returned")
	}

	embedding := resp.Data[0].Embedding
	if len(embedding) != c.dimensions {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrWrongDimensions, len(embedding), c.dimensions)
	}

	return embedding, nil
}
