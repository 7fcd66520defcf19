// Package embedding maps text to fixed-length dense vectors through a
// configured embedding model. Outputs are deterministic for a given model
// identity, so indexing is reproducible.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/FKhadivpour/RAG-Application/internal/config"
	"github.com/FKhadivpour/RAG-Application/internal/models"
)

// Embedder turns texts into vectors, one output per input in the same order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Model() models.ModelIdentity
	Dimensions() int
}

// LangchainEmbedder adapts a langchaingo embedder to the Embedder port.
type LangchainEmbedder struct {
	impl       *embeddings.EmbedderImpl
	model      models.ModelIdentity
	dimensions int
}

// NewEmbedder builds an embedder for the configured provider.
func NewEmbedder(cfg *config.LLMConfig) (*LangchainEmbedder, error) {
	switch cfg.Provider {
	case "", "ollama":
		return NewOllamaEmbedder(cfg)
	case "openai":
		return NewOpenAIEmbedder(cfg)
	default:
		return nil, fmt.Errorf("%w: unknown embedding provider %q", models.ErrInvalidConfig, cfg.Provider)
	}
}

// NewOllamaEmbedder connects to an Ollama server.
func NewOllamaEmbedder(cfg *config.LLMConfig) (*LangchainEmbedder, error) {
	if err := validate(cfg); err != nil {
		return nil, err
	}
	llm, err := ollama.New(
		ollama.WithServerURL(cfg.BaseURL),
		ollama.WithModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrEmbeddingUnavailable, err)
	}
	impl, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrEmbeddingUnavailable, err)
	}
	return newLangchain(impl, cfg), nil
}

// NewOpenAIEmbedder connects to an OpenAI-compatible endpoint (OpenRouter
// included).
func NewOpenAIEmbedder(cfg *config.LLMConfig) (*LangchainEmbedder, error) {
	if err := validate(cfg); err != nil {
		return nil, err
	}
	llm, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
		openai.WithModel(cfg.Model),
		openai.WithEmbeddingModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrEmbeddingUnavailable, err)
	}
	impl, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrEmbeddingUnavailable, err)
	}
	return newLangchain(impl, cfg), nil
}

func validate(cfg *config.LLMConfig) error {
	if cfg.Model == "" {
		return fmt.Errorf("%w: embedding model name is required", models.ErrInvalidConfig)
	}
	if cfg.Dimensions <= 0 {
		return fmt.Errorf("%w: embedding dimensions must be positive", models.ErrInvalidConfig)
	}
	return nil
}

func newLangchain(impl *embeddings.EmbedderImpl, cfg *config.LLMConfig) *LangchainEmbedder {
	return &LangchainEmbedder{
		impl:       impl,
		model:      models.ModelIdentity{Name: cfg.Model, Version: cfg.ModelVersion},
		dimensions: cfg.Dimensions,
	}
}

// Embed generates one vector per input text, preserving order. Transport
// failures surface as ErrEmbeddingUnavailable; an expired caller deadline
// surfaces as ErrTimeout so the caller can retry.
func (e *LangchainEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vectors, err := e.impl.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, classify(err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", models.ErrEmbeddingUnavailable, len(vectors), len(texts))
	}
	return vectors, nil
}

func (e *LangchainEmbedder) Model() models.ModelIdentity { return e.model }

func (e *LangchainEmbedder) Dimensions() int { return e.dimensions }

// classify maps transport errors onto the failure taxonomy. Cancellation
// passes through untouched.
func classify(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", models.ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		return err
	default:
		return fmt.Errorf("%w: %v", models.ErrEmbeddingUnavailable, err)
	}
}
