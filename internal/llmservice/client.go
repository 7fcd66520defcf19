// Package llmservice calls the downstream generation model. The retrieval
// pipeline only builds prompts; answer generation is delegated here.
package llmservice

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"

	"github.com/FKhadivpour/RAG-Application/internal/config"
)

func newModel(llmConfig *config.LLMConfig) (llms.Model, error) {
	switch llmConfig.Provider {
	case "", "ollama":
		return ollama.New(
			ollama.WithServerURL(llmConfig.BaseURL),
			ollama.WithModel(llmConfig.Model),
		)
	case "openai":
		return openai.New(
			openai.WithBaseURL(llmConfig.BaseURL),
			openai.WithToken(strings.TrimPrefix(llmConfig.Key, "Bearer ")),
			openai.WithModel(llmConfig.Model),
		)
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", llmConfig.Provider)
	}
}

// Generate runs a single-turn completion against the configured provider and
// returns the model's text answer.
func Generate(ctx context.Context, llmConfig *config.LLMConfig, prompt string) (string, error) {
	log.Debug().Str("provider", llmConfig.Provider).Str("model", llmConfig.Model).Msg("Generating answer")

	llm, err := newModel(llmConfig)
	if err != nil {
		return "", err
	}

	messages := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeHuman, prompt),
	}
	resp, err := llm.GenerateContent(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("generation failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("generation returned no choices")
	}
	return resp.Choices[0].Content, nil
}
