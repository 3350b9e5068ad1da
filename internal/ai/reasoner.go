package ai

import (
	"SentinelQoS/internal/config"
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// ollamaPlaceholderKey is sent when a local OpenAI-compatible runtime needs no key.
const ollamaPlaceholderKey = "ollama"

// OpenAIReasoner implements model.Reasoner against any OpenAI-compatible API,
// including Ollama's /v1 endpoint.
type OpenAIReasoner struct {
	client    *openai.Client
	maxTokens int
}

// NewOpenAIReasoner creates a reasoner from the Vanguard configuration.
func NewOpenAIReasoner(cfg config.VanguardConfig) (*OpenAIReasoner, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("LLM API key is not configured")
		}
		apiKey = ollamaPlaceholderKey
	}

	// Create a default OpenAI configuration
	clientConfig := openai.DefaultConfig(apiKey)

	// If a custom BaseURL is defined, override the default one
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &OpenAIReasoner{
		client:    openai.NewClientWithConfig(clientConfig),
		maxTokens: 512,
	}, nil
}

// Complete sends a single-turn prompt to the named model and returns its text.
func (r *OpenAIReasoner) Complete(ctx context.Context, model, prompt string) (string, error) {
	resp, err := r.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model:       model,
			MaxTokens:   r.maxTokens,
			Temperature: 0.1,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleSystem,
					Content: systemPrompt,
				},
				{
					Role:    openai.ChatMessageRoleUser,
					Content: prompt,
				},
			},
		},
	)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("LLM request timeout: %w", err)
		}
		if errors.Is(err, context.Canceled) {
			return "", fmt.Errorf("LLM request canceled by client: %w", err)
		}
		return "", fmt.Errorf("LLM API error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("LLM API returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// Models lists the model ids the service exposes.
func (r *OpenAIReasoner) Models(ctx context.Context) ([]string, error) {
	list, err := r.client.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list LLM models: %w", err)
	}
	names := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		names = append(names, m.ID)
	}
	return names, nil
}
