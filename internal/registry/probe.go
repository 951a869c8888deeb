package registry

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/sashabaranov/go-openai"
)

// OpenAIProbe checks an OpenAI-compatible endpoint by listing its models.
// deepseek, gemini's OpenAI-compatible surface, and local ollama all answer
// this; baseURL selects the upstream.
func OpenAIProbe(apiKey, baseURL string) ProbeFunc {
	clientConfig := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientConfig.BaseURL = baseURL
	}
	client := openai.NewClientWithConfig(clientConfig)

	return func(ctx context.Context) error {
		if _, err := client.ListModels(ctx); err != nil {
			return fmt.Errorf("model listing failed: %w", err)
		}
		return nil
	}
}

const anthropicProbeModel = "claude-3-haiku-20240307"

// AnthropicProbe checks the Anthropic API with a minimal one-token message,
// the cheapest request the API accepts.
func AnthropicProbe(apiKey, baseURL, model string) ProbeFunc {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := anthropic.NewClient(opts...)

	if model == "" {
		model = anthropicProbeModel
	}

	return func(ctx context.Context) error {
		_, err := client.Messages.New(ctx, anthropic.MessageNewParams{
			Model: anthropic.Model(model),
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock("ping")),
			},
			MaxTokens: 1,
		})
		if err != nil {
			return fmt.Errorf("message probe failed: %w", err)
		}
		return nil
	}
}
