package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	chatModel = "gpt-4o-mini"

	cerebrasBaseURL = "https://api.cerebras.ai/v1"
	cerebrasModel   = "llama-3.3-70b"
)

// openAIProvider talks to any OpenAI-compatible chat completions endpoint.
type openAIProvider struct {
	client *openai.Client
	model  string
}

func newOpenAIProvider(apiKey, baseURL, model string) *openAIProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)
	return &openAIProvider{client: &client, model: model}
}

func (p *openAIProvider) complete(ctx context.Context, prompt string, temp float64) (string, error) {
	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: p.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(temp),
	})
	if err != nil {
		return "", fmt.Errorf("openai request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai API returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// NewOpenAIClient returns a client for the OpenAI API, or for a compatible
// endpoint when baseURL is set.
func NewOpenAIClient(apiKey, baseURL, model string) *Client {
	if model == "" {
		model = chatModel
	}
	return newClient(newOpenAIProvider(apiKey, baseURL, model))
}

// NewCerebrasClient uses the Cerebras OpenAI-compatible endpoint.
func NewCerebrasClient(apiKey, model string) *Client {
	if model == "" {
		model = cerebrasModel
	}
	return newClient(newOpenAIProvider(apiKey, cerebrasBaseURL, model))
}
