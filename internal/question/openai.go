package question

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

const (
	defaultModel       = openai.GPT4TurboPreview
	defaultTemperature = 0.9
	defaultMaxTokens   = 500
)

type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
}

// OpenAI is a Completer backed by the chat completions API.
type OpenAI struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
}

func NewOpenAI(c OpenAIConfig) *OpenAI {
	cc := openai.DefaultConfig(c.APIKey)
	if c.BaseURL != "" {
		cc.BaseURL = c.BaseURL
	}

	o := &OpenAI{
		client:      openai.NewClientWithConfig(cc),
		model:       c.Model,
		temperature: c.Temperature,
		maxTokens:   c.MaxTokens,
	}

	if o.model == "" {
		o.model = defaultModel
	}
	if o.temperature == 0 {
		o.temperature = defaultTemperature
	}
	if o.maxTokens == 0 {
		o.maxTokens = defaultMaxTokens
	}

	return o
}

func (o *OpenAI) Complete(ctx context.Context, system, prompt string) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: o.temperature,
		MaxTokens:   o.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("openai: chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: empty response")
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
