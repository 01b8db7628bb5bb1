// Package llm provides free-text generation over OpenAI-compatible chat
// backends with explicit provider fallback.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// Provider names.
const (
	ProviderOpenAI = "openai"
	ProviderGroq   = "groq"
)

// Default endpoints and models.
const (
	GroqBaseURL        = "https://api.groq.com/openai/v1"
	DefaultOpenAIModel = "gpt-4-turbo"
	DefaultGroqModel   = "llama-3.3-70b-versatile"
)

// Request is one generation call. Provider and Model are hints; empty
// values select the router defaults.
type Request struct {
	System   string
	User     string
	Provider string
	Model    string
}

// Response carries the generated text and the provider and model that
// actually produced it.
type Response struct {
	Text     string `json:"text"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
	// FellBack is set when the requested provider did not answer.
	FellBack bool `json:"fell_back,omitempty"`
}

// Client is the generation surface decision nodes depend on.
type Client interface {
	Query(ctx context.Context, req Request) (Response, error)
}

// Backend completes a chat with an explicit model.
type Backend interface {
	Complete(ctx context.Context, system, user, model string) (string, error)
}

// OpenAIBackend implements Backend with go-openai. Groq is served through
// the same client pointed at its OpenAI-compatible base URL.
type OpenAIBackend struct {
	client      *openai.Client
	name        string
	temperature float32
}

// NewOpenAIBackend creates a backend. An empty baseURL uses api.openai.com.
func NewOpenAIBackend(name, apiKey, baseURL string, temperature float32) *OpenAIBackend {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIBackend{
		client:      openai.NewClientWithConfig(cfg),
		name:        name,
		temperature: temperature,
	}
}

// Complete sends a system and user prompt and returns the first choice.
func (b *OpenAIBackend) Complete(ctx context.Context, system, user, model string) (string, error) {
	resp, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: b.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("%s completion failed: %w", b.name, err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("no response from %s", b.name)
	}
	return resp.Choices[0].Message.Content, nil
}
