// Package summarizer talks to the LLM used to name detected features.
//
// The OpenAI client also serves OpenAI-compatible servers such as Ollama
// through a custom base URL. Wrap any Summarizer with Resilient to get a
// per-call timeout, a single retry on transient errors and rate limiting.
package summarizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/Emberfield/autodoc/internal/logging"
)

// Summarizer turns a prompt into text.
type Summarizer interface {
	Summarize(ctx context.Context, prompt string) (string, error)
}

// Func adapts a function to Summarizer.
type Func func(ctx context.Context, prompt string) (string, error)

// Summarize implements Summarizer.
func (f Func) Summarize(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// ErrNotConfigured is returned when no API key or base URL is available.
var ErrNotConfigured = errors.New("summarizer not configured")

const systemPrompt = "You are a senior software architect naming parts of a codebase. Reply with JSON only."

// Config configures the OpenAI client.
type Config struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float32
	MaxTokens   int
	Logger      *slog.Logger
}

// OpenAI is a Summarizer backed by the chat completions API.
type OpenAI struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	logger      *slog.Logger
}

// NewOpenAI creates a client. Providers "openai" and "ollama" are supported;
// ollama defaults the base URL to a local server and needs no key.
func NewOpenAI(cfg Config) (*OpenAI, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "openai":
	case "ollama":
		if cfg.BaseURL == "" {
			cfg.BaseURL = "http://localhost:11434/v1"
		}
		if cfg.APIKey == "" {
			cfg.APIKey = "ollama"
		}
	default:
		return nil, fmt.Errorf("%w: unsupported provider %q", ErrNotConfigured, cfg.Provider)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: set OPENAI_API_KEY or llm.api_key", ErrNotConfigured)
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}

	logger := logging.OrDiscard(cfg.Logger)
	logger.Debug("initializing summarizer", "provider", cfg.Provider, "model", cfg.Model)
	return &OpenAI{
		client:      openai.NewClientWithConfig(oc),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		logger:      logger,
	}, nil
}

// Summarize implements Summarizer.
func (o *OpenAI) Summarize(ctx context.Context, prompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: o.temperature,
		MaxTokens:   o.maxTokens,
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	o.logger.Debug("summarizer response", "finish_reason", resp.Choices[0].FinishReason)
	return resp.Choices[0].Message.Content, nil
}
