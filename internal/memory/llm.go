// ABOUTME: Chat language-model clients for the engine's conversational capability
// ABOUTME: Supports OpenAI-compatible HTTP endpoints and Anthropic via the official SDK

package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/2389/memos-gateway/internal/config"
)

// ChatLLM generates a single assistant reply for a conversation
type ChatLLM interface {
	Generate(ctx context.Context, messages []Message) (string, error)
}

// newChatLLM builds a chat client from config, selected by provider
func newChatLLM(cfg config.LLMConfig) (ChatLLM, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return NewOpenAIChat(cfg), nil
	case config.ProviderAnthropic:
		return NewAnthropicChat(cfg), nil
	default:
		return nil, fmt.Errorf("%w: unknown chat provider %q", config.ErrInvalidConfig, cfg.Provider)
	}
}

// OpenAIChat calls an OpenAI-compatible /chat/completions endpoint
type OpenAIChat struct {
	baseURL     string
	model       string
	apiKey      string
	temperature float64
	client      *http.Client
}

// NewOpenAIChat creates a chat client backed by an OpenAI-compatible API
func NewOpenAIChat(cfg config.LLMConfig) *OpenAIChat {
	return &OpenAIChat{
		baseURL:     cfg.BaseURL,
		model:       cfg.Model,
		apiKey:      cfg.APIKey,
		temperature: cfg.Temperature,
		client:      &http.Client{Timeout: 120 * time.Second},
	}
}

type chatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

// Generate sends the conversation and returns the first choice's content
func (c *OpenAIChat) Generate(ctx context.Context, messages []Message) (string, error) {
	body, err := json.Marshal(chatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("chat API returned %d: %s", resp.StatusCode, msg)
	}

	var parsed chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decoding chat response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", ErrNoResponse
	}

	return parsed.Choices[0].Message.Content, nil
}

// AnthropicChat calls the Anthropic Messages API
type AnthropicChat struct {
	client      anthropic.Client
	model       string
	temperature float64
}

// NewAnthropicChat creates a chat client backed by the Anthropic SDK
func NewAnthropicChat(cfg config.LLMConfig) *AnthropicChat {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &AnthropicChat{
		client:      anthropic.NewClient(opts...),
		model:       cfg.Model,
		temperature: cfg.Temperature,
	}
}

// Generate sends the conversation and concatenates the text blocks of the reply.
// A leading system message is passed through the API's system field.
func (c *AnthropicChat) Generate(ctx context.Context, messages []Message) (string, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   1024,
		Temperature: anthropic.Float(c.temperature),
	}

	for _, msg := range messages {
		switch msg.Role {
		case "system":
			params.System = append(params.System, anthropic.TextBlockParam{Text: msg.Content})
		case "assistant":
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic API error: %w", err)
	}

	var sb strings.Builder
	found := false
	for _, block := range resp.Content {
		if block.Type == "text" {
			found = true
			sb.WriteString(block.Text)
		}
	}
	if !found {
		return "", ErrNoResponse
	}
	return sb.String(), nil
}
