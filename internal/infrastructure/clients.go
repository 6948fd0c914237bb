package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"wa_relay/internal/entities"
)

// FallbackReply is sent whenever the completion endpoint cannot produce an answer.
const FallbackReply = "I'm sorry, I'm having trouble processing your request right now. Please try again later."

type chatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type AIClientConfig struct {
	// BaseURL is the gateway root, e.g. https://ai-gateway.lovable.dev/v1.
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// CompletionClient talks to an OpenAI-compatible chat completions gateway.
type CompletionClient struct {
	cfg     AIClientConfig
	client  chatClient
	log     zerolog.Logger
	metrics *RelayMetrics
}

func NewCompletionClient(cfg AIClientConfig, log zerolog.Logger, metrics *RelayMetrics) *CompletionClient {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}
	return newCompletionClient(openai.NewClientWithConfig(oc), cfg, log, metrics)
}

func newCompletionClient(client chatClient, cfg AIClientConfig, log zerolog.Logger, metrics *RelayMetrics) *CompletionClient {
	if client == nil {
		panic("infrastructure: chat client cannot be nil")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &CompletionClient{
		cfg:     cfg,
		client:  client,
		log:     log.With().Str("component", "ai").Logger(),
		metrics: metrics,
	}
}

// Complete never returns an empty string: any failure yields FallbackReply.
func (c *CompletionClient) Complete(ctx context.Context, messages []entities.ChatMessage) string {
	start := time.Now()
	reply, err := c.complete(ctx, messages)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		c.log.Error().Err(err).Float64("seconds", elapsed).Msg("chat completion failed, using fallback")
		c.metrics.ObserveAIRequest("fallback", elapsed)
		return FallbackReply
	}
	c.metrics.ObserveAIRequest("ok", elapsed)
	return reply
}

func (c *CompletionClient) complete(ctx context.Context, messages []entities.ChatMessage) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    toOpenAIMessages(messages),
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: float32(c.cfg.Temperature),
	}
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(callCtx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("response has no choices")
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", errors.New("response content is empty")
	}
	return content, nil
}

func toOpenAIMessages(messages []entities.ChatMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	return out
}
