// Package llm provides the chat-completion and embedding client.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/semaphore"

	domainerrors "github.com/customsflow/agent-service/internal/domain/errors"
)

// ChatMessage is one message in a completion request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest represents a chat-completion call.
type CompletionRequest struct {
	// SystemPrompt is prepended as the system message.
	SystemPrompt string
	// Messages is the conversation context, oldest first.
	Messages []ChatMessage
	// MaxTokens overrides the configured default when > 0.
	MaxTokens int
	// Temperature overrides the configured default when >= 0.
	Temperature float64
}

// CompletionResponse represents the model's answer.
type CompletionResponse struct {
	Content      string
	Model        string
	TokensInput  int
	TokensOutput int
}

// Config holds the configuration for the LLM client.
type Config struct {
	BaseURL        string
	APIKey         string
	Model          string
	EmbeddingModel string
	MaxTokens      int
	Temperature    float64
	Timeout        time.Duration
	HTTPClient     *http.Client
}

// Client talks to an OpenAI-compatible chat-completion endpoint.
type Client struct {
	cfg        Config
	httpClient *http.Client
	outbound   *semaphore.Weighted
}

// NewClient creates a new LLM client. The outbound semaphore bounds
// concurrent generation and embedding calls process-wide; pass nil to leave
// them unbounded.
func NewClient(cfg *Config, outbound *semaphore.Weighted) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		cfg:        *cfg,
		httpClient: httpClient,
		outbound:   outbound,
	}, nil
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatCompletionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message ChatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Complete sends a chat-completion request and returns the full answer.
func (c *Client) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	if c.outbound != nil {
		if err := c.outbound.Acquire(ctx, 1); err != nil {
			return nil, domainerrors.NewUpstreamTimeoutError("generation slot acquisition", err)
		}
		defer c.outbound.Release(1)
	}

	messages := make([]ChatMessage, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, ChatMessage{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, req.Messages...)

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.cfg.MaxTokens
	}
	temperature := req.Temperature
	if temperature < 0 {
		temperature = c.cfg.Temperature
	}

	body, err := json.Marshal(chatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal completion request: %w", err)
	}

	var resp chatCompletionResponse
	if err := c.post(ctx, "/chat/completions", body, &resp); err != nil {
		return nil, err
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("completion returned no choices")
	}

	return &CompletionResponse{
		Content:      resp.Choices[0].Message.Content,
		Model:        resp.Model,
		TokensInput:  resp.Usage.PromptTokens,
		TokensOutput: resp.Usage.CompletionTokens,
	}, nil
}

type embeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed returns the embedding vector for the given text. Implements
// vector.Embedder.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if c.outbound != nil {
		if err := c.outbound.Acquire(ctx, 1); err != nil {
			return nil, domainerrors.NewUpstreamTimeoutError("embedding slot acquisition", err)
		}
		defer c.outbound.Release(1)
	}

	body, err := json.Marshal(embeddingRequest{
		Model: c.cfg.EmbeddingModel,
		Input: text,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding request: %w", err)
	}

	var resp embeddingResponse
	if err := c.post(ctx, "/embeddings", body, &resp); err != nil {
		return nil, err
	}

	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding returned no data")
	}

	return resp.Data[0].Embedding, nil
}

// post executes a JSON POST against the configured endpoint.
func (c *Client) post(ctx context.Context, path string, body []byte, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return domainerrors.NewUpstreamTimeoutError("generation call", err)
		}
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("llm endpoint returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}
