// Package anthropic provides the messages-API provider adapter
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/formulab/v2/internal/infrastructure/ai"
	"github.com/formulab/v2/internal/ports/outbound"
	"github.com/formulab/v2/pkg/errors"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

const (
	defaultBaseURL   = "https://api.anthropic.com"
	apiVersion       = "2023-06-01"
	defaultMaxTokens = 4096
)

// Config holds the adapter configuration.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Client implements the AIProvider interface over the messages API.
type Client struct {
	apiKey  string
	baseURL string
	model   string
	client  *retryablehttp.Client
	logger  *zap.Logger
}

// NewClient creates a new messages-API client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = ai.DefaultAnthropicModel
	}
	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		model:   model,
		client:  ai.NewHTTPClient(cfg.Timeout),
		logger:  logger,
	}
}

// Name returns the provider identifier.
func (c *Client) Name() string {
	return ai.ProviderAnthropic
}

// Wire structures for the messages API.
type messagesRequest struct {
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	System      string        `json:"system,omitempty"`
	Messages    []wireMessage `json:"messages"`
	Tools       []wireTool    `json:"tools,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type wireTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

type messagesResponse struct {
	Content    []contentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      wireUsage      `json:"usage"`
}

type contentBlock struct {
	Type  string          `json:"type"`
	Text  string          `json:"text,omitempty"`
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

type wireUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

func (c *Client) buildRequest(req outbound.CompletionRequest, stream bool) messagesRequest {
	// The messages API takes the system prompt out-of-band and only accepts
	// user/assistant turns in the history.
	messages := make([]wireMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		role := string(m.Role)
		if m.Role == outbound.RoleSystem {
			role = string(outbound.RoleUser)
		}
		messages = append(messages, wireMessage{Role: role, Content: m.Content})
	}

	tools := make([]wireTool, 0, len(req.Tools))
	for _, t := range req.Tools {
		tools = append(tools, wireTool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.Parameters,
		})
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	model := req.Model
	if model == "" {
		model = c.model
	}

	return messagesRequest{
		Model:       ai.NormalizeModel(ai.ProviderAnthropic, model),
		MaxTokens:   maxTokens,
		System:      req.System,
		Messages:    messages,
		Tools:       tools,
		Temperature: req.Temperature,
		Stream:      stream,
	}
}

func (c *Client) post(ctx context.Context, body messagesRequest) (*http.Response, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", apiVersion)

	resp, err := ai.Do(c.client, req)
	if err != nil {
		return nil, errors.NewProviderTransientError(c.Name(), err)
	}
	return resp, nil
}

// Complete performs one buffered completion round trip.
func (c *Client) Complete(ctx context.Context, req outbound.CompletionRequest) (*outbound.CompletionResult, error) {
	resp, err := c.post(ctx, c.buildRequest(req, false))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewProviderTransientError(c.Name(), err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, ai.StatusError(c.Name(), resp.StatusCode, body)
	}

	var msgResp messagesResponse
	if err := json.Unmarshal(body, &msgResp); err != nil {
		return nil, errors.NewProviderFatalError(c.Name(), resp.StatusCode,
			fmt.Errorf("failed to unmarshal response: %w", err))
	}

	result := &outbound.CompletionResult{
		StopReason: msgResp.StopReason,
		Usage: outbound.Usage{
			InputTokens:  msgResp.Usage.InputTokens,
			OutputTokens: msgResp.Usage.OutputTokens,
		},
	}
	for _, block := range msgResp.Content {
		switch block.Type {
		case "text":
			result.Text += block.Text
		case "tool_use":
			result.ToolCalls = append(result.ToolCalls, outbound.ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: block.Input,
			})
		}
	}

	c.logger.Debug("completion finished",
		zap.String("provider", c.Name()),
		zap.String("stop_reason", result.StopReason),
		zap.Int("tool_calls", len(result.ToolCalls)),
		zap.Int("input_tokens", result.Usage.InputTokens),
		zap.Int("output_tokens", result.Usage.OutputTokens),
	)

	return result, nil
}
