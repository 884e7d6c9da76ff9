package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"shopping-agent/internal/domain"
)

const defaultSecretName = "openai-token"

// TokenSource resolves API credentials by name.
type TokenSource interface {
	Token(ctx context.Context, name string) (string, error)
}

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	Message    string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("openai: unexpected status %d: %s", e.StatusCode, e.Message)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client is a chat-completions-with-tools client backed by go-openai.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	secretName string

	mu  sync.Mutex
	api *goopenai.Client
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithSecretName(name string) Option {
	return func(c *Client) {
		c.secretName = strings.TrimSpace(name)
	}
}

// NewClient creates a Client. The API key is resolved from tokens on the
// first call and reused afterwards.
func NewClient(tokens TokenSource, opts ...Option) (*Client, error) {
	if tokens == nil {
		return nil, errors.New("openai: token source must not be nil")
	}
	c := &Client{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		tokens:     tokens,
		secretName: defaultSecretName,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.secretName == "" {
		return nil, errors.New("openai: secret name must not be empty")
	}
	return c, nil
}

func (c *Client) resolveAPI(ctx context.Context) (*goopenai.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.api != nil {
		return c.api, nil
	}

	key, err := c.tokens.Token(ctx, c.secretName)
	if err != nil {
		return nil, fmt.Errorf("openai: resolve api key: %w", err)
	}
	cfg := goopenai.DefaultConfig(key)
	if c.baseURL != "" {
		cfg.BaseURL = apiBaseURL(c.baseURL)
	}
	if c.httpClient != nil {
		cfg.HTTPClient = c.httpClient
	}
	c.api = goopenai.NewClientWithConfig(cfg)
	return c.api, nil
}

func apiBaseURL(base string) string {
	base = strings.TrimRight(base, "/")
	if strings.HasSuffix(base, "/v1") {
		return base
	}
	return base + "/v1"
}

// ChatWithTools runs one chat completion turn. When tools is non-empty the
// model may answer with tool calls instead of content.
func (c *Client) ChatWithTools(ctx context.Context, model string, messages []domain.ChatMessage, tools []domain.ToolDefinition) (domain.Completion, error) {
	if model == "" {
		return domain.Completion{}, errors.New("openai: model must not be empty")
	}
	api, err := c.resolveAPI(ctx)
	if err != nil {
		return domain.Completion{}, err
	}

	req := goopenai.ChatCompletionRequest{
		Model:    model,
		Messages: toOpenAIMessages(messages),
	}
	if len(tools) > 0 {
		req.Tools = toOpenAITools(tools)
		req.ToolChoice = "auto"
	}

	resp, err := api.CreateChatCompletion(ctx, req)
	if err != nil {
		return domain.Completion{}, wrapError(err)
	}
	if len(resp.Choices) == 0 {
		return domain.Completion{}, errors.New("openai: no choices in response")
	}

	msg := resp.Choices[0].Message
	out := domain.Completion{Content: msg.Content}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, domain.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out, nil
}

func toOpenAIMessages(messages []domain.ChatMessage) []goopenai.ChatCompletionMessage {
	out := make([]goopenai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		msg := goopenai.ChatCompletionMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, goopenai.ToolCall{
				ID:   tc.ID,
				Type: goopenai.ToolTypeFunction,
				Function: goopenai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		out = append(out, msg)
	}
	return out
}

func toOpenAITools(tools []domain.ToolDefinition) []goopenai.Tool {
	out := make([]goopenai.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, goopenai.Tool{
			Type: goopenai.ToolTypeFunction,
			Function: &goopenai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return out
}

// wrapError converts go-openai errors into HTTPStatusError when a status is known.
func wrapError(err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("openai: chat completion: %w", &HTTPStatusError{StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message})
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		msg := http.StatusText(reqErr.HTTPStatusCode)
		if reqErr.Err != nil {
			msg = reqErr.Err.Error()
		}
		return fmt.Errorf("openai: chat completion: %w", &HTTPStatusError{StatusCode: reqErr.HTTPStatusCode, Message: msg})
	}
	return fmt.Errorf("openai: chat completion: %w", err)
}
