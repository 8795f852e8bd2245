package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

var (
	// ErrModelUnavailable means the backend could not be reached or refused
	// the request.
	ErrModelUnavailable = errors.New("llm: model unavailable")

	// ErrModelTimeout means the backend did not answer within the timeout.
	ErrModelTimeout = errors.New("llm: model timeout")

	// ErrMalformedOutput means the backend answered without usable text.
	ErrMalformedOutput = errors.New("llm: malformed model output")
)

// Role values accepted by the backend.
const (
	RoleSystem    = openai.ChatMessageRoleSystem
	RoleUser      = openai.ChatMessageRoleUser
	RoleAssistant = openai.ChatMessageRoleAssistant
)

// Message is a minimal chat message used by the core chat service.
// Role must be one of: "system", "user", or "assistant".
type Message struct {
	Role    string
	Content string
}

// Client defines the methods required by the chat pipeline.  Generate accepts
// the full message list (system + prior turns + latest user).
type Client interface {
	Generate(ctx context.Context, messages []Message) (string, error)
	Ping(ctx context.Context) error
	Model() string
}

// Options configures an OpenAIClient.  BaseURL may point at any
// OpenAI-compatible endpoint, Ollama's /v1 included.
type Options struct {
	BaseURL     string
	APIKey      string
	Model       string
	Timeout     time.Duration
	Temperature float32
	TopP        float32
	MaxTokens   int
}

// OpenAIClient calls an OpenAI-compatible chat completion API with fixed
// sampling parameters.
type OpenAIClient struct {
	client *openai.Client
	opts   Options
}

// NewOpenAIClient constructs a client from opts.
func NewOpenAIClient(opts Options) *OpenAIClient {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	}
	return &OpenAIClient{
		client: openai.NewClientWithConfig(cfg),
		opts:   opts,
	}
}

// Model returns the configured model name.
func (c *OpenAIClient) Model() string { return c.opts.Model }

// Generate sends the message list to the chat completion API and returns the
// assistant's text.  The call is bounded by the configured timeout.
func (c *OpenAIClient) Generate(ctx context.Context, messages []Message) (string, error) {
	if c.client == nil {
		return "", fmt.Errorf("%w: client not initialized", ErrModelUnavailable)
	}
	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	oaMsgs := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		role := m.Role
		if role != RoleSystem && role != RoleUser && role != RoleAssistant {
			// coerce anything unknown to user
			role = RoleUser
		}
		oaMsgs = append(oaMsgs, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.opts.Model,
		Messages:    oaMsgs,
		Temperature: c.opts.Temperature,
		TopP:        c.opts.TopP,
		MaxTokens:   c.opts.MaxTokens,
	})
	if err != nil {
		return "", classify(ctx, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", ErrMalformedOutput)
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("%w: empty content", ErrMalformedOutput)
	}
	return content, nil
}

// Ping sends a tiny prompt to check that the backend answers.
func (c *OpenAIClient) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     c.opts.Model,
		Messages:  []openai.ChatCompletionMessage{{Role: RoleUser, Content: "test"}},
		MaxTokens: 10,
	})
	if err != nil {
		return classify(ctx, err)
	}
	return nil
}

func classify(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrModelTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrModelTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrModelUnavailable, err)
}
