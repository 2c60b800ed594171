// Package llm adapts the OpenAI chat completions API to the small surface the
// extractor and responders use.
package llm

import (
	"context"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
)

// ChunkStream yields streamed completion chunks until io.EOF.
type ChunkStream interface {
	Recv() (openai.ChatCompletionStreamResponse, error)
	Close() error
}

// Client is the language-model capability: one blocking completion call and
// one streaming call.
type Client interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	CreateChatCompletionStream(ctx context.Context, req openai.ChatCompletionRequest) (ChunkStream, error)
}

// Options configures the OpenAI client.
type Options struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// OpenAIClient implements Client on top of go-openai.
type OpenAIClient struct {
	client *openai.Client
}

func NewOpenAIClient(opts Options) *OpenAIClient {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	if opts.Timeout > 0 {
		cfg.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	return &OpenAIClient{client: openai.NewClientWithConfig(cfg)}
}

func (c *OpenAIClient) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	return c.client.CreateChatCompletion(ctx, req)
}

func (c *OpenAIClient) CreateChatCompletionStream(ctx context.Context, req openai.ChatCompletionRequest) (ChunkStream, error) {
	req.Stream = true
	stream, err := c.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, err
	}
	return stream, nil
}

// Settings are the per-agent model parameters.
type Settings struct {
	Model       string
	MaxTokens   int
	Temperature float64
	TopP        float64
}

// Apply copies the settings onto req.
func (s Settings) Apply(req *openai.ChatCompletionRequest) {
	req.Model = s.Model
	req.MaxTokens = s.MaxTokens
	req.Temperature = float32(s.Temperature)
	req.TopP = float32(s.TopP)
}
