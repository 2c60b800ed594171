// Package llmtest provides an in-memory llm.Client for tests.
package llmtest

import (
	"context"
	"io"
	"sync"

	"github.com/sashabaranov/go-openai"

	"github.com/jitinkakkar/dorthy-ai/internal/llm"
)

// Chunk is one scripted stream element. A non-nil Err is returned from Recv
// in place of a chunk.
type Chunk struct {
	Text string
	Err  error
}

// Client replays scripted responses and records every request it receives.
type Client struct {
	mu sync.Mutex

	// Complete answers CreateChatCompletion calls.
	Complete func(req openai.ChatCompletionRequest) (string, error)
	// Stream scripts CreateChatCompletionStream calls.
	Stream func(req openai.ChatCompletionRequest) ([]Chunk, error)

	Requests       []openai.ChatCompletionRequest
	StreamRequests []openai.ChatCompletionRequest
}

var _ llm.Client = (*Client)(nil)

func (c *Client) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	c.mu.Lock()
	c.Requests = append(c.Requests, req)
	complete := c.Complete
	c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return openai.ChatCompletionResponse{}, err
	}
	if complete == nil {
		return openai.ChatCompletionResponse{}, nil
	}
	content, err := complete(req)
	if err != nil {
		return openai.ChatCompletionResponse{}, err
	}
	return openai.ChatCompletionResponse{
		Model: req.Model,
		Choices: []openai.ChatCompletionChoice{{
			Message:      openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content},
			FinishReason: openai.FinishReasonStop,
		}},
	}, nil
}

func (c *Client) CreateChatCompletionStream(ctx context.Context, req openai.ChatCompletionRequest) (llm.ChunkStream, error) {
	c.mu.Lock()
	c.StreamRequests = append(c.StreamRequests, req)
	script := c.Stream
	c.mu.Unlock()

	var chunks []Chunk
	if script != nil {
		var err error
		if chunks, err = script(req); err != nil {
			return nil, err
		}
	}
	return &Stream{ctx: ctx, chunks: chunks}, nil
}

// CompleteCalls returns how many blocking completions were requested.
func (c *Client) CompleteCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Requests)
}

// StreamCalls returns how many streams were opened.
func (c *Client) StreamCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.StreamRequests)
}

// Stream is a scripted llm.ChunkStream.
type Stream struct {
	ctx    context.Context
	chunks []Chunk
	pos    int
	Closed bool
}

func (s *Stream) Recv() (openai.ChatCompletionStreamResponse, error) {
	if err := s.ctx.Err(); err != nil {
		return openai.ChatCompletionStreamResponse{}, err
	}
	if s.pos >= len(s.chunks) {
		return openai.ChatCompletionStreamResponse{}, io.EOF
	}
	chunk := s.chunks[s.pos]
	s.pos++
	if chunk.Err != nil {
		return openai.ChatCompletionStreamResponse{}, chunk.Err
	}
	return openai.ChatCompletionStreamResponse{
		Choices: []openai.ChatCompletionStreamChoice{{
			Delta: openai.ChatCompletionStreamChoiceDelta{Content: chunk.Text},
		}},
	}, nil
}

func (s *Stream) Close() error {
	s.Closed = true
	return nil
}

// Texts scripts a successful stream of text chunks.
func Texts(texts ...string) []Chunk {
	chunks := make([]Chunk, len(texts))
	for i, t := range texts {
		chunks[i] = Chunk{Text: t}
	}
	return chunks
}
