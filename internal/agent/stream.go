package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/jitinkakkar/dorthy-ai/internal/convert"
	"github.com/jitinkakkar/dorthy-ai/internal/llm"
)

// ErrGeneration is returned when a responder fails to produce output.
var ErrGeneration = errors.New("response generation failed")

// EventType discriminates stream events.
type EventType string

const (
	EventDelta EventType = "message.delta"
	EventDone  EventType = "message.done"
	EventError EventType = "error"
)

// Event is one element of a response stream. Done carries the full text,
// Error carries the failure.
type Event struct {
	Type EventType
	Text string
	Err  error
}

// Streamer runs responders against the model and exposes their output as a Stream.
type Streamer struct {
	client   llm.Client
	searcher DocumentSearcher
	logger   *zap.Logger
}

// NewStreamer builds a Streamer. searcher may be nil, in which case responders
// run without document grounding.
func NewStreamer(client llm.Client, searcher DocumentSearcher, logger *zap.Logger) *Streamer {
	return &Streamer{
		client:   client,
		searcher: searcher,
		logger:   logger.With(zap.String("component", "agent")),
	}
}

// Stream opens the responder's output. history is read, never modified.
func (s *Streamer) Stream(ctx context.Context, r Responder, history []openai.ChatCompletionMessage) (*Stream, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: r.Instructions,
	})

	if r.UseDocumentSearch && s.searcher != nil {
		if query := convert.LatestUserText(history); query != "" {
			docs, err := s.searcher.Search(ctx, query)
			if err != nil {
				s.logger.Error("Document search failed", zap.String("responder", r.Name), zap.Error(err))
				return nil, fmt.Errorf("%w: %s: %w", ErrGeneration, r.Name, err)
			}
			if len(docs) > 0 {
				messages = append(messages, openai.ChatCompletionMessage{
					Role:    openai.ChatMessageRoleSystem,
					Content: formatDocuments(docs),
				})
			}
			s.logger.Debug("Document search", zap.String("responder", r.Name), zap.Int("hits", len(docs)))
		}
	}
	messages = append(messages, history...)

	req := openai.ChatCompletionRequest{Messages: messages}
	r.Apply(&req)

	upstream, err := s.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		s.logger.Error("Failed to open response stream", zap.String("responder", r.Name), zap.Error(err))
		return nil, fmt.Errorf("%w: %s: %w", ErrGeneration, r.Name, err)
	}

	s.logger.Info("Response stream opened",
		zap.String("responder", r.Name),
		zap.String("model", r.Model),
		zap.Int("history_len", len(history)))
	return &Stream{ctx: ctx, upstream: upstream, responder: r.Name}, nil
}

// Stream is a finite, ordered, non-restartable sequence of events. It ends
// with exactly one Done or Error event, after which Recv returns io.EOF.
// A Stream is not safe for concurrent use.
type Stream struct {
	ctx       context.Context
	upstream  llm.ChunkStream
	responder string
	text      strings.Builder
	finished  bool
	closed    bool
}

func (s *Stream) Recv() (Event, error) {
	if s.finished {
		return Event{}, io.EOF
	}
	for {
		if err := s.ctx.Err(); err != nil {
			return s.fail(err), nil
		}
		chunk, err := s.upstream.Recv()
		if errors.Is(err, io.EOF) {
			s.finished = true
			return Event{Type: EventDone, Text: s.text.String()}, nil
		}
		if err != nil {
			return s.fail(err), nil
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		s.text.WriteString(delta)
		return Event{Type: EventDelta, Text: delta}, nil
	}
}

func (s *Stream) fail(err error) Event {
	s.finished = true
	return Event{Type: EventError, Err: fmt.Errorf("%w: %s: %w", ErrGeneration, s.responder, err)}
}

// Text returns the output received so far.
func (s *Stream) Text() string {
	return s.text.String()
}

// Close releases the upstream connection. It is safe to call more than once.
func (s *Stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.finished = true
	return s.upstream.Close()
}
