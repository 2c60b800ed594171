package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, chunks []string) (*httptest.Server, *openai.ChatCompletionRequest) {
	t.Helper()
	var captured openai.ChatCompletionRequest

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		if !captured.Stream {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
				Choices: []openai.ChatCompletionChoice{{
					Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: `{"ok":true}`},
				}},
			})
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		for _, c := range chunks {
			payload, _ := json.Marshal(openai.ChatCompletionStreamResponse{
				Choices: []openai.ChatCompletionStreamChoice{{
					Delta: openai.ChatCompletionStreamChoiceDelta{Content: c},
				}},
			})
			fmt.Fprintf(w, "data: %s\n\n", payload)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &captured
}

func TestOpenAIClient_CreateChatCompletion(t *testing.T) {
	srv, captured := newTestServer(t, nil)
	client := NewOpenAIClient(Options{APIKey: "test-key", BaseURL: srv.URL + "/v1"})

	resp, err := client.CreateChatCompletion(context.Background(), openai.ChatCompletionRequest{
		Model:    "gpt-4o-mini",
		Messages: []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, `{"ok":true}`, resp.Choices[0].Message.Content)
	assert.Equal(t, "gpt-4o-mini", captured.Model)
	assert.False(t, captured.Stream)
}

func TestOpenAIClient_CreateChatCompletionStream(t *testing.T) {
	srv, captured := newTestServer(t, []string{"Hel", "lo"})
	client := NewOpenAIClient(Options{APIKey: "test-key", BaseURL: srv.URL + "/v1"})

	stream, err := client.CreateChatCompletionStream(context.Background(), openai.ChatCompletionRequest{
		Model:    "gpt-4o",
		Messages: []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	defer stream.Close()

	var got string
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		got += chunk.Choices[0].Delta.Content
	}
	assert.Equal(t, "Hello", got)
	assert.True(t, captured.Stream, "adapter must request a stream")
}
