package completeness

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/jitinkakkar/dorthy-ai/internal/llm"
	"github.com/jitinkakkar/dorthy-ai/internal/llm/llmtest"
)

var testSettings = llm.Settings{Model: "gpt-4o-mini", MaxTokens: 2048, Temperature: 1, TopP: 1}

func history() []openai.ChatCompletionMessage {
	return []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleUser, Content: "I want to buy a house in Toronto"},
		{Role: openai.ChatMessageRoleAssistant, Content: "When are you hoping to buy?"},
		{Role: openai.ChatMessageRoleUser, Content: "next year"},
	}
}

func respondWith(t *testing.T, rec Record) func(openai.ChatCompletionRequest) (string, error) {
	data, err := json.Marshal(rec)
	require.NoError(t, err)
	return func(openai.ChatCompletionRequest) (string, error) { return string(data), nil }
}

func TestGPTExtractor_SendsWholeHistoryWithSchema(t *testing.T) {
	client := &llmtest.Client{Complete: respondWith(t, Record{CityOrRegion: "Toronto"})}
	extractor := NewGPTExtractor(client, testSettings, zaptest.NewLogger(t))

	hist := history()
	_, err := extractor.Extract(context.Background(), hist)
	require.NoError(t, err)

	require.Len(t, client.Requests, 1)
	req := client.Requests[0]
	assert.Equal(t, "gpt-4o-mini", req.Model)
	assert.Equal(t, 2048, req.MaxTokens)
	require.Len(t, req.Messages, len(hist)+1)
	assert.Equal(t, openai.ChatMessageRoleSystem, req.Messages[0].Role)
	assert.Equal(t, hist, req.Messages[1:])
	assert.Len(t, hist, 3, "history must not be mutated")

	require.NotNil(t, req.ResponseFormat)
	assert.Equal(t, openai.ChatCompletionResponseFormatTypeJSONSchema, req.ResponseFormat.Type)
	require.NotNil(t, req.ResponseFormat.JSONSchema)
	assert.True(t, req.ResponseFormat.JSONSchema.Strict)
}

func TestGPTExtractor_TorontoScenario(t *testing.T) {
	client := &llmtest.Client{Complete: respondWith(t, Record{CityOrRegion: "Toronto"})}
	extractor := NewGPTExtractor(client, testSettings, zaptest.NewLogger(t))

	rec, err := extractor.Extract(context.Background(), history()[:1])
	require.NoError(t, err)
	assert.Equal(t, "Toronto", rec.CityOrRegion)
	assert.False(t, rec.CompletedInfo)
}

func TestGPTExtractor_RecomputesCompletedInfo(t *testing.T) {
	claimed := Record{CityOrRegion: "Toronto", CompletedInfo: true}
	client := &llmtest.Client{Complete: respondWith(t, claimed)}
	extractor := NewGPTExtractor(client, testSettings, zaptest.NewLogger(t))

	rec, err := extractor.Extract(context.Background(), history())
	require.NoError(t, err)
	assert.False(t, rec.CompletedInfo)

	full := fullRecord()
	full.CompletedInfo = false
	client.Complete = respondWith(t, full)
	rec, err = extractor.Extract(context.Background(), history())
	require.NoError(t, err)
	assert.True(t, rec.CompletedInfo)
}

func TestGPTExtractor_AcceptsFencedJSON(t *testing.T) {
	data, err := json.Marshal(fullRecord())
	require.NoError(t, err)
	client := &llmtest.Client{Complete: func(openai.ChatCompletionRequest) (string, error) {
		return "```json\n" + string(data) + "\n```", nil
	}}
	extractor := NewGPTExtractor(client, testSettings, zaptest.NewLogger(t))

	rec, err := extractor.Extract(context.Background(), history())
	require.NoError(t, err)
	assert.True(t, rec.CompletedInfo)
}

func TestGPTExtractor_Failures(t *testing.T) {
	upstream := errors.New("upstream 500")
	tests := []struct {
		name     string
		complete func(openai.ChatCompletionRequest) (string, error)
		wantErr  error
	}{
		{"call fails", func(openai.ChatCompletionRequest) (string, error) { return "", upstream }, upstream},
		{"not json", func(openai.ChatCompletionRequest) (string, error) { return "Sure! Here you go.", nil }, nil},
		{"unknown field", func(openai.ChatCompletionRequest) (string, error) { return `{"favourite_colour":"blue"}`, nil }, nil},
		{"wrong type", func(openai.ChatCompletionRequest) (string, error) { return `{"completed_info":"yes"}`, nil }, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &llmtest.Client{Complete: tt.complete}
			extractor := NewGPTExtractor(client, testSettings, zaptest.NewLogger(t))

			_, err := extractor.Extract(context.Background(), history())
			require.ErrorIs(t, err, ErrExtraction)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			assert.Equal(t, 1, client.CompleteCalls(), "extraction must not retry")
		})
	}
}

func TestGPTExtractor_EmptyChoices(t *testing.T) {
	client := &llmtest.Client{}
	extractor := NewGPTExtractor(client, testSettings, zaptest.NewLogger(t))

	_, err := extractor.Extract(context.Background(), history())
	assert.ErrorIs(t, err, ErrExtraction)
}

func TestSchema_ListsEveryField(t *testing.T) {
	schema := Schema()
	assert.Len(t, schema.Properties, 30)
	assert.Len(t, schema.Required, 30)
	assert.Equal(t, false, schema.AdditionalProperties)

	data, err := json.Marshal(schema)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"eligibility_prior_LTT_rebate"`)
}
