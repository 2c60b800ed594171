package completeness

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
	"go.uber.org/zap"

	"github.com/jitinkakkar/dorthy-ai/internal/llm"
)

// ErrExtraction is returned when the extraction call fails or its output
// cannot be turned into a Record.
var ErrExtraction = errors.New("completeness extraction failed")

// Extractor derives a Record from the entire conversation so far.
type Extractor interface {
	Extract(ctx context.Context, history []openai.ChatCompletionMessage) (Record, error)
}

// GPTExtractor asks a chat model for a strict JSON-schema response.
type GPTExtractor struct {
	client   llm.Client
	settings llm.Settings
	logger   *zap.Logger
}

func NewGPTExtractor(client llm.Client, settings llm.Settings, logger *zap.Logger) *GPTExtractor {
	return &GPTExtractor{
		client:   client,
		settings: settings,
		logger:   logger.With(zap.String("component", "completeness")),
	}
}

// Extract never mutates history and produces no user-visible output.
func (e *GPTExtractor) Extract(ctx context.Context, history []openai.ChatCompletionMessage) (Record, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: Instructions,
	})
	messages = append(messages, history...)

	req := openai.ChatCompletionRequest{
		Messages: messages,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "completeness_check",
				Schema: Schema(),
				Strict: true,
			},
		},
	}
	e.settings.Apply(&req)

	resp, err := e.client.CreateChatCompletion(ctx, req)
	if err != nil {
		e.logger.Error("Failed to get extraction response", zap.Error(err))
		return Record{}, fmt.Errorf("%w: %w", ErrExtraction, err)
	}
	if len(resp.Choices) == 0 {
		return Record{}, fmt.Errorf("%w: empty response", ErrExtraction)
	}

	response := strings.TrimSpace(resp.Choices[0].Message.Content)
	rec, err := parseRecord(response)
	if err != nil {
		e.logger.Error("Failed to parse extraction response",
			zap.Error(err),
			zap.String("response", response))
		return Record{}, fmt.Errorf("%w: %w", ErrExtraction, err)
	}

	claimed := rec.CompletedInfo
	if rec.Evaluate() != claimed {
		e.logger.Debug("Model completeness flag disagreed with required fields",
			zap.Bool("claimed", claimed),
			zap.Strings("missing", rec.Missing()))
	}

	e.logger.Info("Completeness check result",
		zap.Bool("completed_info", rec.CompletedInfo),
		zap.Int("missing", len(rec.Missing())),
		zap.Int("history_len", len(history)))
	return rec, nil
}

func parseRecord(response string) (Record, error) {
	response = strings.TrimPrefix(response, "```json")
	response = strings.TrimPrefix(response, "```")
	response = strings.TrimSuffix(response, "```")

	var rec Record
	dec := json.NewDecoder(bytes.NewReader([]byte(strings.TrimSpace(response))))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&rec); err != nil {
		return Record{}, fmt.Errorf("decoding record: %w", err)
	}
	return rec, nil
}

// Schema is the strict JSON schema of the Record wire shape.
func Schema() *jsonschema.Definition {
	properties := make(map[string]jsonschema.Definition, len(Fields)+1)
	required := make([]string, 0, len(Fields)+1)
	for _, f := range Fields {
		properties[f.Name] = jsonschema.Definition{Type: jsonschema.String}
		required = append(required, f.Name)
	}
	properties["completed_info"] = jsonschema.Definition{Type: jsonschema.Boolean}
	required = append(required, "completed_info")

	return &jsonschema.Definition{
		Type:                 jsonschema.Object,
		Properties:           properties,
		Required:             required,
		AdditionalProperties: false,
	}
}
