// Package convert projects stored thread items onto the chat-completion input
// the agents consume.
package convert

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/jitinkakkar/dorthy-ai/internal/models"
)

// ErrUnsupportedContent is returned for content the pipeline cannot represent,
// such as attachments.
var ErrUnsupportedContent = errors.New("unsupported content")

// Validate rejects items carrying non-text parts or an unknown role.
func Validate(item *models.ThreadItem) error {
	if item.Role != models.RoleUser && item.Role != models.RoleAssistant {
		return fmt.Errorf("%w: role %q", ErrUnsupportedContent, item.Role)
	}
	for _, part := range item.Content {
		if !part.IsText() {
			return fmt.Errorf("%w: %s parts are not supported", ErrUnsupportedContent, part.Kind)
		}
	}
	return nil
}

// ToAgentInput maps items to chat messages, keeping order and role exactly.
func ToAgentInput(items []models.ThreadItem) ([]openai.ChatCompletionMessage, error) {
	input := make([]openai.ChatCompletionMessage, 0, len(items))
	for i := range items {
		item := &items[i]
		if err := Validate(item); err != nil {
			return nil, fmt.Errorf("item %s: %w", item.ID, err)
		}
		input = append(input, openai.ChatCompletionMessage{
			Role:    roleFor(item.Role),
			Content: item.Text(),
		})
	}
	return input, nil
}

// FromAgentInput is the inverse of ToAgentInput. Each message becomes one
// single-part item.
func FromAgentInput(messages []openai.ChatCompletionMessage) ([]models.ThreadItem, error) {
	items := make([]models.ThreadItem, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case openai.ChatMessageRoleUser:
			items = append(items, *models.NewUserMessage(msg.Content))
		case openai.ChatMessageRoleAssistant:
			items = append(items, *models.NewAssistantMessage(msg.Content, ""))
		default:
			return nil, fmt.Errorf("%w: role %q", ErrUnsupportedContent, msg.Role)
		}
	}
	return items, nil
}

// LatestUserText returns the text of the most recent user message, or "".
func LatestUserText(messages []openai.ChatCompletionMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == openai.ChatMessageRoleUser {
			return strings.TrimSpace(messages[i].Content)
		}
	}
	return ""
}

func roleFor(role models.Role) string {
	if role == models.RoleAssistant {
		return openai.ChatMessageRoleAssistant
	}
	return openai.ChatMessageRoleUser
}
