package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jitinkakkar/dorthy-ai/internal/models"
)

var errBadRequest = errors.New("bad request")

// Request types accepted on /chatkit.
const (
	reqCreateThread   = "threads.create"
	reqAddUserMessage = "threads.add_user_message"
	reqGetThread      = "threads.get_by_id"
	reqListItems      = "items.list"
)

// SSE event names.
const (
	eventThreadCreated = "thread.created"
	eventItemAdded     = "thread.item.added"
	eventItemUpdated   = "thread.item.updated"
	eventItemDone      = "thread.item.done"
	eventError         = "error"
)

type request struct {
	Type   string          `json:"type"`
	Params json.RawMessage `json:"params"`
}

type inputContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type userInput struct {
	Content     []inputContent `json:"content"`
	Attachments []string       `json:"attachments"`
}

type createThreadParams struct {
	Input userInput `json:"input"`
}

type addUserMessageParams struct {
	ThreadID string    `json:"thread_id"`
	Input    userInput `json:"input"`
}

type getThreadParams struct {
	ThreadID string `json:"thread_id"`
}

type listItemsParams struct {
	ThreadID string `json:"thread_id"`
	After    string `json:"after"`
	Limit    int    `json:"limit"`
	Order    string `json:"order"`
}

type itemUpdate struct {
	ItemID string     `json:"item_id"`
	Delta  deltaEvent `json:"update"`
}

type deltaEvent struct {
	Type  string `json:"type"`
	Delta string `json:"delta"`
}

type errorPayload struct {
	Error string `json:"error"`
	Code  int    `json:"code,omitempty"`
	// ThreadID is set when a thread was created before the turn failed.
	ThreadID string `json:"thread_id,omitempty"`
}

func decodeParams(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: missing params", errBadRequest)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: invalid params: %v", errBadRequest, err)
	}
	return nil
}

// toThreadItem builds the unsaved user item. Attachments become parts so the
// chat server can reject them.
func (in userInput) toThreadItem() (*models.ThreadItem, error) {
	item := &models.ThreadItem{Role: models.RoleUser}
	for _, c := range in.Content {
		kind := models.ContentKind(c.Type)
		if kind == "" {
			kind = models.InputTextContent
		}
		item.Content = append(item.Content, models.ContentPart{Kind: kind, Text: c.Text})
	}
	for _, ref := range in.Attachments {
		item.Content = append(item.Content, models.ContentPart{Kind: models.AttachmentContent, Ref: ref})
	}
	if len(item.Content) == 0 {
		return nil, fmt.Errorf("%w: input has no content", errBadRequest)
	}
	return item, nil
}
