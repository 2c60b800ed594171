package models

import (
	"strings"
	"time"
)

// Role is the author of a thread item.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Order selects the direction of a paginated load.
type Order string

const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

// Placeholder and first-turn thread titles.
const (
	DefaultThreadTitle = "New chat"
	JourneyThreadTitle = "Home Buying Journey"
)

// ThreadMetadata identifies a conversation.
type ThreadMetadata struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasPlaceholderTitle reports whether the thread still carries no informative title.
func (t *ThreadMetadata) HasPlaceholderTitle() bool {
	return t.Title == "" || t.Title == DefaultThreadTitle
}

// ThreadItem is one persisted message in a thread. Items are never mutated
// after they are appended.
type ThreadItem struct {
	ID       string        `json:"id"`
	ThreadID string        `json:"thread_id"`
	Seq      int64         `json:"-"`
	Role     Role          `json:"role"`
	Content  []ContentPart `json:"content"`
	// Stage records which workflow stage produced an assistant message.
	Stage     string    `json:"stage,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Text joins the text parts of the item with newlines.
func (i *ThreadItem) Text() string {
	parts := make([]string, 0, len(i.Content))
	for _, p := range i.Content {
		if p.IsText() {
			parts = append(parts, p.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// NewUserMessage builds an unsaved user item holding a single text part.
func NewUserMessage(text string) *ThreadItem {
	return &ThreadItem{
		Role:    RoleUser,
		Content: []ContentPart{TextPart(InputTextContent, text)},
	}
}

// NewAssistantMessage builds an unsaved assistant item tagged with the stage that produced it.
func NewAssistantMessage(text, stage string) *ThreadItem {
	return &ThreadItem{
		Role:    RoleAssistant,
		Content: []ContentPart{TextPart(OutputTextContent, text)},
		Stage:   stage,
	}
}

// Page is one window of thread items.
type Page struct {
	Data    []ThreadItem `json:"data"`
	HasMore bool         `json:"has_more"`
	// After is the cursor to pass to fetch the next page.
	After string `json:"after,omitempty"`
}
