package models

// ContentKind tags a single content part of a thread item.
type ContentKind string

const (
	InputTextContent  ContentKind = "input_text"
	OutputTextContent ContentKind = "output_text"
	ImageContent      ContentKind = "image"
	FileContent       ContentKind = "file"
	AttachmentContent ContentKind = "attachment"
)

// ContentPart is one piece of a message body.
type ContentPart struct {
	Kind ContentKind `json:"type"`
	Text string      `json:"text,omitempty"`
	// Ref identifies an uploaded object for non-text parts.
	Ref string `json:"ref,omitempty"`
}

// IsText reports whether the part carries plain text.
func (p ContentPart) IsText() bool {
	return p.Kind == InputTextContent || p.Kind == OutputTextContent
}

// TextPart builds a text part of the given kind.
func TextPart(kind ContentKind, text string) ContentPart {
	return ContentPart{Kind: kind, Text: text}
}
