package core

import "github.com/google/uuid"

// Attachment is a file or media reference carried by a message.
type Attachment struct {
	ID          string `json:"id,omitempty"`
	URL         string `json:"url,omitempty"`
	Title       string `json:"title,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Description string `json:"description,omitempty"`
}

// Content is the payload of a Memory: the message text plus the action
// tags, source and attachments that travel with it. Extra holds
// plugin-specific fields that have no first-class slot.
type Content struct {
	Text        string         `json:"text,omitempty"`
	Actions     []string       `json:"actions,omitempty"`
	Source      string         `json:"source,omitempty"`
	URL         string         `json:"url,omitempty"`
	InReplyTo   *uuid.UUID     `json:"in_reply_to,omitempty"`
	Attachments []Attachment   `json:"attachments,omitempty"`
	Extra       map[string]any `json:"extra,omitempty"`
}
