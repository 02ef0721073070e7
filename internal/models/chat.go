package models

import (
	"encoding/json"
	"strings"
)

// Message roles accepted from the front-end.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// UI message part types.
const (
	PartText      = "text"
	PartReasoning = "reasoning"
	PartFile      = "file"
	PartSourceURL = "source-url"
	PartStepStart = "step-start"
)

// UIPart is one piece of a UI message as rendered by the chat front-end.
type UIPart struct {
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	URL       string `json:"url,omitempty"`
	MediaType string `json:"mediaType,omitempty"`
	Filename  string `json:"filename,omitempty"`
	SourceID  string `json:"sourceId,omitempty"`
	Title     string `json:"title,omitempty"`
}

// UIMessage represents a single message in a conversation.
type UIMessage struct {
	ID      string   `json:"id"`
	Role    string   `json:"role"` // "system", "user" or "assistant"
	Parts   []UIPart `json:"parts"`
	Content string   `json:"content,omitempty"` // legacy clients
}

// Text joins the text parts of the message, falling back to Content.
func (m UIMessage) Text() string {
	if len(m.Parts) == 0 {
		return m.Content
	}
	var b strings.Builder
	for _, p := range m.Parts {
		if p.Type == PartText {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// ChatRequest is the payload sent to the chat endpoint.
//
// Fields stay raw so the handler can tell an absent or mistyped field from a
// body that is not an object.
type ChatRequest struct {
	Messages  json.RawMessage `json:"messages"`
	Model     json.RawMessage `json:"model,omitempty"`
	WebSearch json.RawMessage `json:"webSearch,omitempty"`
}

// ChatTurn is a validated chat request.
type ChatTurn struct {
	Messages  []UIMessage
	Model     string
	WebSearch bool
	RequestID string
}
