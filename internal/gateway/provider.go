// Package gateway talks to the hosted model gateway that routes chat requests
// to the underlying language models, and normalizes its streaming output into
// a small set of events.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotConfigured is returned when a provider is built without a credential.
var ErrNotConfigured = errors.New("gateway: API key is not configured")

// Provider streams one chat completion. fn is called for every event in
// arrival order; a non-nil error from fn aborts the stream and is returned.
type Provider interface {
	Stream(ctx context.Context, req Request, fn func(Event) error) error
}

// Request is a provider-neutral chat completion request.
type Request struct {
	Model    string
	System   string
	Messages []Message
}

// Message is an OpenAI-compatible chat message. When Parts is set it is sent
// as multi-part content, otherwise Content is sent as a plain string.
type Message struct {
	Role    string
	Content string
	Parts   []ContentPart
}

func (m Message) MarshalJSON() ([]byte, error) {
	if len(m.Parts) > 0 {
		return json.Marshal(struct {
			Role    string        `json:"role"`
			Content []ContentPart `json:"content"`
		}{m.Role, m.Parts})
	}
	return json.Marshal(struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}{m.Role, m.Content})
}

type ContentPart struct {
	Type     string    `json:"type"` // "text" or "image_url"
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

type ImageURL struct {
	URL string `json:"url"`
}

type EventType int

const (
	EventText EventType = iota
	EventReasoning
	EventSource
	EventFinish
)

func (t EventType) String() string {
	switch t {
	case EventText:
		return "text"
	case EventReasoning:
		return "reasoning"
	case EventSource:
		return "source"
	case EventFinish:
		return "finish"
	default:
		return fmt.Sprintf("event(%d)", int(t))
	}
}

// Event is one normalized piece of a streamed completion.
type Event struct {
	Type         EventType
	Delta        string
	Source       Source
	FinishReason string
	Usage        Usage
}

// Source is a citation attached to the answer, typically by search models.
type Source struct {
	URL   string
	Title string
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// APIError is a non-2xx answer from the gateway.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway: API error (status %d): %s", e.StatusCode, e.Body)
}
