// Package uistream writes the UI message stream consumed by the chat
// front-end: a sequence of JSON chunks terminated by a "[DONE]" marker.
package uistream

import (
	"errors"
	"fmt"
	"net/http"
)

// HeaderName marks a response as a UI message stream for the front-end SDK.
const (
	HeaderName    = "x-vercel-ai-ui-message-stream"
	HeaderVersion = "v1"

	DoneMarker = "[DONE]"
)

// Chunk types.
const (
	TypeStart          = "start"
	TypeStartStep      = "start-step"
	TypeTextStart      = "text-start"
	TypeTextDelta      = "text-delta"
	TypeTextEnd        = "text-end"
	TypeReasoningStart = "reasoning-start"
	TypeReasoningDelta = "reasoning-delta"
	TypeReasoningEnd   = "reasoning-end"
	TypeSourceURL      = "source-url"
	TypeFinishStep     = "finish-step"
	TypeFinish         = "finish"
	TypeError          = "error"
)

type Chunk struct {
	Type            string    `json:"type"`
	ID              string    `json:"id,omitempty"`
	Delta           string    `json:"delta,omitempty"`
	MessageID       string    `json:"messageId,omitempty"`
	SourceID        string    `json:"sourceId,omitempty"`
	URL             string    `json:"url,omitempty"`
	Title           string    `json:"title,omitempty"`
	ErrorText       string    `json:"errorText,omitempty"`
	MessageMetadata *Metadata `json:"messageMetadata,omitempty"`
}

// Metadata is attached to the finish chunk.
type Metadata struct {
	Model        string `json:"model,omitempty"`
	FinishReason string `json:"finishReason,omitempty"`
	InputTokens  int    `json:"inputTokens,omitempty"`
	OutputTokens int    `json:"outputTokens,omitempty"`
}

// Sink is a transport for chunks. Close writes the end-of-stream marker.
type Sink interface {
	WriteChunk(c Chunk) error
	Close() error
}

var ErrStreamingUnsupported = errors.New("uistream: response writer does not support flushing")

// SSESink writes chunks as Server-Sent Events.
type SSESink struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSESink sends the stream headers and a 200 status.
func NewSSESink(w http.ResponseWriter) (*SSESink, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	h.Set(HeaderName, HeaderVersion)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &SSESink{w: w, flusher: flusher}, nil
}

func (s *SSESink) WriteChunk(c Chunk) error {
	data, err := marshalChunk(c)
	if err != nil {
		return err
	}
	return s.writeData(data)
}

func (s *SSESink) Close() error {
	return s.writeData([]byte(DoneMarker))
}

func (s *SSESink) writeData(data []byte) error {
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("uistream: write failed: %w", err)
	}
	s.flusher.Flush()
	return nil
}
