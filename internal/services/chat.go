package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"chatgate-backend/internal/gateway"
	"chatgate-backend/internal/models"
	"chatgate-backend/internal/uistream"
)

const (
	DefaultModel = "openai/gpt-4o"
	SearchModel  = "perplexity/sonar"

	// Sent to the client instead of the real downstream error.
	streamErrorText = "An error occurred."
)

var (
	ErrMissingMessages = &ValidationError{Message: "Missing messages payload"}
	ErrInvalidMessages = &ValidationError{Message: "Invalid messages payload"}
	ErrMissingAPIKey   = &ConfigError{Message: "Missing AI Gateway API key"}
)

type chatLogRecorder interface {
	Record(entry *models.ChatLog)
}

type ChatService struct {
	provider     gateway.Provider
	systemPrompt string
	maxDuration  time.Duration
	recorder     chatLogRecorder
}

// NewChatService builds the chat service. A nil provider means the gateway
// credential is missing; every chat request then fails with ErrMissingAPIKey.
func NewChatService(provider gateway.Provider, systemPrompt string, maxDuration time.Duration, recorder chatLogRecorder) *ChatService {
	return &ChatService{
		provider:     provider,
		systemPrompt: systemPrompt,
		maxDuration:  maxDuration,
		recorder:     recorder,
	}
}

// Configured reports whether a gateway credential is available.
func (s *ChatService) Configured() bool {
	return s.provider != nil
}

// SelectModel picks the model for a turn: web search forces the search
// model, then the requested model, then the default.
func SelectModel(model string, webSearch bool) string {
	if webSearch {
		return SearchModel
	}
	if model = strings.TrimSpace(model); model != "" {
		return model
	}
	return DefaultModel
}

// ParseChatRequest decodes and validates a chat request body. A body that is
// not a JSON object counts as a missing messages payload; mistyped optional
// fields are reported per field.
func ParseChatRequest(body io.Reader) (models.ChatTurn, error) {
	var req models.ChatRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		return models.ChatTurn{}, ErrMissingMessages
	}

	raw := bytes.TrimSpace(req.Messages)
	if len(raw) == 0 || raw[0] != '[' {
		return models.ChatTurn{}, ErrMissingMessages
	}

	var messages []models.UIMessage
	if err := json.Unmarshal(raw, &messages); err != nil {
		return models.ChatTurn{}, ErrInvalidMessages
	}
	if len(messages) == 0 {
		return models.ChatTurn{}, ErrMissingMessages
	}

	turn := models.ChatTurn{Messages: messages}
	fields := make(map[string]string)
	if !decodeOptional(req.Model, &turn.Model) {
		fields["model"] = "must be a string"
	}
	if !decodeOptional(req.WebSearch, &turn.WebSearch) {
		fields["webSearch"] = "must be a boolean"
	}
	if len(fields) > 0 {
		return models.ChatTurn{}, &ValidationError{Message: "Invalid request payload", Fields: fields}
	}

	return turn, nil
}

// decodeOptional unmarshals raw into v. Absent and null values leave v as is.
func decodeOptional(raw json.RawMessage, v interface{}) bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return true
	}
	return json.Unmarshal(raw, v) == nil
}

// Stream forwards turn to the gateway and relays the answer to sink as a UI
// message stream. Downstream failures are reported inside the stream; the
// returned error is for logging only.
func (s *ChatService) Stream(ctx context.Context, turn models.ChatTurn, sink uistream.Sink) error {
	if s.provider == nil {
		return ErrMissingAPIKey
	}

	model := SelectModel(turn.Model, turn.WebSearch)
	entry := &models.ChatLog{
		ID:           uuid.New(),
		RequestID:    turn.RequestID,
		Model:        model,
		WebSearch:    turn.WebSearch,
		MessageCount: len(turn.Messages),
		StartedAt:    time.Now(),
	}
	defer s.record(entry)

	if s.maxDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.maxDuration)
		defer cancel()
	}

	w := uistream.NewWriter(sink)
	var sinkErr error
	write := func(err error) error {
		if err != nil {
			sinkErr = err
		}
		return err
	}

	if err := write(w.Start()); err != nil {
		return err
	}

	req := gateway.Request{
		Model:    model,
		System:   s.systemPrompt,
		Messages: gateway.ConvertMessages(turn.Messages),
	}

	err := s.provider.Stream(ctx, req, func(e gateway.Event) error {
		switch e.Type {
		case gateway.EventText:
			return write(w.Text(e.Delta))
		case gateway.EventReasoning:
			return write(w.Reasoning(e.Delta))
		case gateway.EventSource:
			return write(w.Source(e.Source.URL, e.Source.Title))
		case gateway.EventFinish:
			entry.FinishReason = normalizeFinishReason(e.FinishReason)
			entry.PromptTokens = e.Usage.PromptTokens
			entry.CompletionTokens = e.Usage.CompletionTokens
			return write(w.Finish(&uistream.Metadata{
				Model:        model,
				FinishReason: entry.FinishReason,
				InputTokens:  e.Usage.PromptTokens,
				OutputTokens: e.Usage.CompletionTokens,
			}))
		}
		return nil
	})

	if sinkErr != nil {
		// Client went away; nothing more can be delivered
		msg := sinkErr.Error()
		entry.Error = &msg
		return sinkErr
	}

	if err != nil {
		msg := err.Error()
		entry.Error = &msg
		if errors.Is(err, context.DeadlineExceeded) {
			entry.FinishReason = "timeout"
		}
		log.Printf("Chat stream failed (model=%s, request=%s): %v", model, turn.RequestID, err)
		if werr := w.Error(streamErrorText); werr != nil {
			return werr
		}
	} else if ferr := w.Finish(nil); ferr != nil {
		return ferr
	}

	if cerr := w.Close(); cerr != nil {
		return cerr
	}
	return err
}

func (s *ChatService) record(entry *models.ChatLog) {
	entry.DurationMS = time.Since(entry.StartedAt).Milliseconds()
	if s.recorder != nil {
		s.recorder.Record(entry)
	}
}

// normalizeFinishReason maps OpenAI-style reasons ("content_filter") to the
// front-end vocabulary ("content-filter").
func normalizeFinishReason(reason string) string {
	if reason == "" {
		return "unknown"
	}
	return strings.ReplaceAll(reason, "_", "-")
}
