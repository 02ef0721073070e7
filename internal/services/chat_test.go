package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatgate-backend/internal/gateway"
	"chatgate-backend/internal/models"
	"chatgate-backend/internal/uistream"
)

type stubProvider struct {
	events []gateway.Event
	err    error
	block  bool

	lastReq gateway.Request
}

func (p *stubProvider) Stream(ctx context.Context, req gateway.Request, fn func(gateway.Event) error) error {
	p.lastReq = req
	if p.block {
		<-ctx.Done()
		return ctx.Err()
	}
	for _, e := range p.events {
		if err := fn(e); err != nil {
			return err
		}
	}
	return p.err
}

type memorySink struct {
	chunks   []uistream.Chunk
	closed   bool
	failFrom int
}

func (m *memorySink) WriteChunk(c uistream.Chunk) error {
	if m.failFrom > 0 && len(m.chunks) >= m.failFrom {
		return errors.New("broken pipe")
	}
	m.chunks = append(m.chunks, c)
	return nil
}

func (m *memorySink) Close() error {
	m.closed = true
	return nil
}

func (m *memorySink) types() []string {
	var out []string
	for _, c := range m.chunks {
		out = append(out, c.Type)
	}
	return out
}

type memoryRecorder struct {
	mu      sync.Mutex
	entries []*models.ChatLog
}

func (r *memoryRecorder) Record(entry *models.ChatLog) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
}

func userTurn(text string) models.ChatTurn {
	return models.ChatTurn{
		Messages:  []models.UIMessage{{ID: "u1", Role: "user", Parts: []models.UIPart{{Type: "text", Text: text}}}},
		RequestID: "req-1",
	}
}

func TestSelectModel(t *testing.T) {
	tests := []struct {
		name      string
		model     string
		webSearch bool
		expected  string
	}{
		{"web search wins over model", "anthropic/claude-sonnet-4", true, SearchModel},
		{"web search without model", "", true, SearchModel},
		{"requested model", "deepseek/deepseek-r1", false, "deepseek/deepseek-r1"},
		{"default when omitted", "", false, DefaultModel},
		{"default when blank", "   ", false, DefaultModel},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, SelectModel(tc.model, tc.webSearch))
		})
	}
}

func TestParseChatRequest(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr error
	}{
		{"missing messages", `{}`, ErrMissingMessages},
		{"null messages", `{"messages":null}`, ErrMissingMessages},
		{"string messages", `{"messages":"hi"}`, ErrMissingMessages},
		{"object messages", `{"messages":{"role":"user"}}`, ErrMissingMessages},
		{"empty list", `{"messages":[]}`, ErrMissingMessages},
		{"not an object", `[1,2,3]`, ErrMissingMessages},
		{"invalid json", `{"messages":[`, ErrMissingMessages},
		{"empty body", ``, ErrMissingMessages},
		{"malformed entries", `{"messages":[1,2]}`, ErrInvalidMessages},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseChatRequest(strings.NewReader(tc.body))
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestParseChatRequest_MistypedFields(t *testing.T) {
	const messages = `[{"role":"user","content":"hi"}]`

	tests := []struct {
		name   string
		body   string
		fields []string
	}{
		{"web search as string", `{"messages":` + messages + `,"webSearch":"true"}`, []string{"webSearch"}},
		{"model as number", `{"messages":` + messages + `,"model":5}`, []string{"model"}},
		{"both mistyped", `{"messages":` + messages + `,"model":[],"webSearch":1}`, []string{"model", "webSearch"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseChatRequest(strings.NewReader(tc.body))

			var validationErr *ValidationError
			require.True(t, errors.As(err, &validationErr), "expected ValidationError, got %v", err)
			assert.Equal(t, "Invalid request payload", validationErr.Message)
			assert.Len(t, validationErr.Fields, len(tc.fields))
			for _, f := range tc.fields {
				assert.Contains(t, validationErr.Fields, f)
			}
		})
	}
}

func TestParseChatRequest_NullOptionalFields(t *testing.T) {
	turn, err := ParseChatRequest(strings.NewReader(`{"messages":[{"role":"user","content":"hi"}],"model":null,"webSearch":null}`))
	require.NoError(t, err)
	assert.Equal(t, "", turn.Model)
	assert.False(t, turn.WebSearch)
}

func TestParseChatRequest_Valid(t *testing.T) {
	body := `{"messages":[{"id":"1","role":"user","parts":[{"type":"text","text":"hi"}]}],"model":"openai/gpt-4o-mini","webSearch":true}`

	turn, err := ParseChatRequest(strings.NewReader(body))
	require.NoError(t, err)
	require.Len(t, turn.Messages, 1)
	assert.Equal(t, "hi", turn.Messages[0].Text())
	assert.Equal(t, "openai/gpt-4o-mini", turn.Model)
	assert.True(t, turn.WebSearch)
}

func TestChatService_NotConfigured(t *testing.T) {
	svc := NewChatService(nil, "prompt", time.Second, nil)
	assert.False(t, svc.Configured())

	err := svc.Stream(context.Background(), userTurn("hi"), &memorySink{})
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestChatService_Stream(t *testing.T) {
	provider := &stubProvider{events: []gateway.Event{
		{Type: gateway.EventReasoning, Delta: "hmm"},
		{Type: gateway.EventText, Delta: "Answer"},
		{Type: gateway.EventSource, Source: gateway.Source{URL: "https://docs.example", Title: "Docs"}},
		{Type: gateway.EventFinish, FinishReason: "content_filter", Usage: gateway.Usage{PromptTokens: 5, CompletionTokens: 2}},
	}}
	recorder := &memoryRecorder{}
	svc := NewChatService(provider, "be helpful", time.Second, recorder)

	turn := userTurn("question")
	turn.Model = "openai/gpt-4o-mini"
	turn.WebSearch = true

	sink := &memorySink{}
	require.NoError(t, svc.Stream(context.Background(), turn, sink))

	assert.Equal(t, SearchModel, provider.lastReq.Model)
	assert.Equal(t, "be helpful", provider.lastReq.System)
	require.Len(t, provider.lastReq.Messages, 1)
	assert.Equal(t, "question", provider.lastReq.Messages[0].Content)

	assert.Equal(t, []string{
		"start", "start-step",
		"reasoning-start", "reasoning-delta", "reasoning-end",
		"text-start", "text-delta",
		"source-url",
		"text-end", "finish-step", "finish",
	}, sink.types())
	assert.True(t, sink.closed)

	finish := sink.chunks[len(sink.chunks)-1]
	require.NotNil(t, finish.MessageMetadata)
	assert.Equal(t, "content-filter", finish.MessageMetadata.FinishReason)
	assert.Equal(t, SearchModel, finish.MessageMetadata.Model)

	require.Len(t, recorder.entries, 1)
	entry := recorder.entries[0]
	assert.Equal(t, "req-1", entry.RequestID)
	assert.Equal(t, SearchModel, entry.Model)
	assert.True(t, entry.WebSearch)
	assert.Equal(t, 1, entry.MessageCount)
	assert.Equal(t, 5, entry.PromptTokens)
	assert.Equal(t, 2, entry.CompletionTokens)
	assert.Nil(t, entry.Error)
}

func TestChatService_DefaultModel(t *testing.T) {
	provider := &stubProvider{events: []gateway.Event{{Type: gateway.EventFinish, FinishReason: "stop"}}}
	svc := NewChatService(provider, "", time.Second, nil)

	require.NoError(t, svc.Stream(context.Background(), userTurn("hi"), &memorySink{}))
	assert.Equal(t, DefaultModel, provider.lastReq.Model)
}

func TestChatService_ProviderErrorBecomesErrorChunk(t *testing.T) {
	provider := &stubProvider{
		events: []gateway.Event{{Type: gateway.EventText, Delta: "partial"}},
		err:    &gateway.APIError{StatusCode: 503, Body: "upstream down"},
	}
	recorder := &memoryRecorder{}
	svc := NewChatService(provider, "", time.Second, recorder)

	sink := &memorySink{}
	err := svc.Stream(context.Background(), userTurn("hi"), sink)
	require.Error(t, err)

	types := sink.types()
	assert.Equal(t, "error", types[len(types)-1])
	assert.Equal(t, "An error occurred.", sink.chunks[len(sink.chunks)-1].ErrorText)
	assert.NotContains(t, types, "finish")
	assert.True(t, sink.closed)

	require.Len(t, recorder.entries, 1)
	require.NotNil(t, recorder.entries[0].Error)
	assert.Contains(t, *recorder.entries[0].Error, "upstream down")
}

func TestChatService_Timeout(t *testing.T) {
	provider := &stubProvider{block: true}
	recorder := &memoryRecorder{}
	svc := NewChatService(provider, "", 20*time.Millisecond, recorder)

	sink := &memorySink{}
	err := svc.Stream(context.Background(), userTurn("hi"), sink)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, "error", sink.types()[len(sink.chunks)-1])

	require.Len(t, recorder.entries, 1)
	assert.Equal(t, "timeout", recorder.entries[0].FinishReason)
}

func TestChatService_ClientGone(t *testing.T) {
	provider := &stubProvider{events: []gateway.Event{
		{Type: gateway.EventText, Delta: "a"},
		{Type: gateway.EventText, Delta: "b"},
	}}
	svc := NewChatService(provider, "", time.Second, nil)

	sink := &memorySink{failFrom: 3}
	err := svc.Stream(context.Background(), userTurn("hi"), sink)
	require.Error(t, err)
	assert.False(t, sink.closed)
	assert.NotContains(t, sink.types(), "error")
}
