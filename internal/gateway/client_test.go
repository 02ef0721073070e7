package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, c *Client, req Request) ([]Event, error) {
	t.Helper()
	var events []Event
	err := c.Stream(context.Background(), req, func(e Event) error {
		events = append(events, e)
		return nil
	})
	return events, err
}

func sseServer(t *testing.T, check func(r *http.Request), frames ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			check(r)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, f := range frames {
			fmt.Fprintf(w, "data: %s\n\n", f)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewClient_RequiresAPIKey(t *testing.T) {
	_, err := NewClient("")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestClientStream_SendsRequest(t *testing.T) {
	var got map[string]any
	srv := sseServer(t, func(r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
	}, "[DONE]")

	c, err := NewClient("secret", WithBaseURL(srv.URL+"/"))
	require.NoError(t, err)

	_, err = collect(t, c, Request{
		Model:    "openai/gpt-4o",
		System:   "be nice",
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "openai/gpt-4o", got["model"])
	assert.Equal(t, true, got["stream"])
	msgs := got["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "be nice", msgs[0].(map[string]any)["content"])
	assert.Equal(t, "hi", msgs[1].(map[string]any)["content"])
}

func TestClientStream_ParsesEvents(t *testing.T) {
	srv := sseServer(t, nil,
		`{"choices":[{"delta":{"reasoning":"thinking"}}]}`,
		`{"choices":[{"delta":{"content":"Hel"}}],"citations":["https://a.example"]}`,
		`{"choices":[{"delta":{"content":"lo","annotations":[{"type":"url_citation","url_citation":{"url":"https://b.example","title":"B"}}]}}]}`,
		`{"choices":[{"delta":{"reasoning_content":"more"},"finish_reason":"stop"}]}`,
		`{"choices":[],"usage":{"prompt_tokens":7,"completion_tokens":3,"total_tokens":10}}`,
		`[DONE]`,
	)

	c, err := NewClient("k", WithBaseURL(srv.URL))
	require.NoError(t, err)

	events, err := collect(t, c, Request{Model: "m"})
	require.NoError(t, err)

	var types []EventType
	for _, e := range events {
		types = append(types, e.Type)
	}
	assert.Equal(t, []EventType{
		EventReasoning, EventSource, EventText, EventText, EventSource, EventReasoning, EventFinish,
	}, types)

	assert.Equal(t, "thinking", events[0].Delta)
	assert.Equal(t, "https://a.example", events[1].Source.URL)
	assert.Equal(t, Source{URL: "https://b.example", Title: "B"}, events[4].Source)
	assert.Equal(t, "more", events[5].Delta)

	finish := events[len(events)-1]
	assert.Equal(t, "stop", finish.FinishReason)
	assert.Equal(t, Usage{PromptTokens: 7, CompletionTokens: 3, TotalTokens: 10}, finish.Usage)
}

func TestClientStream_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"bad key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c, err := NewClient("k", WithBaseURL(srv.URL))
	require.NoError(t, err)

	_, err = collect(t, c, Request{Model: "m"})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "bad key")
}

func TestClientStream_ErrorChunk(t *testing.T) {
	srv := sseServer(t, nil, `{"error":{"message":"model overloaded"}}`)

	c, err := NewClient("k", WithBaseURL(srv.URL))
	require.NoError(t, err)

	_, err = collect(t, c, Request{Model: "m"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model overloaded")
}

func TestClientStream_CallbackAborts(t *testing.T) {
	srv := sseServer(t, nil,
		`{"choices":[{"delta":{"content":"a"}}]}`,
		`{"choices":[{"delta":{"content":"b"}}]}`,
	)

	c, err := NewClient("k", WithBaseURL(srv.URL))
	require.NoError(t, err)

	stop := errors.New("stop")
	calls := 0
	err = c.Stream(context.Background(), Request{Model: "m"}, func(e Event) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestRelay_EOFWithoutDone(t *testing.T) {
	body := strings.NewReader("data: {\"choices\":[{\"delta\":{\"content\":\"x\"}}]}\n\n: keep-alive\n\n")

	var events []Event
	err := relay(body, func(e Event) error {
		events = append(events, e)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, EventText, events[0].Type)
	assert.Equal(t, EventFinish, events[1].Type)
}

func TestMessageMarshalJSON(t *testing.T) {
	plain, err := json.Marshal(Message{Role: "user", Content: "hi"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"user","content":"hi"}`, string(plain))

	multi, err := json.Marshal(Message{Role: "user", Parts: []ContentPart{
		{Type: "text", Text: "look"},
		{Type: "image_url", ImageURL: &ImageURL{URL: "data:image/png;base64,AA"}},
	}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"user","content":[{"type":"text","text":"look"},{"type":"image_url","image_url":{"url":"data:image/png;base64,AA"}}]}`, string(multi))
}
