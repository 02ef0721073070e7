package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const DefaultBaseURL = "https://ai-gateway.vercel.sh/v1"

// Client is an OpenAI-compatible streaming client for the AI gateway.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

type Option func(c *Client)

// WithBaseURL overrides the gateway base URL, e.g. for a self-hosted proxy.
func WithBaseURL(url string) Option {
	return func(c *Client) {
		if url != "" {
			c.baseURL = strings.TrimRight(url, "/")
		}
	}
}

// WithHTTPClient sets the HTTP client used for gateway calls. Streams are
// bounded by the request context, so the client should not carry a Timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func NewClient(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, ErrNotConfigured
	}

	c := &Client{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type completionRequest struct {
	Model         string         `json:"model"`
	Messages      []Message      `json:"messages"`
	Stream        bool           `json:"stream"`
	StreamOptions *streamOptions `json:"stream_options,omitempty"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type annotation struct {
	Type        string `json:"type"`
	URLCitation *struct {
		URL   string `json:"url"`
		Title string `json:"title"`
	} `json:"url_citation"`
}

// completionChunk is one `data:` payload of the streamed completion.
type completionChunk struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Content          string       `json:"content"`
			Reasoning        string       `json:"reasoning"`
			ReasoningContent string       `json:"reasoning_content"`
			Annotations      []annotation `json:"annotations"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Citations []string `json:"citations"`
	Usage     *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Stream sends req to the gateway and relays the streamed completion to fn.
// A single EventFinish is emitted once the stream is complete.
func (c *Client) Stream(ctx context.Context, req Request, fn func(Event) error) error {
	messages := make([]Message, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, Message{Role: "system", Content: req.System})
	}
	messages = append(messages, req.Messages...)

	body, err := json.Marshal(completionRequest{
		Model:         req.Model,
		Messages:      messages,
		Stream:        true,
		StreamOptions: &streamOptions{IncludeUsage: true},
	})
	if err != nil {
		return fmt.Errorf("gateway: failed to marshal request body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("gateway: failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("gateway: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	return relay(resp.Body, fn)
}

func relay(r io.Reader, fn func(Event) error) error {
	finish := Event{Type: EventFinish}
	reader := NewSSEReader(r)

	for {
		_, data, err := reader.ReadEvent()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("gateway: stream read error: %w", err)
		}

		payload := strings.TrimSpace(string(data))
		if payload == "" {
			continue
		}
		if payload == "[DONE]" {
			break
		}

		var chunk completionChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			// Keep-alive frames and vendor extensions are not fatal
			continue
		}
		if chunk.Error != nil && chunk.Error.Message != "" {
			return fmt.Errorf("gateway: stream error: %s", chunk.Error.Message)
		}

		for _, url := range chunk.Citations {
			if err := fn(Event{Type: EventSource, Source: Source{URL: url}}); err != nil {
				return err
			}
		}

		for _, choice := range chunk.Choices {
			delta := choice.Delta
			reasoning := delta.Reasoning
			if reasoning == "" {
				reasoning = delta.ReasoningContent
			}
			if reasoning != "" {
				if err := fn(Event{Type: EventReasoning, Delta: reasoning}); err != nil {
					return err
				}
			}
			if delta.Content != "" {
				if err := fn(Event{Type: EventText, Delta: delta.Content}); err != nil {
					return err
				}
			}
			for _, a := range delta.Annotations {
				if a.Type != "url_citation" || a.URLCitation == nil {
					continue
				}
				src := Source{URL: a.URLCitation.URL, Title: a.URLCitation.Title}
				if err := fn(Event{Type: EventSource, Source: src}); err != nil {
					return err
				}
			}
			if choice.FinishReason != nil && *choice.FinishReason != "" {
				finish.FinishReason = *choice.FinishReason
			}
		}

		if chunk.Usage != nil {
			finish.Usage = Usage{
				PromptTokens:     chunk.Usage.PromptTokens,
				CompletionTokens: chunk.Usage.CompletionTokens,
				TotalTokens:      chunk.Usage.TotalTokens,
			}
		}
	}

	return fn(finish)
}
