package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GeminiProvider serves chat streams straight from Google Generative AI.
// Text only: image parts are not forwarded.
type GeminiProvider struct {
	client       *genai.Client
	defaultModel string
}

func NewGeminiProvider(ctx context.Context, apiKey, defaultModel string) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, ErrNotConfigured
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiProvider{client: client, defaultModel: defaultModel}, nil
}

func (p *GeminiProvider) Close() {
	p.client.Close()
}

func (p *GeminiProvider) Stream(ctx context.Context, req Request, fn func(Event) error) error {
	system, history, last, err := toGeminiContents(req)
	if err != nil {
		return err
	}

	model := p.client.GenerativeModel(geminiModelName(req.Model, p.defaultModel))
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}

	cs := model.StartChat()
	cs.History = history

	finish := Event{Type: EventFinish}
	iter := cs.SendMessageStream(ctx, last.Parts...)
	for {
		resp, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return fmt.Errorf("Gemini API error: %w", err)
		}

		for _, cand := range resp.Candidates {
			if cand.Content != nil {
				for _, part := range cand.Content.Parts {
					if t, ok := part.(genai.Text); ok && t != "" {
						if err := fn(Event{Type: EventText, Delta: string(t)}); err != nil {
							return err
						}
					}
				}
			}
			if cand.CitationMetadata != nil {
				for _, src := range cand.CitationMetadata.CitationSources {
					if src == nil || src.URI == nil || *src.URI == "" {
						continue
					}
					if err := fn(Event{Type: EventSource, Source: Source{URL: *src.URI}}); err != nil {
						return err
					}
				}
			}
			if reason := geminiFinishReason(cand.FinishReason); reason != "" {
				finish.FinishReason = reason
			}
		}

		if u := resp.UsageMetadata; u != nil {
			finish.Usage = Usage{
				PromptTokens:     int(u.PromptTokenCount),
				CompletionTokens: int(u.CandidatesTokenCount),
				TotalTokens:      int(u.TotalTokenCount),
			}
		}
	}

	return fn(finish)
}

// geminiModelName maps a gateway model id ("google/gemini-2.0-flash") to a
// Gemini model name. Ids of other vendors fall back to the default model.
func geminiModelName(id, fallback string) string {
	vendor, name, ok := strings.Cut(id, "/")
	switch {
	case !ok && strings.HasPrefix(id, "gemini"):
		return id
	case ok && vendor == "google" && name != "":
		return name
	default:
		return fallback
	}
}

// toGeminiContents splits req into the system instruction, the chat history
// and the final user turn that is sent to the model.
func toGeminiContents(req Request) (string, []*genai.Content, *genai.Content, error) {
	systemParts := []string{}
	if req.System != "" {
		systemParts = append(systemParts, req.System)
	}

	var contents []*genai.Content
	for _, m := range req.Messages {
		text := m.Content
		if len(m.Parts) > 0 {
			var b strings.Builder
			for _, p := range m.Parts {
				if p.Type != "text" {
					continue
				}
				if b.Len() > 0 {
					b.WriteString("\n\n")
				}
				b.WriteString(p.Text)
			}
			text = b.String()
		}
		if text == "" {
			continue
		}

		switch m.Role {
		case "system":
			systemParts = append(systemParts, text)
		case "assistant":
			contents = append(contents, &genai.Content{Role: "model", Parts: []genai.Part{genai.Text(text)}})
		default:
			contents = append(contents, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(text)}})
		}
	}

	if len(contents) == 0 || contents[len(contents)-1].Role != "user" {
		return "", nil, nil, errors.New("gemini: conversation must end with a user message")
	}

	last := contents[len(contents)-1]
	return strings.Join(systemParts, "\n\n"), contents[:len(contents)-1], last, nil
}

func geminiFinishReason(r genai.FinishReason) string {
	switch r {
	case genai.FinishReasonStop:
		return "stop"
	case genai.FinishReasonMaxTokens:
		return "length"
	case genai.FinishReasonSafety, genai.FinishReasonRecitation:
		return "content-filter"
	case genai.FinishReasonOther:
		return "other"
	default:
		return ""
	}
}
