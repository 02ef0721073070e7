package models

import (
	"time"

	"github.com/google/uuid"
)

// ChatLog is the usage record persisted after each chat stream.
type ChatLog struct {
	ID               uuid.UUID `json:"id"`
	RequestID        string    `json:"request_id"`
	Model            string    `json:"model"`
	WebSearch        bool      `json:"web_search"`
	MessageCount     int       `json:"message_count"`
	FinishReason     string    `json:"finish_reason"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	Error            *string   `json:"error"`
	StartedAt        time.Time `json:"started_at"`
	DurationMS       int64     `json:"duration_ms"`
}

// ModelInfo describes one entry of the model picker.
type ModelInfo struct {
	ID       string `json:"id" toml:"id"`
	Name     string `json:"name" toml:"name"`
	Provider string `json:"provider" toml:"provider"`
	Search   bool   `json:"search" toml:"search"`
}

type ModelsResponse struct {
	Models  []ModelInfo `json:"models"`
	Default string      `json:"default"`
	Search  string      `json:"search"`
}

// ModelUsage is the aggregated chat log of one model.
type ModelUsage struct {
	Model            string `json:"model"`
	Requests         int64  `json:"requests"`
	PromptTokens     int64  `json:"prompt_tokens"`
	CompletionTokens int64  `json:"completion_tokens"`
	Errors           int64  `json:"errors"`
}

type UsageResponse struct {
	Since time.Time    `json:"since"`
	Usage []ModelUsage `json:"usage"`
}
