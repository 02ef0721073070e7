package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"chatgate-backend/internal/models"
)

type stubUsageRepo struct {
	usage []models.ModelUsage
	err   error
	since time.Time
}

func (s *stubUsageRepo) UsageByModel(ctx context.Context, since time.Time) ([]models.ModelUsage, error) {
	s.since = since
	return s.usage, s.err
}

func TestUsageHandler(t *testing.T) {
	repo := &stubUsageRepo{usage: []models.ModelUsage{{Model: "openai/gpt-4o", Requests: 3, PromptTokens: 30}}}
	h := NewUsageHandler(repo)

	rr := httptest.NewRecorder()
	h.Usage(rr, httptest.NewRequest(http.MethodGet, "/api/usage?window=1h", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	if d := time.Since(repo.since); d < time.Hour || d > time.Hour+time.Minute {
		t.Errorf("Expected window of one hour, got %v", d)
	}

	var resp models.UsageResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(resp.Usage) != 1 || resp.Usage[0].Requests != 3 {
		t.Errorf("Unexpected usage: %+v", resp.Usage)
	}
}

func TestUsageHandler_Errors(t *testing.T) {
	tests := []struct {
		name     string
		target   string
		repoErr  error
		expected int
	}{
		{"invalid window", "/api/usage?window=yesterday", nil, http.StatusBadRequest},
		{"negative window", "/api/usage?window=-1h", nil, http.StatusBadRequest},
		{"repository failure", "/api/usage", errors.New("db down"), http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			NewUsageHandler(&stubUsageRepo{err: tc.repoErr}).Usage(rr, httptest.NewRequest(http.MethodGet, tc.target, nil))
			if rr.Code != tc.expected {
				t.Errorf("Expected status %d, got %d", tc.expected, rr.Code)
			}
		})
	}
}

func TestUsageHandler_EmptyListIsArray(t *testing.T) {
	rr := httptest.NewRecorder()
	NewUsageHandler(&stubUsageRepo{}).Usage(rr, httptest.NewRequest(http.MethodGet, "/api/usage", nil))

	var raw map[string]json.RawMessage
	if err := json.NewDecoder(rr.Body).Decode(&raw); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if string(raw["usage"]) != "[]" {
		t.Errorf("Expected empty array, got %s", raw["usage"])
	}
}
