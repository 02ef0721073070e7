package handlers

import (
	"context"
	"net/http"
	"time"

	"chatgate-backend/internal/models"
)

type usageRepository interface {
	UsageByModel(ctx context.Context, since time.Time) ([]models.ModelUsage, error)
}

type UsageHandler struct {
	repo usageRepository
}

func NewUsageHandler(repo usageRepository) *UsageHandler {
	return &UsageHandler{repo: repo}
}

// Usage handles GET /api/usage?window=24h.
func (h *UsageHandler) Usage(w http.ResponseWriter, r *http.Request) {
	window := 24 * time.Hour
	if v := r.URL.Query().Get("window"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid window", r))
			return
		}
		window = d
	}

	since := time.Now().Add(-window).UTC()
	usage, err := h.repo.UsageByModel(r.Context(), since)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to load usage", r))
		return
	}
	if usage == nil {
		usage = []models.ModelUsage{}
	}

	writeJSON(w, http.StatusOK, models.UsageResponse{Since: since, Usage: usage})
}
