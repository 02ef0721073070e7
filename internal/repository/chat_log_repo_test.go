package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"chatgate-backend/internal/database"
	"chatgate-backend/internal/models"
)

// newTestPool connects to TEST_DATABASE_URL and applies the migrations. The
// test is skipped when the variable is unset.
func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	pool, err := database.NewPostgresPool(url)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := database.RunMigrations(pool, filepath.Join("..", "..", "migrations")); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	return pool
}

func TestChatLogRepo_CreateAndUsage(t *testing.T) {
	pool := newTestPool(t)
	repo := NewChatLogRepo(pool)
	ctx := context.Background()

	model := "test/" + uuid.NewString()
	t.Cleanup(func() {
		pool.Exec(context.Background(), "DELETE FROM chat_logs WHERE model = $1", model)
	})

	failure := "gateway error"
	entries := []*models.ChatLog{
		{ID: uuid.New(), RequestID: "r1", Model: model, MessageCount: 1, FinishReason: "stop", PromptTokens: 10, CompletionTokens: 5, StartedAt: time.Now(), DurationMS: 120},
		{ID: uuid.New(), RequestID: "r2", Model: model, MessageCount: 3, FinishReason: "stop", PromptTokens: 20, CompletionTokens: 7, StartedAt: time.Now(), DurationMS: 80},
		{ID: uuid.New(), RequestID: "r3", Model: model, MessageCount: 1, FinishReason: "unknown", Error: &failure, StartedAt: time.Now(), DurationMS: 10},
		{ID: uuid.New(), RequestID: "old", Model: model, MessageCount: 1, PromptTokens: 1000, StartedAt: time.Now().Add(-48 * time.Hour)},
	}
	for _, e := range entries {
		if err := repo.Create(ctx, e); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	usage, err := repo.UsageByModel(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("UsageByModel failed: %v", err)
	}

	var got *models.ModelUsage
	for i := range usage {
		if usage[i].Model == model {
			got = &usage[i]
		}
	}
	if got == nil {
		t.Fatalf("Expected usage for %s, got %+v", model, usage)
	}
	if got.Requests != 3 {
		t.Errorf("Expected 3 requests, got %d", got.Requests)
	}
	if got.PromptTokens != 30 || got.CompletionTokens != 12 {
		t.Errorf("Expected 30/12 tokens, got %d/%d", got.PromptTokens, got.CompletionTokens)
	}
	if got.Errors != 1 {
		t.Errorf("Expected 1 error, got %d", got.Errors)
	}
}
