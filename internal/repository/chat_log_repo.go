package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"chatgate-backend/internal/models"
)

type ChatLogRepo struct {
	pool *pgxpool.Pool
}

func NewChatLogRepo(pool *pgxpool.Pool) *ChatLogRepo {
	return &ChatLogRepo{pool: pool}
}

func (r *ChatLogRepo) Create(ctx context.Context, l *models.ChatLog) error {
	query := `INSERT INTO chat_logs (id, request_id, model, web_search, message_count, finish_reason,
			prompt_tokens, completion_tokens, error, started_at, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.pool.Exec(ctx, query,
		l.ID, l.RequestID, l.Model, l.WebSearch, l.MessageCount, l.FinishReason,
		l.PromptTokens, l.CompletionTokens, l.Error, l.StartedAt, l.DurationMS,
	)
	return err
}

// UsageByModel aggregates token usage per model since the given time.
func (r *ChatLogRepo) UsageByModel(ctx context.Context, since time.Time) ([]models.ModelUsage, error) {
	query := `SELECT model, COUNT(*), COALESCE(SUM(prompt_tokens), 0), COALESCE(SUM(completion_tokens), 0),
			COUNT(*) FILTER (WHERE error IS NOT NULL)
		FROM chat_logs WHERE started_at >= $1
		GROUP BY model ORDER BY COUNT(*) DESC`

	rows, err := r.pool.Query(ctx, query, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var usage []models.ModelUsage
	for rows.Next() {
		var u models.ModelUsage
		if err := rows.Scan(&u.Model, &u.Requests, &u.PromptTokens, &u.CompletionTokens, &u.Errors); err != nil {
			return nil, err
		}
		usage = append(usage, u)
	}
	return usage, rows.Err()
}
