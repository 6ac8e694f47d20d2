package metadatastore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// UsageMetric mirrors the §3 UsageMetric entity. A row is written for every
// completed turn, success or failure.
type UsageMetric struct {
	Id               string
	ConversationId   *string
	Provider         string
	Model            string
	PromptTokens     int
	CompletionTokens int
	ResponseTimeMs   int64
	Timestamp        time.Time
	Success          bool
	ErrorKind        *string
}

func (s *Store) RecordUsage(ctx context.Context, m UsageMetric) error {
	if m.Id == "" {
		m.Id = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO usage_metrics (id, conversation_id, provider, model, prompt_tokens, completion_tokens, response_time_ms, success, error_kind)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.Id, m.ConversationId, m.Provider, m.Model, m.PromptTokens, m.CompletionTokens, m.ResponseTimeMs, m.Success, m.ErrorKind)
	if err != nil {
		return fmt.Errorf("metadatastore: record usage: %w", err)
	}
	return nil
}

// Aggregate is one {Provider, Model, Day} bucket for the analytics read
// path (§4.L).
type Aggregate struct {
	Provider         string
	Model            string
	Day              string // YYYY-MM-DD
	TotalRequests     int
	TotalPromptTokens int
	TotalCompletionTokens int
	AvgResponseTimeMs float64
	SuccessRate       float64
}

// AggregateUsage groups usage_metrics by provider/model/day. The caller
// (internal/analytics) is responsible for caching the result with a TTL.
func (s *Store) AggregateUsage(ctx context.Context, since time.Time) ([]Aggregate, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT provider, model, date(timestamp) AS day,
	COUNT(*) AS total,
	SUM(prompt_tokens), SUM(completion_tokens),
	AVG(response_time_ms),
	SUM(CASE WHEN success THEN 1 ELSE 0 END) * 1.0 / COUNT(*)
FROM usage_metrics
WHERE timestamp >= ?
GROUP BY provider, model, day
ORDER BY day DESC`, since)
	if err != nil {
		return nil, fmt.Errorf("metadatastore: aggregate usage: %w", err)
	}
	defer rows.Close()

	out := []Aggregate{}
	for rows.Next() {
		var a Aggregate
		if err := rows.Scan(&a.Provider, &a.Model, &a.Day, &a.TotalRequests, &a.TotalPromptTokens,
			&a.TotalCompletionTokens, &a.AvgResponseTimeMs, &a.SuccessRate); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
