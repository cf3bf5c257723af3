package metrics

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"meal-subscription/internal/llm"
	"meal-subscription/internal/subscription"
)

// ExecutionMetric records metadata for a single agent execution.
type ExecutionMetric struct {
	AgentName        string
	Model            string
	PromptTokens     int
	CompletionTokens int
	LatencyMS        int64
	Timestamp        time.Time
}

// Store handles persistence of metrics to SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore initializes the Store with an existing, migrated database connection.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Timestamps are stored as UTC text so SQLite date functions can group them.
func sqlTime(t time.Time) string {
	return t.UTC().Format(time.DateTime)
}

// Record saves a metric to the database.
func (s *Store) Record(ctx context.Context, m ExecutionMetric) error {
	ts := m.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO execution_metrics (agent_name, model, prompt_tokens, completion_tokens, latency_ms, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.AgentName, m.Model, m.PromptTokens, m.CompletionTokens, m.LatencyMS, sqlTime(ts),
	)
	if err != nil {
		return fmt.Errorf("failed to insert execution metric: %w", err)
	}
	return nil
}

// RecordCall records a language model call. Calls without token counts are skipped.
func (s *Store) RecordCall(ctx context.Context, call llm.Call) error {
	if call.Usage.PromptTokens == 0 && call.Usage.CompletionTokens == 0 {
		return nil
	}
	return s.Record(ctx, MapUsage(call.Caller, call.Usage, call.Latency))
}

// RecordImpact appends an accrual to the impact ledger.
func (s *Store) RecordImpact(ctx context.Context, ev subscription.ImpactEvent) error {
	at := ev.At
	if at.IsZero() {
		at = s.now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO impact_events (user_id, kind, meals_donated, loyalty_points, health_streak_points, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ev.UserID, ev.Kind, ev.MealsDonated, ev.LoyaltyPoints, ev.HealthStreakPoints, sqlTime(at),
	)
	if err != nil {
		return fmt.Errorf("failed to insert impact event: %w", err)
	}
	return nil
}

// DailyUsage represents token totals for a single day.
type DailyUsage struct {
	Date            string
	TotalPrompt     int
	TotalCompletion int
	TotalExecution  int
}

// GetDailyUsage retrieves usage for the last N days.
func (s *Store) GetDailyUsage(ctx context.Context, days int) ([]DailyUsage, error) {
	since := sqlTime(s.now().AddDate(0, 0, -days))
	rows, err := s.db.QueryContext(ctx, `
		SELECT substr(timestamp, 1, 10) AS day, COUNT(*), SUM(prompt_tokens), SUM(completion_tokens)
		FROM execution_metrics
		WHERE timestamp >= ?
		GROUP BY day
		ORDER BY day DESC`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily usage: %w", err)
	}
	defer rows.Close()

	var results []DailyUsage
	for rows.Next() {
		var u DailyUsage
		if err := rows.Scan(&u.Date, &u.TotalExecution, &u.TotalPrompt, &u.TotalCompletion); err != nil {
			return nil, fmt.Errorf("failed to scan daily usage: %w", err)
		}
		results = append(results, u)
	}
	return results, rows.Err()
}

// DailyImpact aggregates impact accruals for a single day across all users.
type DailyImpact struct {
	Date               string `json:"date"`
	MealsDonated       int    `json:"mealsDonated"`
	LoyaltyPoints      int    `json:"loyaltyPoints"`
	HealthStreakPoints int    `json:"healthStreakPoints"`
	Users              int    `json:"users"`
	Events             int    `json:"events"`
}

// GetDailyImpact retrieves impact totals for the last N days, newest first.
func (s *Store) GetDailyImpact(ctx context.Context, days int) ([]DailyImpact, error) {
	since := sqlTime(s.now().AddDate(0, 0, -days))
	rows, err := s.db.QueryContext(ctx, `
		SELECT substr(created_at, 1, 10) AS day,
		       SUM(meals_donated), SUM(loyalty_points), SUM(health_streak_points),
		       COUNT(DISTINCT user_id), COUNT(*)
		FROM impact_events
		WHERE created_at >= ?
		GROUP BY day
		ORDER BY day DESC`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily impact: %w", err)
	}
	defer rows.Close()

	var results []DailyImpact
	for rows.Next() {
		var d DailyImpact
		if err := rows.Scan(&d.Date, &d.MealsDonated, &d.LoyaltyPoints, &d.HealthStreakPoints, &d.Users, &d.Events); err != nil {
			return nil, fmt.Errorf("failed to scan daily impact: %w", err)
		}
		results = append(results, d)
	}
	return results, rows.Err()
}

// Cleanup removes records older than the specified number of days from both
// ledgers and returns how many rows were deleted.
func (s *Store) Cleanup(ctx context.Context, olderThanDays int) (int64, error) {
	threshold := sqlTime(s.now().AddDate(0, 0, -olderThanDays))

	var total int64
	for _, q := range []string{
		`DELETE FROM execution_metrics WHERE timestamp < ?`,
		`DELETE FROM impact_events WHERE created_at < ?`,
	} {
		res, err := s.db.ExecContext(ctx, q, threshold)
		if err != nil {
			return total, fmt.Errorf("failed to clean up metrics: %w", err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

// MapUsage converts llm.TokenUsage to an ExecutionMetric.
func MapUsage(agentName string, usage llm.TokenUsage, latency time.Duration) ExecutionMetric {
	return ExecutionMetric{
		AgentName:        agentName,
		Model:            usage.Model,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		LatencyMS:        latency.Milliseconds(),
		Timestamp:        time.Now().UTC(),
	}
}
