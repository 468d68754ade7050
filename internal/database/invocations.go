// Package database defines the insertions and transactions to the usage database
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"claude-invocation/internal/shared"
)

type DailyStats struct {
	Date         string
	Model        string
	RequestCount uint64
	ErrorCount   uint64
	InputTokens  uint64
	OutputTokens uint64
	TotalTime    int64
}

// UsageStore writes invocation usage records to MySQL.
type UsageStore struct {
	db *sql.DB
}

func NewUsageStore(db *sql.DB) *UsageStore {
	return &UsageStore{db: db}
}

// SaveInvocations inserts one row per invocation and folds the batch into the
// daily_stats aggregate inside a single transaction.
func (s *UsageStore) SaveInvocations(ctx context.Context, records []*shared.InvocationRecord) error {
	if len(records) == 0 {
		return nil
	}
	insertSQL, insertVals := buildInvocationInsert(records)
	statsSQL, statsVals := buildDailyStatsUpsert(records)

	return ExecuteTransaction(ctx, s.db, []func(*sql.Tx) error{
		func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, insertSQL, insertVals...); err != nil {
				return fmt.Errorf("failed to save invocations: %w", err)
			}
			return nil
		},
		func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, statsSQL, statsVals...); err != nil {
				return fmt.Errorf("failed to save daily stats: %w", err)
			}
			return nil
		},
	})
}

func buildInvocationInsert(records []*shared.InvocationRecord) (string, []any) {
	var sb strings.Builder
	sb.WriteString(`INSERT INTO invocation (
            request_id, model, status, error_code, cached,
            input_tokens, output_tokens, total_time, created_at
        ) VALUES`)

	vals := make([]any, 0, len(records)*9)
	for i, rec := range records {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?, ?, ?, ?)")
		vals = append(vals,
			rec.RequestID, rec.Model, rec.Status, rec.ErrorCode, rec.Cached,
			rec.Usage.InputTokens, rec.Usage.OutputTokens,
			rec.TotalTime.Milliseconds(), rec.CreatedAt,
		)
	}
	return sb.String(), vals
}

type statsKey struct {
	date  string
	model string
}

// statsDate is the UTC day an invocation started on.
func statsDate(rec *shared.InvocationRecord) string {
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	return created.UTC().Format("2006-01-02")
}

// aggregateDailyStats folds records per UTC day and model, in first seen
// order.
func aggregateDailyStats(records []*shared.InvocationRecord) []*DailyStats {
	aggregated := make(map[statsKey]*DailyStats)
	var order []statsKey
	for _, rec := range records {
		key := statsKey{date: statsDate(rec), model: rec.Model}
		stats, ok := aggregated[key]
		if !ok {
			stats = &DailyStats{Date: key.date, Model: rec.Model}
			aggregated[key] = stats
			order = append(order, key)
		}
		stats.RequestCount++
		if rec.Status == shared.StatusError {
			stats.ErrorCount++
		}
		stats.InputTokens += rec.Usage.InputTokens
		stats.OutputTokens += rec.Usage.OutputTokens
		stats.TotalTime += rec.TotalTime.Milliseconds()
	}

	out := make([]*DailyStats, 0, len(order))
	for _, key := range order {
		out = append(out, aggregated[key])
	}
	return out
}

func buildDailyStatsUpsert(records []*shared.InvocationRecord) (string, []any) {
	stats := aggregateDailyStats(records)

	var sb strings.Builder
	sb.WriteString(`INSERT INTO daily_stats (
		date, model, request_count, error_count, input_tokens, output_tokens, total_time
	) VALUES`)

	vals := make([]any, 0, len(stats)*7)
	for i, s := range stats {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?, ?)")
		vals = append(vals, s.Date, s.Model, s.RequestCount, s.ErrorCount, s.InputTokens, s.OutputTokens, s.TotalTime)
	}
	sb.WriteString(` ON DUPLICATE KEY UPDATE
		request_count = request_count + VALUES(request_count),
		error_count = error_count + VALUES(error_count),
		input_tokens = input_tokens + VALUES(input_tokens),
		output_tokens = output_tokens + VALUES(output_tokens),
		total_time = total_time + VALUES(total_time)`)
	return sb.String(), vals
}

// ExecuteTransaction executes one transaction with one or multiple database executions.
func ExecuteTransaction(ctx context.Context, writeDB *sql.DB, fns []func(*sql.Tx) error) error {
	tx, err := writeDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, fn := range fns {
		if err := fn(tx); err != nil {
			return fmt.Errorf("failed to execute transaction function: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
