package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	pkgerrors "callinsights-server/pkg/errors"
)

const mysqlDuplicateEntry = 1062

// CreateCall inserts a new call record
func (s *MySQLStore) CreateCall(ctx context.Context, record *CallRecord) error {
	ctx, cancel := s.getContext(ctx)
	defer cancel()

	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	record.CreatedAt = now
	record.UpdatedAt = now

	query := `
		INSERT INTO call_records (
			id, call_id, agent_id, customer_id, language, start_time,
			duration_seconds, transcript, agent_talk_ratio,
			customer_sentiment_score, embedding, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		record.ID, record.CallID, record.AgentID, record.CustomerID,
		record.Language, record.StartTime, record.DurationSeconds,
		record.Transcript, record.AgentTalkRatio,
		record.CustomerSentimentScore, record.Embedding,
		record.CreatedAt, record.UpdatedAt,
	)

	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry {
			return pkgerrors.Wrap(pkgerrors.ErrCallAlreadyExists, "creating call record").
				WithField("call_id", record.CallID)
		}
		s.logger.WithError(err).WithField("call_id", record.CallID).Error("Failed to create call record")
		return fmt.Errorf("failed to create call record: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"call_id":  record.CallID,
		"agent_id": record.AgentID,
	}).Info("Call record created")

	return nil
}

// GetCall retrieves a call record by its public call identifier
func (s *MySQLStore) GetCall(ctx context.Context, callID string) (*CallRecord, error) {
	ctx, cancel := s.getContext(ctx)
	defer cancel()

	query := `
		SELECT id, call_id, agent_id, customer_id, language, start_time,
			   duration_seconds, transcript, agent_talk_ratio,
			   customer_sentiment_score, embedding, created_at, updated_at
		FROM call_records WHERE call_id = ?
	`

	record := &CallRecord{}
	err := s.db.QueryRowContext(ctx, query, callID).Scan(
		&record.ID, &record.CallID, &record.AgentID, &record.CustomerID,
		&record.Language, &record.StartTime, &record.DurationSeconds,
		&record.Transcript, &record.AgentTalkRatio,
		&record.CustomerSentimentScore, &record.Embedding,
		&record.CreatedAt, &record.UpdatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, pkgerrors.NewCallNotFound(callID)
		}
		return nil, fmt.Errorf("failed to get call record: %w", err)
	}

	return record, nil
}

// ListCalls returns a filtered page of call records, newest first, together
// with the total count matching the filter
func (s *MySQLStore) ListCalls(ctx context.Context, filter CallFilter) ([]*CallRecord, int, error) {
	ctx, cancel := s.getContext(ctx)
	defer cancel()

	var conditions []string
	var args []interface{}

	if filter.AgentID != "" {
		conditions = append(conditions, "agent_id = ?")
		args = append(args, filter.AgentID)
	}
	if filter.FromDate != nil {
		conditions = append(conditions, "start_time >= ?")
		args = append(args, *filter.FromDate)
	}
	if filter.ToDate != nil {
		conditions = append(conditions, "start_time <= ?")
		args = append(args, *filter.ToDate)
	}
	if filter.MinSentiment != nil {
		conditions = append(conditions, "customer_sentiment_score >= ?")
		args = append(args, *filter.MinSentiment)
	}
	if filter.MaxSentiment != nil {
		conditions = append(conditions, "customer_sentiment_score <= ?")
		args = append(args, *filter.MaxSentiment)
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM call_records" + where
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count call records: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, call_id, agent_id, customer_id, language, start_time,
			   duration_seconds, transcript, agent_talk_ratio,
			   customer_sentiment_score, embedding, created_at, updated_at
		FROM call_records` + where + `
		ORDER BY start_time DESC
		LIMIT ? OFFSET ?
	`
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list call records: %w", err)
	}
	defer rows.Close()

	records, err := scanCallRecords(rows)
	if err != nil {
		return nil, 0, err
	}

	return records, total, nil
}

// ListAllCalls returns the full corpus ordered by call identifier
func (s *MySQLStore) ListAllCalls(ctx context.Context) ([]*CallRecord, error) {
	ctx, cancel := s.getContext(ctx)
	defer cancel()

	query := `
		SELECT id, call_id, agent_id, customer_id, language, start_time,
			   duration_seconds, transcript, agent_talk_ratio,
			   customer_sentiment_score, embedding, created_at, updated_at
		FROM call_records
		ORDER BY call_id ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list all call records: %w", err)
	}
	defer rows.Close()

	return scanCallRecords(rows)
}

// UpdateInsights replaces a record's derived fields as a unit.
// Last writer wins when a recompute run and a fresh ingest race.
func (s *MySQLStore) UpdateInsights(ctx context.Context, callID string, insights CallInsights) error {
	ctx, cancel := s.getContext(ctx)
	defer cancel()

	query := `
		UPDATE call_records SET
			agent_talk_ratio = ?, customer_sentiment_score = ?,
			embedding = ?, updated_at = ?
		WHERE call_id = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		insights.AgentTalkRatio, insights.CustomerSentimentScore,
		insights.Embedding, time.Now().UTC(), callID,
	)
	if err != nil {
		s.logger.WithError(err).WithField("call_id", callID).Error("Failed to update insights")
		return fmt.Errorf("failed to update insights: %w", err)
	}

	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		// Zero rows can also mean an identical rewrite; confirm existence
		// before reporting not-found.
		if _, getErr := s.GetCall(ctx, callID); getErr != nil {
			return getErr
		}
	}

	return nil
}

// UpsertAgentAggregate writes one agent's recomputed aggregate
func (s *MySQLStore) UpsertAgentAggregate(ctx context.Context, aggregate *AgentAggregate) error {
	ctx, cancel := s.getContext(ctx)
	defer cancel()

	query := `
		INSERT INTO agent_aggregates (agent_id, avg_sentiment, avg_talk_ratio, call_count, computed_at)
		VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			avg_sentiment = VALUES(avg_sentiment),
			avg_talk_ratio = VALUES(avg_talk_ratio),
			call_count = VALUES(call_count),
			computed_at = VALUES(computed_at)
	`

	if aggregate.ComputedAt.IsZero() {
		aggregate.ComputedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, query,
		aggregate.AgentID, aggregate.AvgSentiment, aggregate.AvgTalkRatio,
		aggregate.CallCount, aggregate.ComputedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert agent aggregate: %w", err)
	}

	return nil
}

// ListAgentAggregates returns all aggregates, best average sentiment first
func (s *MySQLStore) ListAgentAggregates(ctx context.Context) ([]*AgentAggregate, error) {
	ctx, cancel := s.getContext(ctx)
	defer cancel()

	query := `
		SELECT agent_id, avg_sentiment, avg_talk_ratio, call_count, computed_at
		FROM agent_aggregates
		ORDER BY avg_sentiment DESC, agent_id ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list agent aggregates: %w", err)
	}
	defer rows.Close()

	var aggregates []*AgentAggregate
	for rows.Next() {
		agg := &AgentAggregate{}
		if err := rows.Scan(&agg.AgentID, &agg.AvgSentiment, &agg.AvgTalkRatio,
			&agg.CallCount, &agg.ComputedAt); err != nil {
			return nil, fmt.Errorf("failed to scan agent aggregate: %w", err)
		}
		aggregates = append(aggregates, agg)
	}

	return aggregates, rows.Err()
}

func scanCallRecords(rows *sql.Rows) ([]*CallRecord, error) {
	var records []*CallRecord
	for rows.Next() {
		record := &CallRecord{}
		if err := rows.Scan(
			&record.ID, &record.CallID, &record.AgentID, &record.CustomerID,
			&record.Language, &record.StartTime, &record.DurationSeconds,
			&record.Transcript, &record.AgentTalkRatio,
			&record.CustomerSentimentScore, &record.Embedding,
			&record.CreatedAt, &record.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan call record: %w", err)
		}
		records = append(records, record)
	}

	return records, rows.Err()
}
