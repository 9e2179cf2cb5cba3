package repository

import (
	"database/sql"
	"time"

	"github.com/unclebandit/message-router/internal/model"
)

// ChannelStats aggregates delivery attempts for dashboards.
type ChannelStats struct {
	Channel            string  `json:"channel"`
	TotalAttempts      int     `json:"total_attempts"`
	SuccessfulAttempts int     `json:"successful_attempts"`
	FailedAttempts     int     `json:"failed_attempts"`
	SuccessRate        float64 `json:"success_rate"`
	AvgResponseTimeMs  float64 `json:"avg_response_time_ms"`
	TotalCost          float64 `json:"total_cost"`
	FallbackCount      int     `json:"fallback_count"`
}

type DeliveryAttemptRepositoryInterface interface {
	Create(a *model.MessageDeliveryAttempt) error
	ListByMessage(messageID int) ([]*model.MessageDeliveryAttempt, error)
	CountByMessage(messageID int) (int, error)
	StatsByChannel(channel model.Channel, since, until time.Time) (*ChannelStats, error)
	OverallStats(since, until time.Time) ([]*ChannelStats, error)
}

type DeliveryAttemptRepository struct {
	DB *sql.DB
}

// Create inserts an attempt row. Attempt rows are never updated.
func (r *DeliveryAttemptRepository) Create(a *model.MessageDeliveryAttempt) error {
	if a.AttemptedAt.IsZero() {
		a.AttemptedAt = time.Now()
	}
	query := `
        INSERT INTO message_delivery_attempts
            (message_id, attempt_number, channel, provider_name, attempted_at, success,
             external_id, error_message, error_code, cost, response_time_ms, fallback_reason)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
        RETURNING id
    `
	return r.DB.QueryRow(query,
		a.MessageID, a.AttemptNumber, a.Channel, a.ProviderName, a.AttemptedAt, a.Success,
		a.ExternalID, a.ErrorMessage, a.ErrorCode, a.Cost, a.ResponseTimeMs, a.FallbackReason,
	).Scan(&a.ID)
}

func (r *DeliveryAttemptRepository) ListByMessage(messageID int) ([]*model.MessageDeliveryAttempt, error) {
	query := `
        SELECT id, message_id, attempt_number, channel, provider_name, attempted_at, success,
               external_id, error_message, error_code, cost, response_time_ms, fallback_reason
        FROM message_delivery_attempts
        WHERE message_id=$1
        ORDER BY attempt_number ASC
    `
	rows, err := r.DB.Query(query, messageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	attempts := []*model.MessageDeliveryAttempt{}
	for rows.Next() {
		a := &model.MessageDeliveryAttempt{}
		if err := rows.Scan(
			&a.ID, &a.MessageID, &a.AttemptNumber, &a.Channel, &a.ProviderName, &a.AttemptedAt, &a.Success,
			&a.ExternalID, &a.ErrorMessage, &a.ErrorCode, &a.Cost, &a.ResponseTimeMs, &a.FallbackReason,
		); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// CountByMessage is used to keep attempt numbers contiguous across
// primary, fallback and retry attempts.
func (r *DeliveryAttemptRepository) CountByMessage(messageID int) (int, error) {
	var count int
	err := r.DB.QueryRow(
		`SELECT COUNT(*) FROM message_delivery_attempts WHERE message_id=$1`, messageID,
	).Scan(&count)
	return count, err
}

func (r *DeliveryAttemptRepository) StatsByChannel(channel model.Channel, since, until time.Time) (*ChannelStats, error) {
	query := `
        SELECT COUNT(*),
               COUNT(*) FILTER (WHERE success),
               COALESCE(AVG(response_time_ms), 0),
               COALESCE(SUM(cost), 0),
               COUNT(*) FILTER (WHERE fallback_reason <> '')
        FROM message_delivery_attempts
        WHERE channel=$1 AND attempted_at >= $2 AND attempted_at <= $3
    `
	s := &ChannelStats{Channel: string(channel)}
	err := r.DB.QueryRow(query, channel, since, until).Scan(
		&s.TotalAttempts, &s.SuccessfulAttempts, &s.AvgResponseTimeMs, &s.TotalCost, &s.FallbackCount,
	)
	if err != nil {
		return nil, err
	}
	s.FailedAttempts = s.TotalAttempts - s.SuccessfulAttempts
	if s.TotalAttempts > 0 {
		s.SuccessRate = float64(s.SuccessfulAttempts) / float64(s.TotalAttempts) * 100
	}
	return s, nil
}

func (r *DeliveryAttemptRepository) OverallStats(since, until time.Time) ([]*ChannelStats, error) {
	query := `
        SELECT channel,
               COUNT(*),
               COUNT(*) FILTER (WHERE success),
               COALESCE(AVG(response_time_ms), 0),
               COALESCE(SUM(cost), 0),
               COUNT(*) FILTER (WHERE fallback_reason <> '')
        FROM message_delivery_attempts
        WHERE attempted_at >= $1 AND attempted_at <= $2
        GROUP BY channel
        ORDER BY channel
    `
	rows, err := r.DB.Query(query, since, until)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := []*ChannelStats{}
	for rows.Next() {
		s := &ChannelStats{}
		if err := rows.Scan(
			&s.Channel, &s.TotalAttempts, &s.SuccessfulAttempts, &s.AvgResponseTimeMs, &s.TotalCost, &s.FallbackCount,
		); err != nil {
			return nil, err
		}
		s.FailedAttempts = s.TotalAttempts - s.SuccessfulAttempts
		if s.TotalAttempts > 0 {
			s.SuccessRate = float64(s.SuccessfulAttempts) / float64(s.TotalAttempts) * 100
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

var _ DeliveryAttemptRepositoryInterface = (*DeliveryAttemptRepository)(nil)
