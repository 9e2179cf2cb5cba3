// internal/model/delivery_attempt.go
package model

import "time"

// FallbackReason records why a fallback provider was used for an attempt.
type FallbackReason string

const (
	FallbackNone         FallbackReason = ""
	FallbackProviderDown FallbackReason = "provider_down"
	FallbackRateLimited  FallbackReason = "rate_limited"
	FallbackCostExceeded FallbackReason = "cost_exceeded"
	FallbackManual       FallbackReason = "manual"
)

// MessageDeliveryAttempt is an immutable audit row, one per provider
// attempt. AttemptNumber starts at 1 and is contiguous per message.
type MessageDeliveryAttempt struct {
	ID             int            `db:"id" json:"id"`
	MessageID      int            `db:"message_id" json:"message_id"`
	AttemptNumber  int            `db:"attempt_number" json:"attempt_number"`
	Channel        Channel        `db:"channel" json:"channel"`
	ProviderName   string         `db:"provider_name" json:"provider_name"`
	AttemptedAt    time.Time      `db:"attempted_at" json:"attempted_at"`
	Success        bool           `db:"success" json:"success"`
	ExternalID     string         `db:"external_id" json:"external_id,omitempty"`
	ErrorMessage   string         `db:"error_message" json:"error_message,omitempty"`
	ErrorCode      string         `db:"error_code" json:"error_code,omitempty"`
	Cost           float64        `db:"cost" json:"cost"`
	ResponseTimeMs int            `db:"response_time_ms" json:"response_time_ms"`
	FallbackReason FallbackReason `db:"fallback_reason" json:"fallback_reason,omitempty"`
}
