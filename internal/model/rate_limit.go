// internal/model/rate_limit.go
package model

import "time"

// FrequencyControl caps how often one contact may be messaged by one
// tenant. Counters roll over lazily when the day/week/month of
// LastSentAt falls behind the current one.
type FrequencyControl struct {
	ID            int        `db:"id" json:"id"`
	ContactID     int        `db:"contact_id" json:"contact_id"`
	TenantID      string     `db:"tenant_id" json:"tenant_id"`
	MaxPerDay     int        `db:"max_per_day" json:"max_per_day"`
	MaxPerWeek    int        `db:"max_per_week" json:"max_per_week"`
	MaxPerMonth   int        `db:"max_per_month" json:"max_per_month"`
	SentToday     int        `db:"sent_today" json:"sent_today"`
	SentThisWeek  int        `db:"sent_this_week" json:"sent_this_week"`
	SentThisMonth int        `db:"sent_this_month" json:"sent_this_month"`
	LastSentAt    *time.Time `db:"last_sent_at" json:"last_sent_at,omitempty"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// ApiRateLimit is a fixed-window counter scoped to a caller identity.
// UserID and TenantID may each be empty; the most specific active rule
// wins (tenant+endpoint, then user+endpoint, then endpoint-only), with
// Priority as the tie-break.
type ApiRateLimit struct {
	ID                int       `db:"id" json:"id"`
	UserID            string    `db:"user_id" json:"user_id,omitempty"`
	TenantID          string    `db:"tenant_id" json:"tenant_id,omitempty"`
	EndpointPattern   string    `db:"endpoint_pattern" json:"endpoint_pattern"`
	MaxRequests       int       `db:"max_requests" json:"max_requests"`
	TimeWindowSeconds int       `db:"time_window_seconds" json:"time_window_seconds"`
	CurrentCount      int       `db:"current_count" json:"current_count"`
	WindowStartTime   time.Time `db:"window_start_time" json:"window_start_time"`
	IsActive          bool      `db:"is_active" json:"is_active"`
	Priority          int       `db:"priority" json:"priority"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// ProviderRateLimit is the same fixed-window counter scoped to an
// upstream vendor account instead of a caller.
type ProviderRateLimit struct {
	ID                int       `db:"id" json:"id"`
	ProviderName      string    `db:"provider_name" json:"provider_name"`
	ProviderType      string    `db:"provider_type" json:"provider_type"`
	MaxRequests       int       `db:"max_requests" json:"max_requests"`
	TimeWindowSeconds int       `db:"time_window_seconds" json:"time_window_seconds"`
	CurrentCount      int       `db:"current_count" json:"current_count"`
	WindowStartTime   time.Time `db:"window_start_time" json:"window_start_time"`
	IsActive          bool      `db:"is_active" json:"is_active"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// RateLimitLog is an audit row written whenever an API limit denies a
// caller.
type RateLimitLog struct {
	ID                int       `db:"id" json:"id"`
	UserID            string    `db:"user_id" json:"user_id,omitempty"`
	TenantID          string    `db:"tenant_id" json:"tenant_id,omitempty"`
	Endpoint          string    `db:"endpoint" json:"endpoint"`
	RateLimitRule     string    `db:"rate_limit_rule" json:"rate_limit_rule"`
	RequestCount      int       `db:"request_count" json:"request_count"`
	MaxRequests       int       `db:"max_requests" json:"max_requests"`
	TimeWindowSeconds int       `db:"time_window_seconds" json:"time_window_seconds"`
	RetryAfterSeconds int       `db:"retry_after_seconds" json:"retry_after_seconds"`
	TriggeredAt       time.Time `db:"triggered_at" json:"triggered_at"`
}
