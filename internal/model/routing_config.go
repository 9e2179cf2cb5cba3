// internal/model/routing_config.go
package model

import "time"

// RoutingStrategy decides how a provider is picked for a channel.
type RoutingStrategy string

const (
	RoutePrimaryOnly   RoutingStrategy = "primary_only"
	RouteCostOptimized RoutingStrategy = "cost_optimized"
	RouteRoundRobin    RoutingStrategy = "round_robin"
)

// RetryStrategy shapes the delay between attempts.
type RetryStrategy string

const (
	RetryFixed       RetryStrategy = "fixed"
	RetryLinear      RetryStrategy = "linear"
	RetryExponential RetryStrategy = "exponential"
)

// ChannelRoutingConfig is the per-channel delivery policy. The active
// row with the highest priority wins for its channel.
type ChannelRoutingConfig struct {
	ID                       int             `db:"id" json:"id"`
	Channel                  Channel         `db:"channel" json:"channel"`
	PrimaryProvider          string          `db:"primary_provider" json:"primary_provider"`
	FallbackProvider         string          `db:"fallback_provider" json:"fallback_provider,omitempty"`
	RoutingStrategy          RoutingStrategy `db:"routing_strategy" json:"routing_strategy"`
	EnableFallback           bool            `db:"enable_fallback" json:"enable_fallback"`
	MaxRetries               int             `db:"max_retries" json:"max_retries"`
	RetryStrategy            RetryStrategy   `db:"retry_strategy" json:"retry_strategy"`
	InitialRetryDelaySeconds int             `db:"initial_retry_delay_seconds" json:"initial_retry_delay_seconds"`
	MaxRetryDelaySeconds     int             `db:"max_retry_delay_seconds" json:"max_retry_delay_seconds"`
	CostThreshold            *float64        `db:"cost_threshold" json:"cost_threshold,omitempty"`
	IsActive                 bool            `db:"is_active" json:"is_active"`
	Priority                 int             `db:"priority" json:"priority"`
	CreatedAt                time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt                *time.Time      `db:"updated_at" json:"updated_at,omitempty"`
}
