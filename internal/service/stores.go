// internal/service/stores.go
package service

import (
	"time"

	"github.com/unclebandit/message-router/internal/model"
)

// MessageStore defines the message persistence the engine needs.
type MessageStore interface {
	GetByID(id int) (*model.Message, error)
	ListDue(now time.Time, limit int) ([]*model.Message, error)
	ListSentAwaitingDelivery(limit int) ([]*model.Message, error)
	ClaimForSending(id int, now time.Time) (bool, error)
	MarkSent(id int, externalID string, cost float64, now time.Time) error
	MarkDelivered(id int, now time.Time) error
	ScheduleRetry(id int, retryCount int, lastError string, nextAttemptAt time.Time) error
	MarkFailed(id int, lastError string, now time.Time) error
}

// AttemptStore persists the immutable audit trail.
type AttemptStore interface {
	Create(a *model.MessageDeliveryAttempt) error
	ListByMessage(messageID int) ([]*model.MessageDeliveryAttempt, error)
	CountByMessage(messageID int) (int, error)
}

// RoutingConfigStore resolves the active policy for a channel.
type RoutingConfigStore interface {
	GetActiveByChannel(channel model.Channel) (*model.ChannelRoutingConfig, error)
}

// RateLimitStore backs the three limiter regimes. Consume methods are
// atomic check-and-increment operations in the backing store.
type RateLimitStore interface {
	GetFrequencyControl(contactID int, tenantID string) (*model.FrequencyControl, error)
	CreateFrequencyControl(fc *model.FrequencyControl) error
	SaveFrequencyControl(fc *model.FrequencyControl) error
	IncrementSent(id int, now time.Time) error

	FindApiLimit(userID, tenantID, endpoint string) (*model.ApiRateLimit, error)
	ConsumeApiSlot(id int, now time.Time) (bool, error)
	GetApiLimit(id int) (*model.ApiRateLimit, error)

	FindProviderLimit(providerName, providerType string) (*model.ProviderRateLimit, error)
	ConsumeProviderSlot(id int, now time.Time) (bool, error)
	GetProviderLimit(id int) (*model.ProviderRateLimit, error)

	CreateRateLimitLog(l *model.RateLimitLog) error
}

// SuppressionChecker is the compliance gate consulted before every
// attempt.
type SuppressionChecker interface {
	IsSuppressed(contactID int) (bool, error)
}
