// internal/service/delivery_service.go
package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	appErrors "github.com/unclebandit/message-router/internal/errors"
	"github.com/unclebandit/message-router/internal/model"
	"github.com/unclebandit/message-router/internal/provider"
)

// DeliveryResult is what one trip through the pipeline produced.
type DeliveryResult struct {
	Success       bool                `json:"success"`
	Status        model.MessageStatus `json:"status"`
	ExternalID    string              `json:"external_id,omitempty"`
	Cost          float64             `json:"cost"`
	AttemptNumber int                 `json:"attempt_number"`
	Error         string              `json:"error,omitempty"`
	RetryInSecs   int                 `json:"retry_in_seconds,omitempty"`
}

// DeliveryService orchestrates one delivery attempt: compliance and
// frequency gates, provider selection, the provider call, fallback,
// and the retry decision. Every state change is persisted before
// RouteMessage returns, so the stored status plus the attempt log is
// always the source of truth after a crash.
type DeliveryService struct {
	Messages    MessageStore
	Attempts    AttemptStore
	Routing     *RoutingService
	RateLimiter *RateLimitService
	Suppression SuppressionChecker
	Providers   *provider.Registry
	Log         zerolog.Logger
	Now         func() time.Time
}

func NewDeliveryService(
	messages MessageStore,
	attempts AttemptStore,
	routing *RoutingService,
	limiter *RateLimitService,
	suppression SuppressionChecker,
	providers *provider.Registry,
	log zerolog.Logger,
) *DeliveryService {
	return &DeliveryService{
		Messages:    messages,
		Attempts:    attempts,
		Routing:     routing,
		RateLimiter: limiter,
		Suppression: suppression,
		Providers:   providers,
		Log:         log,
		Now:         time.Now,
	}
}

// RouteMessage pushes one message through the pipeline. It returns
// (nil, nil) when the message could not be claimed: already terminal,
// cancelled, or picked up by another worker.
func (s *DeliveryService) RouteMessage(ctx context.Context, msg *model.Message) (*DeliveryResult, error) {
	now := s.Now()

	claimed, err := s.Messages.ClaimForSending(msg.ID, now)
	if err != nil {
		return nil, err
	}
	if !claimed {
		s.Log.Debug().Int("message_id", msg.ID).Msg("message not claimable, skipping")
		return nil, nil
	}

	// Policy gates. These are compliance decisions, not provider
	// failures: no attempt row, no provider rate-limit slot consumed.
	suppressed, err := s.Suppression.IsSuppressed(msg.ContactID)
	if err != nil {
		s.Log.Error().Err(err).Int("contact_id", msg.ContactID).Msg("suppression check failed, treating as suppressed")
		suppressed = true
	}
	if suppressed {
		return s.failTerminal(msg, "contact suppressed, delivery skipped for compliance")
	}

	allowed, err := s.RateLimiter.CheckFrequency(msg.ContactID, msg.TenantID)
	if err != nil || !allowed {
		return s.failTerminal(msg, "contact frequency cap reached")
	}

	cfg, providerName, err := s.Routing.SelectProvider(msg)
	if err != nil {
		// No routing config or a broken one: fail loudly so operators
		// see it, never retry.
		s.Log.Error().Err(err).Int("message_id", msg.ID).Str("channel", string(msg.Channel)).Msg("routing configuration error")
		return s.failTerminal(msg, err.Error())
	}

	attemptNumber, err := s.nextAttemptNumber(msg.ID)
	if err != nil {
		return nil, err
	}

	// Provider throughput gate. A denial is retryable and may fall
	// back, but the delay comes from the limiter, not the backoff
	// policy.
	provAllowed, retryAfter, provErr := s.RateLimiter.CheckProviderLimit(providerName, string(msg.Channel))
	if provErr != nil || !provAllowed {
		errText := appErrors.NewRateLimited("provider "+providerName, retryAfter).Error()
		s.logAttempt(&model.MessageDeliveryAttempt{
			MessageID:     msg.ID,
			AttemptNumber: attemptNumber,
			Channel:       msg.Channel,
			ProviderName:  providerName,
			AttemptedAt:   now,
			Success:       false,
			ErrorMessage:  errText,
			ErrorCode:     "rate_limited",
		})
		return s.handleFailure(ctx, msg, cfg, errText, attemptNumber, retryAfter)
	}

	adapter, ok := s.Providers.Get(providerName)
	if !ok {
		err := appErrors.NewProviderNotRegistered(providerName)
		s.Log.Error().Err(err).Int("message_id", msg.ID).Msg("routing configuration error")
		return s.failTerminal(msg, err.Error())
	}

	start := s.Now()
	res, sendErr := adapter.Send(ctx, msg)
	elapsed := time.Since(start)

	if sendErr == nil {
		s.logAttempt(&model.MessageDeliveryAttempt{
			MessageID:      msg.ID,
			AttemptNumber:  attemptNumber,
			Channel:        msg.Channel,
			ProviderName:   providerName,
			AttemptedAt:    start,
			Success:        true,
			ExternalID:     res.ExternalID,
			Cost:           res.Cost,
			ResponseTimeMs: int(elapsed.Milliseconds()),
		})
		return s.succeed(msg, res, attemptNumber)
	}

	s.logAttempt(&model.MessageDeliveryAttempt{
		MessageID:      msg.ID,
		AttemptNumber:  attemptNumber,
		Channel:        msg.Channel,
		ProviderName:   providerName,
		AttemptedAt:    start,
		Success:        false,
		ErrorMessage:   sendErr.Error(),
		ResponseTimeMs: int(elapsed.Milliseconds()),
	})
	s.Log.Warn().
		Int("message_id", msg.ID).
		Str("provider", providerName).
		Int("attempt", attemptNumber).
		Err(sendErr).
		Msg("primary delivery attempt failed")

	return s.handleFailure(ctx, msg, cfg, sendErr.Error(), attemptNumber, 0)
}

// handleFailure runs the fallback and retry ladder after a failed
// primary attempt. delayOverride, when positive, replaces the backoff
// policy's delay (used for rate-limit retry-after hints).
func (s *DeliveryService) handleFailure(ctx context.Context, msg *model.Message, cfg *model.ChannelRoutingConfig, errText string, attemptNumber int, delayOverride int) (*DeliveryResult, error) {
	fb, fbErr := s.Routing.TryFallback(ctx, msg, cfg, errText, attemptNumber+1)
	if fbErr != nil {
		s.Log.Error().Err(fbErr).Int("message_id", msg.ID).Msg("fallback configuration error")
	}
	if fb != nil && fb.Success {
		return s.succeed(msg, &provider.SendResult{ExternalID: fb.ExternalID, Cost: fb.Cost}, attemptNumber+1)
	}
	if fb != nil && fb.Error != "" {
		errText = fb.Error
	}

	retry, delay := ShouldRetry(msg, cfg, errText)
	if !retry {
		return s.failTerminal(msg, errText)
	}
	if delayOverride > 0 {
		delay = delayOverride
	}

	nextAttempt := s.Now().Add(time.Duration(delay) * time.Second)
	if err := s.Messages.ScheduleRetry(msg.ID, msg.RetryCount+1, errText, nextAttempt); err != nil {
		return nil, err
	}
	s.Log.Info().
		Int("message_id", msg.ID).
		Int("retry_count", msg.RetryCount+1).
		Int("delay_s", delay).
		Msg("delivery scheduled for retry")

	return &DeliveryResult{
		Success:       false,
		Status:        model.StatusPendingRetry,
		AttemptNumber: attemptNumber,
		Error:         errText,
		RetryInSecs:   delay,
	}, nil
}

func (s *DeliveryService) succeed(msg *model.Message, res *provider.SendResult, attemptNumber int) (*DeliveryResult, error) {
	now := s.Now()
	if err := s.Messages.MarkSent(msg.ID, res.ExternalID, res.Cost, now); err != nil {
		return nil, err
	}
	if err := s.RateLimiter.RecordSent(msg.ContactID, msg.TenantID); err != nil {
		s.Log.Error().Err(err).Int("contact_id", msg.ContactID).Msg("failed to record frequency send")
	}
	s.Log.Info().
		Int("message_id", msg.ID).
		Str("external_id", res.ExternalID).
		Int("attempt", attemptNumber).
		Float64("cost", res.Cost).
		Msg("message sent")

	return &DeliveryResult{
		Success:       true,
		Status:        model.StatusSent,
		ExternalID:    res.ExternalID,
		Cost:          res.Cost,
		AttemptNumber: attemptNumber,
	}, nil
}

func (s *DeliveryService) failTerminal(msg *model.Message, errText string) (*DeliveryResult, error) {
	if err := s.Messages.MarkFailed(msg.ID, errText, s.Now()); err != nil {
		return nil, err
	}
	s.Log.Warn().Int("message_id", msg.ID).Str("error", errText).Msg("message failed terminally")
	return &DeliveryResult{
		Success: false,
		Status:  model.StatusFailed,
		Error:   errText,
	}, nil
}

func (s *DeliveryService) nextAttemptNumber(messageID int) (int, error) {
	count, err := s.Attempts.CountByMessage(messageID)
	if err != nil {
		return 0, err
	}
	return count + 1, nil
}

func (s *DeliveryService) logAttempt(a *model.MessageDeliveryAttempt) {
	if err := s.Attempts.Create(a); err != nil {
		s.Log.Error().Err(err).Int("message_id", a.MessageID).Msg("failed to log delivery attempt")
	}
}
