// internal/service/routing_service.go
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	appErrors "github.com/unclebandit/message-router/internal/errors"
	"github.com/unclebandit/message-router/internal/model"
	"github.com/unclebandit/message-router/internal/provider"
)

// RoutingService picks a provider for a message's channel and drives
// fallback delivery when the primary fails.
type RoutingService struct {
	Configs     RoutingConfigStore
	Providers   *provider.Registry
	RateLimiter *RateLimitService
	Attempts    AttemptStore
	Log         zerolog.Logger
	Now         func() time.Time

	mu       sync.Mutex
	rrCursor map[model.Channel]int
}

func NewRoutingService(configs RoutingConfigStore, providers *provider.Registry, limiter *RateLimitService, attempts AttemptStore, log zerolog.Logger) *RoutingService {
	return &RoutingService{
		Configs:     configs,
		Providers:   providers,
		RateLimiter: limiter,
		Attempts:    attempts,
		Log:         log,
		Now:         time.Now,
		rrCursor:    make(map[model.Channel]int),
	}
}

// SelectProvider resolves the active routing config for the message's
// channel and picks a provider per its strategy.
func (s *RoutingService) SelectProvider(msg *model.Message) (*model.ChannelRoutingConfig, string, error) {
	cfg, err := s.Configs.GetActiveByChannel(msg.Channel)
	if err != nil {
		return nil, "", err
	}
	if cfg == nil {
		return nil, "", appErrors.NewNoRoutingConfig(string(msg.Channel))
	}

	switch cfg.RoutingStrategy {
	case model.RouteRoundRobin:
		return cfg, s.roundRobinPick(cfg), nil
	case model.RouteCostOptimized:
		return cfg, s.costOptimizedPick(cfg, msg), nil
	default: // primary_only
		return cfg, cfg.PrimaryProvider, nil
	}
}

func (s *RoutingService) roundRobinPick(cfg *model.ChannelRoutingConfig) string {
	candidates := []string{cfg.PrimaryProvider}
	if cfg.FallbackProvider != "" {
		candidates = append(candidates, cfg.FallbackProvider)
	}

	s.mu.Lock()
	cursor := s.rrCursor[cfg.Channel]
	s.rrCursor[cfg.Channel] = cursor + 1
	s.mu.Unlock()

	return candidates[cursor%len(candidates)]
}

// costOptimizedPick prefers the fallback only when the primary's
// estimated cost breaches the configured threshold and the fallback is
// actually cheaper.
func (s *RoutingService) costOptimizedPick(cfg *model.ChannelRoutingConfig, msg *model.Message) string {
	if cfg.CostThreshold == nil || cfg.FallbackProvider == "" {
		return cfg.PrimaryProvider
	}
	primary, ok := s.Providers.Get(cfg.PrimaryProvider)
	if !ok {
		return cfg.PrimaryProvider
	}
	fallback, ok := s.Providers.Get(cfg.FallbackProvider)
	if !ok {
		return cfg.PrimaryProvider
	}

	primaryCost := primary.EstimateCost(msg)
	if primaryCost <= *cfg.CostThreshold {
		return cfg.PrimaryProvider
	}
	if fallback.EstimateCost(msg) < primaryCost {
		s.Log.Info().
			Int("message_id", msg.ID).
			Float64("primary_cost", primaryCost).
			Float64("threshold", *cfg.CostThreshold).
			Msg("cost threshold exceeded, routing to fallback provider")
		return cfg.FallbackProvider
	}
	return cfg.PrimaryProvider
}

// FallbackResult is the outcome of one fallback attempt.
type FallbackResult struct {
	Success    bool
	ExternalID string
	Cost       float64
	Error      string
	Reason     model.FallbackReason
}

// TryFallback attempts delivery via the configured fallback provider
// after a failed primary attempt. It classifies the primary error,
// gates the fallback through the provider rate limiter, and logs the
// attempt as its own audit row with attemptNumber. Returns nil when no
// fallback is applicable.
func (s *RoutingService) TryFallback(ctx context.Context, msg *model.Message, cfg *model.ChannelRoutingConfig, primaryError string, attemptNumber int) (*FallbackResult, error) {
	if cfg == nil || !cfg.EnableFallback || cfg.FallbackProvider == "" {
		return nil, nil
	}

	reason := FallbackReasonFor(primaryError)
	adapter, ok := s.Providers.Get(cfg.FallbackProvider)
	if !ok {
		return nil, appErrors.NewProviderNotRegistered(cfg.FallbackProvider)
	}

	allowed, retryAfter, err := s.RateLimiter.CheckProviderLimit(cfg.FallbackProvider, string(msg.Channel))
	if err != nil || !allowed {
		s.Log.Warn().
			Int("message_id", msg.ID).
			Str("provider", cfg.FallbackProvider).
			Int("retry_after_s", retryAfter).
			Msg("fallback provider rate limited, skipping fallback")
		return &FallbackResult{
			Success: false,
			Error:   fmt.Sprintf("fallback provider rate limit exceeded, retry after %ds", retryAfter),
			Reason:  reason,
		}, nil
	}

	start := s.Now()
	res, sendErr := adapter.Send(ctx, msg)
	elapsed := time.Since(start)

	attempt := &model.MessageDeliveryAttempt{
		MessageID:      msg.ID,
		AttemptNumber:  attemptNumber,
		Channel:        msg.Channel,
		ProviderName:   cfg.FallbackProvider,
		AttemptedAt:    start,
		ResponseTimeMs: int(elapsed.Milliseconds()),
		FallbackReason: reason,
	}

	out := &FallbackResult{Reason: reason}
	if sendErr != nil {
		attempt.Success = false
		attempt.ErrorMessage = sendErr.Error()
		out.Error = sendErr.Error()
		s.Log.Warn().
			Int("message_id", msg.ID).
			Str("provider", cfg.FallbackProvider).
			Err(sendErr).
			Msg("fallback attempt failed")
	} else {
		attempt.Success = true
		attempt.ExternalID = res.ExternalID
		attempt.Cost = res.Cost
		out.Success = true
		out.ExternalID = res.ExternalID
		out.Cost = res.Cost
		s.Log.Info().
			Int("message_id", msg.ID).
			Str("provider", cfg.FallbackProvider).
			Str("external_id", res.ExternalID).
			Str("reason", string(reason)).
			Msg("fallback delivery succeeded")
	}

	if err := s.Attempts.Create(attempt); err != nil {
		// Losing an audit row must not change the delivery outcome.
		s.Log.Error().Err(err).Int("message_id", msg.ID).Msg("failed to log fallback attempt")
	}
	return out, nil
}
