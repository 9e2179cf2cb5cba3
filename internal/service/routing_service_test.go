package service_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	appErrors "github.com/unclebandit/message-router/internal/errors"
	"github.com/unclebandit/message-router/internal/model"
	"github.com/unclebandit/message-router/internal/provider"
	"github.com/unclebandit/message-router/internal/service"
)

func float64Ptr(f float64) *float64 { return &f }

func smsConfig(strategy model.RoutingStrategy) *model.ChannelRoutingConfig {
	return &model.ChannelRoutingConfig{
		ID:                       1,
		Channel:                  model.ChannelSMS,
		PrimaryProvider:          "primary",
		FallbackProvider:         "backup",
		RoutingStrategy:          strategy,
		EnableFallback:           true,
		MaxRetries:               3,
		RetryStrategy:            model.RetryExponential,
		InitialRetryDelaySeconds: 10,
		MaxRetryDelaySeconds:     80,
		IsActive:                 true,
	}
}

func newRouting(cfg *model.ChannelRoutingConfig, store *fakeRateLimitStore, adapters ...provider.Adapter) (*service.RoutingService, *fakeAttemptStore) {
	configs := &fakeConfigStore{configs: map[model.Channel]*model.ChannelRoutingConfig{}}
	if cfg != nil {
		configs.configs[cfg.Channel] = cfg
	}
	attempts := &fakeAttemptStore{}
	limiter := service.NewRateLimitService(store, testDefaults, zerolog.Nop())
	return service.NewRoutingService(configs, provider.NewRegistry(adapters...), limiter, attempts, zerolog.Nop()), attempts
}

func TestSelectProviderPrimaryOnly(t *testing.T) {
	routing, _ := newRouting(smsConfig(model.RoutePrimaryOnly), newFakeRateLimitStore(),
		&fakeAdapter{name: "primary", channel: model.ChannelSMS},
		&fakeAdapter{name: "backup", channel: model.ChannelSMS},
	)
	msg := &model.Message{ID: 1, Channel: model.ChannelSMS}

	for i := 0; i < 3; i++ {
		_, name, err := routing.SelectProvider(msg)
		if err != nil {
			t.Fatalf("SelectProvider failed: %v", err)
		}
		if name != "primary" {
			t.Errorf("pick %d: got %q, want primary", i, name)
		}
	}
}

func TestSelectProviderRoundRobinAlternates(t *testing.T) {
	routing, _ := newRouting(smsConfig(model.RouteRoundRobin), newFakeRateLimitStore(),
		&fakeAdapter{name: "primary", channel: model.ChannelSMS},
		&fakeAdapter{name: "backup", channel: model.ChannelSMS},
	)
	msg := &model.Message{ID: 1, Channel: model.ChannelSMS}

	var picks []string
	for i := 0; i < 4; i++ {
		_, name, _ := routing.SelectProvider(msg)
		picks = append(picks, name)
	}
	want := []string{"primary", "backup", "primary", "backup"}
	for i := range want {
		if picks[i] != want[i] {
			t.Fatalf("picks = %v, want %v", picks, want)
		}
	}
}

func TestSelectProviderCostOptimized(t *testing.T) {
	cfg := smsConfig(model.RouteCostOptimized)
	cfg.CostThreshold = float64Ptr(0.01)

	routing, _ := newRouting(cfg, newFakeRateLimitStore(),
		&fakeAdapter{name: "primary", channel: model.ChannelSMS, cost: 0.02},
		&fakeAdapter{name: "backup", channel: model.ChannelSMS, cost: 0.008},
	)
	msg := &model.Message{ID: 1, Channel: model.ChannelSMS, Body: "hi"}

	_, name, err := routing.SelectProvider(msg)
	if err != nil {
		t.Fatalf("SelectProvider failed: %v", err)
	}
	if name != "backup" {
		t.Errorf("got %q, want backup when primary breaches the threshold", name)
	}
}

func TestSelectProviderCostOptimizedUnderThreshold(t *testing.T) {
	cfg := smsConfig(model.RouteCostOptimized)
	cfg.CostThreshold = float64Ptr(0.05)

	routing, _ := newRouting(cfg, newFakeRateLimitStore(),
		&fakeAdapter{name: "primary", channel: model.ChannelSMS, cost: 0.02},
		&fakeAdapter{name: "backup", channel: model.ChannelSMS, cost: 0.008},
	)
	msg := &model.Message{ID: 1, Channel: model.ChannelSMS, Body: "hi"}

	_, name, _ := routing.SelectProvider(msg)
	if name != "primary" {
		t.Errorf("got %q, want primary while under the threshold", name)
	}
}

func TestSelectProviderNoConfig(t *testing.T) {
	routing, _ := newRouting(nil, newFakeRateLimitStore())
	msg := &model.Message{ID: 1, Channel: model.ChannelSMS}

	_, _, err := routing.SelectProvider(msg)
	if err == nil {
		t.Fatal("expected error for unconfigured channel")
	}
	if _, ok := err.(*appErrors.ErrNoRoutingConfig); !ok {
		t.Errorf("error type = %T, want *appErrors.ErrNoRoutingConfig", err)
	}
}

func TestTryFallbackNotApplicable(t *testing.T) {
	cfg := smsConfig(model.RoutePrimaryOnly)
	cfg.EnableFallback = false

	routing, _ := newRouting(cfg, newFakeRateLimitStore(),
		&fakeAdapter{name: "backup", channel: model.ChannelSMS},
	)
	res, err := routing.TryFallback(context.Background(), &model.Message{ID: 1, Channel: model.ChannelSMS}, cfg, "timeout", 2)
	if res != nil || err != nil {
		t.Errorf("disabled fallback should be a no-op, got res=%+v err=%v", res, err)
	}
}

func TestTryFallbackSucceedsAndLogsAttempt(t *testing.T) {
	cfg := smsConfig(model.RoutePrimaryOnly)
	routing, attempts := newRouting(cfg, newFakeRateLimitStore(),
		&fakeAdapter{name: "backup", channel: model.ChannelSMS, cost: 0.008},
	)
	msg := &model.Message{ID: 9, Channel: model.ChannelSMS}

	res, err := routing.TryFallback(context.Background(), msg, cfg, "provider primary temporarily unavailable", 2)
	if err != nil {
		t.Fatalf("TryFallback failed: %v", err)
	}
	if res == nil || !res.Success {
		t.Fatalf("expected fallback success, got %+v", res)
	}
	if res.Reason != model.FallbackProviderDown {
		t.Errorf("reason = %q, want provider_down", res.Reason)
	}

	logged, _ := attempts.ListByMessage(9)
	if len(logged) != 1 {
		t.Fatalf("expected 1 attempt row, got %d", len(logged))
	}
	a := logged[0]
	if a.AttemptNumber != 2 || a.ProviderName != "backup" || !a.Success {
		t.Errorf("unexpected attempt row: %+v", a)
	}
	if a.FallbackReason != model.FallbackProviderDown {
		t.Errorf("attempt fallback_reason = %q, want provider_down", a.FallbackReason)
	}
}

func TestTryFallbackFailure(t *testing.T) {
	cfg := smsConfig(model.RoutePrimaryOnly)
	routing, attempts := newRouting(cfg, newFakeRateLimitStore(),
		&fakeAdapter{name: "backup", channel: model.ChannelSMS, sendErr: errors.New("provider backup temporarily unavailable")},
	)
	msg := &model.Message{ID: 9, Channel: model.ChannelSMS}

	res, err := routing.TryFallback(context.Background(), msg, cfg, "connection timed out", 2)
	if err != nil {
		t.Fatalf("TryFallback failed: %v", err)
	}
	if res.Success {
		t.Fatal("expected fallback failure")
	}
	logged, _ := attempts.ListByMessage(9)
	if len(logged) != 1 || logged[0].Success {
		t.Errorf("failed fallback should still log its attempt, got %+v", logged)
	}
}

func TestTryFallbackRateLimited(t *testing.T) {
	store := newFakeRateLimitStore()
	now := time.Now()
	store.provLimits = []*model.ProviderRateLimit{{
		ID: 1, ProviderName: "backup", ProviderType: "sms",
		MaxRequests: 10, TimeWindowSeconds: 60,
		CurrentCount: 10, WindowStartTime: now, IsActive: true,
	}}

	cfg := smsConfig(model.RoutePrimaryOnly)
	backup := &fakeAdapter{name: "backup", channel: model.ChannelSMS}
	routing, _ := newRouting(cfg, store, backup)
	msg := &model.Message{ID: 9, Channel: model.ChannelSMS}

	res, err := routing.TryFallback(context.Background(), msg, cfg, "connection timed out", 2)
	if err != nil {
		t.Fatalf("TryFallback failed: %v", err)
	}
	if res.Success {
		t.Fatal("rate limited fallback must not succeed")
	}
	if !strings.Contains(res.Error, "rate limit") {
		t.Errorf("error = %q, want a rate limit message", res.Error)
	}
	if backup.sendCount() != 0 {
		t.Error("fallback provider must not be called when its window is full")
	}
}
