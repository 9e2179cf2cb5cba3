// internal/service/retry.go
package service

import (
	"strings"

	"github.com/unclebandit/message-router/internal/model"
)

// FailureClass buckets a send failure for retry and fallback decisions.
type FailureClass int

const (
	// FailureTransient covers timeouts, 5xx-style vendor errors and
	// network failures. Retryable.
	FailureTransient FailureClass = iota
	// FailurePermanent covers hard rejections that will never succeed:
	// invalid recipients, opted-out or suppressed contacts, hard
	// bounces. Never retried, regardless of remaining budget.
	FailurePermanent
	// FailureRateLimited is a local limiter denial rather than a
	// provider error. Retryable after the limiter's hint.
	FailureRateLimited
)

var permanentMarkers = []string{
	"invalid recipient",
	"invalid address",
	"invalid phone",
	"invalid email",
	"unsubscribed",
	"opted out",
	"opt-out",
	"suppressed",
	"hard bounce",
	"blocked recipient",
	"unknown recipient",
}

var rateLimitMarkers = []string{
	"rate limit",
	"throttle",
	"too many requests",
}

// ClassifyFailure buckets an error by its text, the way the upstream
// vendors report failures. Unknown errors count as transient so that
// the retry budget, not the classifier, bounds delivery attempts.
func ClassifyFailure(errText string) FailureClass {
	lower := strings.ToLower(errText)
	for _, marker := range permanentMarkers {
		if strings.Contains(lower, marker) {
			return FailurePermanent
		}
	}
	for _, marker := range rateLimitMarkers {
		if strings.Contains(lower, marker) {
			return FailureRateLimited
		}
	}
	return FailureTransient
}

// FallbackReasonFor classifies why a fallback is being attempted.
func FallbackReasonFor(primaryErr string) model.FallbackReason {
	lower := strings.ToLower(primaryErr)
	switch {
	case containsAny(lower, rateLimitMarkers):
		return model.FallbackRateLimited
	case containsAny(lower, []string{"unavailable", "timeout", "timed out", "connection", "5xx", "server error"}):
		return model.FallbackProviderDown
	case containsAny(lower, []string{"cost", "quota"}):
		return model.FallbackCostExceeded
	default:
		return model.FallbackManual
	}
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// RetryDelaySeconds computes the wait before re-attempting, for the
// attempt that just failed (1-based).
func RetryDelaySeconds(cfg *model.ChannelRoutingConfig, attemptNumber int) int {
	initial := cfg.InitialRetryDelaySeconds
	max := cfg.MaxRetryDelaySeconds
	if attemptNumber < 1 {
		attemptNumber = 1
	}

	var delay int
	switch cfg.RetryStrategy {
	case model.RetryLinear:
		delay = initial * attemptNumber
	case model.RetryExponential:
		delay = initial
		for i := 1; i < attemptNumber; i++ {
			delay *= 2
			if max > 0 && delay >= max {
				delay = max
				break
			}
		}
	default: // fixed
		delay = initial
	}

	if max > 0 && delay > max {
		delay = max
	}
	return delay
}

// ShouldRetry decides whether a failed message goes back on the queue
// and after how long. The permanence check runs before the budget
// check: a hard rejection is final even with retries remaining.
func ShouldRetry(msg *model.Message, cfg *model.ChannelRoutingConfig, lastError string) (bool, int) {
	if ClassifyFailure(lastError) == FailurePermanent {
		return false, 0
	}

	maxRetries := msg.MaxRetries
	if maxRetries == 0 && cfg != nil {
		maxRetries = cfg.MaxRetries
	}
	if msg.RetryCount >= maxRetries {
		return false, 0
	}

	return true, RetryDelaySeconds(cfg, msg.RetryCount+1)
}
