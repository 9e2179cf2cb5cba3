// internal/service/ratelimit_service.go
package service

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/unclebandit/message-router/internal/config"
	"github.com/unclebandit/message-router/internal/model"
)

// RateLimitService runs the three throttling regimes: per-contact
// frequency caps, per-caller API windows, and per-provider windows.
//
// A per-key mutex serializes in-process callers; the store's
// conditional updates keep check-and-increment atomic across processor
// instances. Store failures deny (fail closed) so a flaky database
// can never breach an upstream provider quota.
type RateLimitService struct {
	Store    RateLimitStore
	Defaults config.FrequencyDefaults
	Log      zerolog.Logger
	Now      func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewRateLimitService(store RateLimitStore, defaults config.FrequencyDefaults, log zerolog.Logger) *RateLimitService {
	return &RateLimitService{
		Store:    store,
		Defaults: defaults,
		Log:      log,
		Now:      time.Now,
		locks:    make(map[string]*sync.Mutex),
	}
}

func (s *RateLimitService) keyLock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

// ====================== Frequency control ======================

// CheckFrequency reports whether the (contact, tenant) pair is under
// all three caps. It does not consume budget; RecordSent does, and
// only after a send was actually attempted.
func (s *RateLimitService) CheckFrequency(contactID int, tenantID string) (bool, error) {
	key := fmt.Sprintf("freq:%d:%s", contactID, tenantID)
	l := s.keyLock(key)
	l.Lock()
	defer l.Unlock()

	fc, err := s.frequencyControl(contactID, tenantID)
	if err != nil {
		s.Log.Error().Err(err).Int("contact_id", contactID).Msg("frequency check failed, denying")
		return false, err
	}

	if err := s.rollover(fc); err != nil {
		return false, err
	}

	if fc.SentToday >= fc.MaxPerDay {
		s.Log.Warn().Int("contact_id", contactID).Int("sent", fc.SentToday).Msg("daily frequency cap reached")
		return false, nil
	}
	if fc.SentThisWeek >= fc.MaxPerWeek {
		s.Log.Warn().Int("contact_id", contactID).Int("sent", fc.SentThisWeek).Msg("weekly frequency cap reached")
		return false, nil
	}
	if fc.SentThisMonth >= fc.MaxPerMonth {
		s.Log.Warn().Int("contact_id", contactID).Int("sent", fc.SentThisMonth).Msg("monthly frequency cap reached")
		return false, nil
	}
	return true, nil
}

// RecordSent increments all three counters and stamps the send time.
func (s *RateLimitService) RecordSent(contactID int, tenantID string) error {
	key := fmt.Sprintf("freq:%d:%s", contactID, tenantID)
	l := s.keyLock(key)
	l.Lock()
	defer l.Unlock()

	fc, err := s.frequencyControl(contactID, tenantID)
	if err != nil {
		return err
	}
	if err := s.rollover(fc); err != nil {
		return err
	}
	return s.Store.IncrementSent(fc.ID, s.Now())
}

func (s *RateLimitService) frequencyControl(contactID int, tenantID string) (*model.FrequencyControl, error) {
	fc, err := s.Store.GetFrequencyControl(contactID, tenantID)
	if err != nil {
		return nil, err
	}
	if fc != nil {
		return fc, nil
	}

	fc = &model.FrequencyControl{
		ContactID:   contactID,
		TenantID:    tenantID,
		MaxPerDay:   s.Defaults.MaxPerDay,
		MaxPerWeek:  s.Defaults.MaxPerWeek,
		MaxPerMonth: s.Defaults.MaxPerMonth,
	}
	if err := s.Store.CreateFrequencyControl(fc); err != nil {
		return nil, err
	}
	if fc.ID == 0 {
		// Another instance created the row first.
		return s.Store.GetFrequencyControl(contactID, tenantID)
	}
	return fc, nil
}

// rollover zeroes counters whose day/week/month boundary has passed
// since the last send.
func (s *RateLimitService) rollover(fc *model.FrequencyControl) error {
	if fc.LastSentAt == nil {
		return nil
	}
	now := s.Now()
	last := *fc.LastSentAt
	changed := false

	if truncateDay(last).Before(truncateDay(now)) {
		fc.SentToday = 0
		changed = true
	}
	if mondayOf(last).Before(mondayOf(now)) {
		fc.SentThisWeek = 0
		changed = true
	}
	if last.Year() < now.Year() || (last.Year() == now.Year() && last.Month() < now.Month()) {
		fc.SentThisMonth = 0
		changed = true
	}

	if !changed {
		return nil
	}
	s.Log.Debug().Int("contact_id", fc.ContactID).Msg("frequency counters rolled over")
	return s.Store.SaveFrequencyControl(fc)
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// mondayOf returns the start of the ISO week containing t.
func mondayOf(t time.Time) time.Time {
	daysBack := (int(t.Weekday()) + 6) % 7
	return truncateDay(t.AddDate(0, 0, -daysBack))
}

// ====================== API rate limiter ======================

// CheckApiLimit consumes one slot from the most specific matching
// rule's fixed window. The window resets at windowStart+windowSeconds
// rather than sliding; callers at a boundary may briefly see twice the
// budget, which matches the platform's historical behavior and the
// tests built on it.
func (s *RateLimitService) CheckApiLimit(userID, tenantID, endpoint string) (bool, int, error) {
	limit, err := s.Store.FindApiLimit(userID, tenantID, endpoint)
	if err != nil {
		s.Log.Error().Err(err).Str("endpoint", endpoint).Msg("api limit lookup failed, denying")
		return false, 0, err
	}
	if limit == nil {
		return true, 0, nil
	}

	l := s.keyLock(fmt.Sprintf("api:%d", limit.ID))
	l.Lock()
	defer l.Unlock()

	now := s.Now()
	ok, err := s.Store.ConsumeApiSlot(limit.ID, now)
	if err != nil {
		s.Log.Error().Err(err).Int("limit_id", limit.ID).Msg("api slot consume failed, denying")
		return false, limit.TimeWindowSeconds, err
	}
	if ok {
		return true, 0, nil
	}

	retryAfter := s.retryAfterApi(limit.ID, now)
	s.logViolation(userID, tenantID, endpoint, limit, retryAfter)
	return false, retryAfter, nil
}

func (s *RateLimitService) retryAfterApi(id int, now time.Time) int {
	limit, err := s.Store.GetApiLimit(id)
	if err != nil || limit == nil {
		return 1
	}
	return remainingWindow(limit.WindowStartTime, limit.TimeWindowSeconds, now)
}

func remainingWindow(start time.Time, windowSeconds int, now time.Time) int {
	remaining := windowSeconds - int(now.Sub(start).Seconds())
	if remaining < 1 {
		remaining = 1
	}
	return remaining
}

func (s *RateLimitService) logViolation(userID, tenantID, endpoint string, limit *model.ApiRateLimit, retryAfter int) {
	err := s.Store.CreateRateLimitLog(&model.RateLimitLog{
		UserID:            userID,
		TenantID:          tenantID,
		Endpoint:          endpoint,
		RateLimitRule:     limit.EndpointPattern,
		RequestCount:      limit.CurrentCount,
		MaxRequests:       limit.MaxRequests,
		TimeWindowSeconds: limit.TimeWindowSeconds,
		RetryAfterSeconds: retryAfter,
	})
	if err != nil {
		// The denial stands either way.
		s.Log.Error().Err(err).Str("endpoint", endpoint).Msg("failed to write rate limit log")
	}
	s.Log.Warn().
		Str("user_id", userID).
		Str("tenant_id", tenantID).
		Str("endpoint", endpoint).
		Int("retry_after_s", retryAfter).
		Msg("api rate limit exceeded")
}

// ====================== Provider rate limiter ======================

// CheckProviderLimit consumes one slot from a provider's window before
// any network call is made. No configured limit means unlimited.
func (s *RateLimitService) CheckProviderLimit(providerName, providerType string) (bool, int, error) {
	limit, err := s.Store.FindProviderLimit(providerName, providerType)
	if err != nil {
		s.Log.Error().Err(err).Str("provider", providerName).Msg("provider limit lookup failed, denying")
		return false, 0, err
	}
	if limit == nil {
		return true, 0, nil
	}

	l := s.keyLock(fmt.Sprintf("prov:%d", limit.ID))
	l.Lock()
	defer l.Unlock()

	now := s.Now()
	ok, err := s.Store.ConsumeProviderSlot(limit.ID, now)
	if err != nil {
		s.Log.Error().Err(err).Str("provider", providerName).Msg("provider slot consume failed, denying")
		return false, limit.TimeWindowSeconds, err
	}
	if ok {
		return true, 0, nil
	}

	retryAfter := 1
	if cur, err := s.Store.GetProviderLimit(limit.ID); err == nil && cur != nil {
		retryAfter = remainingWindow(cur.WindowStartTime, cur.TimeWindowSeconds, now)
	}
	s.Log.Warn().Str("provider", providerName).Int("retry_after_s", retryAfter).Msg("provider rate limit exceeded")
	return false, retryAfter, nil
}
