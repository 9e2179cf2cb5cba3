package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/unclebandit/message-router/internal/model"
	"github.com/unclebandit/message-router/internal/provider"
)

// In-memory stores mirroring the repository semantics, shared by the
// service tests.

type fakeMessageStore struct {
	mu       sync.Mutex
	messages map[int]*model.Message
}

func newFakeMessageStore(msgs ...*model.Message) *fakeMessageStore {
	s := &fakeMessageStore{messages: map[int]*model.Message{}}
	for _, m := range msgs {
		s.messages[m.ID] = m
	}
	return s
}

func (s *fakeMessageStore) get(id int) *model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messages[id]
}

func (s *fakeMessageStore) GetByID(id int) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, errors.New("message not found")
	}
	return m, nil
}

func (s *fakeMessageStore) ListDue(now time.Time, limit int) ([]*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	due := []*model.Message{}
	for _, m := range s.messages {
		if len(due) >= limit {
			break
		}
		if m.Status == model.StatusQueued && !m.ScheduledAt.After(now) {
			due = append(due, m)
		}
		if m.Status == model.StatusPendingRetry && m.NextAttemptAt != nil && !m.NextAttemptAt.After(now) {
			due = append(due, m)
		}
	}
	return due, nil
}

func (s *fakeMessageStore) ListSentAwaitingDelivery(limit int) ([]*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*model.Message{}
	for _, m := range s.messages {
		if m.Status == model.StatusSent && len(out) < limit {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *fakeMessageStore) ClaimForSending(id int, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return false, nil
	}
	if m.Status != model.StatusQueued && m.Status != model.StatusPendingRetry {
		return false, nil
	}
	m.Status = model.StatusSending
	return true, nil
}

func (s *fakeMessageStore) MarkSent(id int, externalID string, cost float64, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.messages[id]
	m.Status = model.StatusSent
	m.ExternalID = externalID
	m.Cost = cost
	m.SentAt = &now
	return nil
}

func (s *fakeMessageStore) MarkDelivered(id int, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.messages[id]
	m.Status = model.StatusDelivered
	m.DeliveredAt = &now
	return nil
}

func (s *fakeMessageStore) ScheduleRetry(id int, retryCount int, lastError string, nextAttemptAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.messages[id]
	m.Status = model.StatusPendingRetry
	m.RetryCount = retryCount
	m.LastError = lastError
	m.NextAttemptAt = &nextAttemptAt
	return nil
}

func (s *fakeMessageStore) MarkFailed(id int, lastError string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.messages[id]
	m.Status = model.StatusFailed
	m.LastError = lastError
	m.FailedAt = &now
	return nil
}

type fakeAttemptStore struct {
	mu       sync.Mutex
	attempts []*model.MessageDeliveryAttempt
}

func (s *fakeAttemptStore) Create(a *model.MessageDeliveryAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.ID = len(s.attempts) + 1
	s.attempts = append(s.attempts, a)
	return nil
}

func (s *fakeAttemptStore) ListByMessage(messageID int) ([]*model.MessageDeliveryAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*model.MessageDeliveryAttempt{}
	for _, a := range s.attempts {
		if a.MessageID == messageID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *fakeAttemptStore) CountByMessage(messageID int) (int, error) {
	attempts, _ := s.ListByMessage(messageID)
	return len(attempts), nil
}

type fakeConfigStore struct {
	configs map[model.Channel]*model.ChannelRoutingConfig
	err     error
}

func (s *fakeConfigStore) GetActiveByChannel(channel model.Channel) (*model.ChannelRoutingConfig, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.configs[channel], nil
}

// fakeRateLimitStore keeps fixed-window counters in memory with the
// same consume semantics as the SQL store.
type fakeRateLimitStore struct {
	mu sync.Mutex

	freq       map[string]*model.FrequencyControl
	nextID     int
	apiLimits  []*model.ApiRateLimit
	provLimits []*model.ProviderRateLimit
	logs       []*model.RateLimitLog

	freqErr error
}

func newFakeRateLimitStore() *fakeRateLimitStore {
	return &fakeRateLimitStore{freq: map[string]*model.FrequencyControl{}}
}

func freqKey(contactID int, tenantID string) string {
	return fmt.Sprintf("%s/%d", tenantID, contactID)
}

func (s *fakeRateLimitStore) GetFrequencyControl(contactID int, tenantID string) (*model.FrequencyControl, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.freqErr != nil {
		return nil, s.freqErr
	}
	fc, ok := s.freq[freqKey(contactID, tenantID)]
	if !ok {
		return nil, nil
	}
	cp := *fc
	return &cp, nil
}

func (s *fakeRateLimitStore) CreateFrequencyControl(fc *model.FrequencyControl) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := freqKey(fc.ContactID, fc.TenantID)
	if _, ok := s.freq[key]; ok {
		fc.ID = 0
		return nil
	}
	s.nextID++
	fc.ID = s.nextID
	cp := *fc
	s.freq[key] = &cp
	return nil
}

func (s *fakeRateLimitStore) SaveFrequencyControl(fc *model.FrequencyControl) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *fc
	s.freq[freqKey(fc.ContactID, fc.TenantID)] = &cp
	return nil
}

func (s *fakeRateLimitStore) IncrementSent(id int, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, fc := range s.freq {
		if fc.ID == id {
			fc.SentToday++
			fc.SentThisWeek++
			fc.SentThisMonth++
			fc.LastSentAt = &now
		}
	}
	return nil
}

func (s *fakeRateLimitStore) FindApiLimit(userID, tenantID, endpoint string) (*model.ApiRateLimit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.apiLimits {
		if l.IsActive {
			return l, nil
		}
	}
	return nil, nil
}

func (s *fakeRateLimitStore) ConsumeApiSlot(id int, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.apiLimits {
		if l.ID != id {
			continue
		}
		if !now.Before(l.WindowStartTime.Add(time.Duration(l.TimeWindowSeconds) * time.Second)) {
			l.WindowStartTime = now
			l.CurrentCount = 1
			return true, nil
		}
		if l.CurrentCount < l.MaxRequests {
			l.CurrentCount++
			return true, nil
		}
		return false, nil
	}
	return false, nil
}

func (s *fakeRateLimitStore) GetApiLimit(id int) (*model.ApiRateLimit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.apiLimits {
		if l.ID == id {
			cp := *l
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *fakeRateLimitStore) FindProviderLimit(providerName, providerType string) (*model.ProviderRateLimit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.provLimits {
		if l.ProviderName == providerName && l.ProviderType == providerType && l.IsActive {
			return l, nil
		}
	}
	return nil, nil
}

func (s *fakeRateLimitStore) ConsumeProviderSlot(id int, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.provLimits {
		if l.ID != id {
			continue
		}
		if !now.Before(l.WindowStartTime.Add(time.Duration(l.TimeWindowSeconds) * time.Second)) {
			l.WindowStartTime = now
			l.CurrentCount = 1
			return true, nil
		}
		if l.CurrentCount < l.MaxRequests {
			l.CurrentCount++
			return true, nil
		}
		return false, nil
	}
	return false, nil
}

func (s *fakeRateLimitStore) GetProviderLimit(id int) (*model.ProviderRateLimit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.provLimits {
		if l.ID == id {
			cp := *l
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *fakeRateLimitStore) CreateRateLimitLog(l *model.RateLimitLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, l)
	return nil
}

type fakeSuppression struct {
	suppressed map[int]bool
	err        error
}

func (s *fakeSuppression) IsSuppressed(contactID int) (bool, error) {
	if s.err != nil {
		return true, s.err
	}
	return s.suppressed[contactID], nil
}

// fakeAdapter is a scriptable provider.
type fakeAdapter struct {
	name    string
	channel model.Channel
	cost    float64
	sendErr error

	mu    sync.Mutex
	sends int
}

func (a *fakeAdapter) Name() string           { return a.name }
func (a *fakeAdapter) Channel() model.Channel { return a.channel }

func (a *fakeAdapter) Send(ctx context.Context, msg *model.Message) (*provider.SendResult, error) {
	a.mu.Lock()
	a.sends++
	a.mu.Unlock()
	if a.sendErr != nil {
		return nil, a.sendErr
	}
	return &provider.SendResult{ExternalID: a.name + "-ext", Cost: a.cost}, nil
}

func (a *fakeAdapter) GetDeliveryStatus(ctx context.Context, externalID string) (bool, error) {
	return true, nil
}

func (a *fakeAdapter) EstimateCost(msg *model.Message) float64 { return a.cost }

func (a *fakeAdapter) sendCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sends
}
