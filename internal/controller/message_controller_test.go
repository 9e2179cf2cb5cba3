package controller_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/unclebandit/message-router/internal/controller"
	appErrors "github.com/unclebandit/message-router/internal/errors"
	"github.com/unclebandit/message-router/internal/model"
	"github.com/unclebandit/message-router/internal/repository"
)

// --- Mock repositories ---

type MockMessageRepo struct {
	messages  map[int]*model.Message
	cancelled []int
}

func (m *MockMessageRepo) Create(msg *model.Message) error {
	msg.ID = 42
	msg.CreatedAt = time.Now()
	if m.messages == nil {
		m.messages = map[int]*model.Message{}
	}
	m.messages[msg.ID] = msg
	return nil
}

func (m *MockMessageRepo) GetByID(id int) (*model.Message, error) {
	msg, ok := m.messages[id]
	if !ok {
		return nil, appErrors.NewMessageNotFound(id)
	}
	return msg, nil
}

func (m *MockMessageRepo) ListDue(now time.Time, limit int) ([]*model.Message, error) {
	return nil, nil
}
func (m *MockMessageRepo) ListSentAwaitingDelivery(limit int) ([]*model.Message, error) {
	return nil, nil
}
func (m *MockMessageRepo) ClaimForSending(id int, now time.Time) (bool, error) { return false, nil }
func (m *MockMessageRepo) MarkSent(id int, externalID string, cost float64, now time.Time) error {
	return nil
}
func (m *MockMessageRepo) MarkDelivered(id int, now time.Time) error { return nil }
func (m *MockMessageRepo) ScheduleRetry(id int, retryCount int, lastError string, nextAttemptAt time.Time) error {
	return nil
}
func (m *MockMessageRepo) MarkFailed(id int, lastError string, now time.Time) error { return nil }

func (m *MockMessageRepo) Cancel(id int) (bool, error) {
	msg, ok := m.messages[id]
	if !ok || msg.Status.Terminal() {
		return false, nil
	}
	msg.Status = model.StatusCancelled
	m.cancelled = append(m.cancelled, id)
	return true, nil
}

func (m *MockMessageRepo) SoftDelete(id int) error { return nil }

var _ repository.MessageRepositoryInterface = (*MockMessageRepo)(nil)

type MockAttemptRepo struct {
	attempts []*model.MessageDeliveryAttempt
}

func (m *MockAttemptRepo) Create(a *model.MessageDeliveryAttempt) error { return nil }
func (m *MockAttemptRepo) ListByMessage(messageID int) ([]*model.MessageDeliveryAttempt, error) {
	out := []*model.MessageDeliveryAttempt{}
	for _, a := range m.attempts {
		if a.MessageID == messageID {
			out = append(out, a)
		}
	}
	return out, nil
}
func (m *MockAttemptRepo) CountByMessage(messageID int) (int, error) { return 0, nil }
func (m *MockAttemptRepo) StatsByChannel(channel model.Channel, since, until time.Time) (*repository.ChannelStats, error) {
	return &repository.ChannelStats{}, nil
}
func (m *MockAttemptRepo) OverallStats(since, until time.Time) ([]*repository.ChannelStats, error) {
	return nil, nil
}

// --- Tests ---

func newController(messages *MockMessageRepo, attempts *MockAttemptRepo) *controller.MessageController {
	return &controller.MessageController{
		Messages: messages,
		Attempts: attempts,
		Log:      zerolog.Nop(),
	}
}

func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestCreateMessage(t *testing.T) {
	repo := &MockMessageRepo{}
	ctrl := newController(repo, &MockAttemptRepo{})

	body := map[string]interface{}{
		"contact_id": 1,
		"tenant_id":  "tenant-a",
		"channel":    "sms",
		"recipient":  "+15550001001",
		"body":       "hello",
	}
	b, _ := json.Marshal(body)

	req := httptest.NewRequest("POST", "/messages", bytes.NewReader(b))
	w := httptest.NewRecorder()
	ctrl.CreateMessage(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	var created model.Message
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if created.ID != 42 || created.Status != model.StatusQueued {
		t.Errorf("unexpected message: %+v", created)
	}
}

func TestCreateMessageRejectsUnknownChannel(t *testing.T) {
	ctrl := newController(&MockMessageRepo{}, &MockAttemptRepo{})

	b, _ := json.Marshal(map[string]interface{}{"channel": "fax", "recipient": "x"})
	req := httptest.NewRequest("POST", "/messages", bytes.NewReader(b))
	w := httptest.NewRecorder()
	ctrl.CreateMessage(w, req)

	if w.Result().StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Result().StatusCode)
	}
}

func TestGetMessageNotFound(t *testing.T) {
	ctrl := newController(&MockMessageRepo{}, &MockAttemptRepo{})

	req := withURLParam(httptest.NewRequest("GET", "/messages/99", nil), "id", "99")
	w := httptest.NewRecorder()
	ctrl.GetMessage(w, req)

	if w.Result().StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Result().StatusCode)
	}
}

func TestCancelMessage(t *testing.T) {
	repo := &MockMessageRepo{messages: map[int]*model.Message{
		7: {ID: 7, Status: model.StatusQueued},
	}}
	ctrl := newController(repo, &MockAttemptRepo{})

	req := withURLParam(httptest.NewRequest("POST", "/messages/7/cancel", nil), "id", "7")
	w := httptest.NewRecorder()
	ctrl.CancelMessage(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Result().StatusCode)
	}
	if repo.messages[7].Status != model.StatusCancelled {
		t.Errorf("status = %s, want cancelled", repo.messages[7].Status)
	}
}

func TestCancelMessageConflictWhenTerminal(t *testing.T) {
	repo := &MockMessageRepo{messages: map[int]*model.Message{
		7: {ID: 7, Status: model.StatusDelivered},
	}}
	ctrl := newController(repo, &MockAttemptRepo{})

	req := withURLParam(httptest.NewRequest("POST", "/messages/7/cancel", nil), "id", "7")
	w := httptest.NewRecorder()
	ctrl.CancelMessage(w, req)

	if w.Result().StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Result().StatusCode)
	}
}

func TestGetAttempts(t *testing.T) {
	attempts := &MockAttemptRepo{attempts: []*model.MessageDeliveryAttempt{
		{MessageID: 7, AttemptNumber: 1, ProviderName: "mock-sms-primary"},
		{MessageID: 7, AttemptNumber: 2, ProviderName: "mock-sms-backup", FallbackReason: model.FallbackProviderDown},
		{MessageID: 8, AttemptNumber: 1},
	}}
	ctrl := newController(&MockMessageRepo{}, attempts)

	req := withURLParam(httptest.NewRequest("GET", "/messages/7/attempts", nil), "id", "7")
	w := httptest.NewRecorder()
	ctrl.GetAttempts(w, req)

	var res struct {
		MessageID int                             `json:"message_id"`
		Attempts  []*model.MessageDeliveryAttempt `json:"attempts"`
	}
	if err := json.NewDecoder(w.Result().Body).Decode(&res); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(res.Attempts) != 2 {
		t.Fatalf("expected 2 attempts for message 7, got %d", len(res.Attempts))
	}
}
