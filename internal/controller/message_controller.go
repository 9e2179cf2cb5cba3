// internal/controller/message_controller.go
package controller

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	appErrors "github.com/unclebandit/message-router/internal/errors"
	"github.com/unclebandit/message-router/internal/model"
	"github.com/unclebandit/message-router/internal/queue"
	"github.com/unclebandit/message-router/internal/repository"
	"github.com/unclebandit/message-router/internal/service"
)

type MessageController struct {
	Messages  repository.MessageRepositoryInterface
	Attempts  repository.DeliveryAttemptRepositoryInterface
	Delivery  *service.DeliveryService
	Publisher *queue.Publisher // nil when no broker is configured
	Log       zerolog.Logger
}

// CreateMessage queues one outbound message and, when a broker is
// connected, nudges the worker to route it right away.
func (c *MessageController) CreateMessage(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CampaignID  int     `json:"campaign_id"`
		ContactID   int     `json:"contact_id"`
		TenantID    string  `json:"tenant_id"`
		Channel     string  `json:"channel"`
		Recipient   string  `json:"recipient"`
		Body        string  `json:"body"`
		Subject     string  `json:"subject"`
		HTMLContent string  `json:"html_content"`
		MediaURLs   string  `json:"media_urls"`
		ScheduledAt *string `json:"scheduled_at"`
		MaxRetries  int     `json:"max_retries"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	switch model.Channel(body.Channel) {
	case model.ChannelSMS, model.ChannelMMS, model.ChannelEmail:
	default:
		http.Error(w, "unknown channel", http.StatusBadRequest)
		return
	}

	msg := &model.Message{
		CampaignID:  body.CampaignID,
		ContactID:   body.ContactID,
		TenantID:    body.TenantID,
		Channel:     model.Channel(body.Channel),
		Recipient:   body.Recipient,
		Body:        body.Body,
		Subject:     body.Subject,
		HTMLContent: body.HTMLContent,
		MediaURLs:   body.MediaURLs,
		Status:      model.StatusQueued,
		MaxRetries:  body.MaxRetries,
	}
	if body.ScheduledAt != nil {
		t, err := time.Parse(time.RFC3339, *body.ScheduledAt)
		if err != nil {
			http.Error(w, "invalid scheduled_at", http.StatusBadRequest)
			return
		}
		msg.ScheduledAt = t
	}

	if err := c.Messages.Create(msg); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if c.Publisher != nil && msg.ScheduledAt.Before(time.Now().Add(time.Second)) {
		if err := c.Publisher.PublishMessage(msg.ID); err != nil {
			c.Log.Warn().Err(err).Int("message_id", msg.ID).Msg("failed to publish send job, poller will pick it up")
		}
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(msg)
}

func (c *MessageController) GetMessage(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(chi.URLParam(r, "id"))

	msg, err := c.Messages.GetByID(id)
	if err != nil {
		if _, ok := err.(*appErrors.ErrMessageNotFound); ok {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(msg)
}

// GetAttempts returns the full audit trail for a message.
func (c *MessageController) GetAttempts(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(chi.URLParam(r, "id"))

	attempts, err := c.Attempts.ListByMessage(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"message_id": id,
		"attempts":   attempts,
	})
}

// RouteMessage pushes one message through the delivery pipeline
// synchronously.
func (c *MessageController) RouteMessage(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(chi.URLParam(r, "id"))

	msg, err := c.Messages.GetByID(id)
	if err != nil {
		if _, ok := err.(*appErrors.ErrMessageNotFound); ok {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	result, err := c.Delivery.RouteMessage(r.Context(), msg)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if result == nil {
		http.Error(w, "message is not in a routable state", http.StatusConflict)
		return
	}

	json.NewEncoder(w).Encode(result)
}

func (c *MessageController) CancelMessage(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(chi.URLParam(r, "id"))

	cancelled, err := c.Messages.Cancel(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !cancelled {
		http.Error(w, "message is not cancellable", http.StatusConflict)
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{"id": id, "status": model.StatusCancelled})
}
