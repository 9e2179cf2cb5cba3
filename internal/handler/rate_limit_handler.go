// internal/handler/rate_limit_handler.go
package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/unclebandit/message-router/internal/model"
	"github.com/unclebandit/message-router/internal/repository"
)

// RateLimitHandler exposes limiter configuration and current window
// state for dashboards.
type RateLimitHandler struct {
	Repo *repository.RateLimitRepository
}

func (h *RateLimitHandler) ListApiLimits(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	tenantID := r.URL.Query().Get("tenant_id")

	limits, err := h.Repo.ListApiLimits(userID, tenantID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(map[string]interface{}{"data": limits})
}

func (h *RateLimitHandler) CreateApiLimit(w http.ResponseWriter, r *http.Request) {
	var limit model.ApiRateLimit
	if err := json.NewDecoder(r.Body).Decode(&limit); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if limit.EndpointPattern == "" || limit.MaxRequests <= 0 || limit.TimeWindowSeconds <= 0 {
		http.Error(w, "endpoint_pattern, max_requests and time_window_seconds are required", http.StatusBadRequest)
		return
	}
	limit.CurrentCount = 0

	if err := h.Repo.CreateApiLimit(&limit); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(limit)
}

func (h *RateLimitHandler) UpdateApiLimit(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(chi.URLParam(r, "id"))

	existing, err := h.Repo.GetApiLimit(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if existing == nil {
		http.Error(w, "api rate limit not found", http.StatusNotFound)
		return
	}

	var body struct {
		MaxRequests       int  `json:"max_requests"`
		TimeWindowSeconds int  `json:"time_window_seconds"`
		IsActive          bool `json:"is_active"`
		Priority          int  `json:"priority"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	existing.MaxRequests = body.MaxRequests
	existing.TimeWindowSeconds = body.TimeWindowSeconds
	existing.IsActive = body.IsActive
	existing.Priority = body.Priority

	if err := h.Repo.UpdateApiLimit(existing); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(existing)
}

// GetFrequencyStatus reports a contact's counters alongside the caps
// so a dashboard can show remaining budget.
func (h *RateLimitHandler) GetFrequencyStatus(w http.ResponseWriter, r *http.Request) {
	contactID, _ := strconv.Atoi(chi.URLParam(r, "contactID"))
	tenantID := r.URL.Query().Get("tenant_id")

	fc, err := h.Repo.GetFrequencyControl(contactID, tenantID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if fc == nil {
		http.Error(w, "no frequency control for contact", http.StatusNotFound)
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"frequency_control": fc,
		"remaining_today":   maxInt(0, fc.MaxPerDay-fc.SentToday),
		"remaining_week":    maxInt(0, fc.MaxPerWeek-fc.SentThisWeek),
		"remaining_month":   maxInt(0, fc.MaxPerMonth-fc.SentThisMonth),
	})
}

// UpdateFrequencyCaps changes the caps without touching the counters.
func (h *RateLimitHandler) UpdateFrequencyCaps(w http.ResponseWriter, r *http.Request) {
	contactID, _ := strconv.Atoi(chi.URLParam(r, "contactID"))

	var body struct {
		TenantID    string `json:"tenant_id"`
		MaxPerDay   int    `json:"max_per_day"`
		MaxPerWeek  int    `json:"max_per_week"`
		MaxPerMonth int    `json:"max_per_month"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if body.MaxPerDay <= 0 || body.MaxPerWeek <= 0 || body.MaxPerMonth <= 0 {
		http.Error(w, "caps must be positive", http.StatusBadRequest)
		return
	}

	fc, err := h.Repo.GetFrequencyControl(contactID, body.TenantID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if fc == nil {
		fc = &model.FrequencyControl{
			ContactID:   contactID,
			TenantID:    body.TenantID,
			MaxPerDay:   body.MaxPerDay,
			MaxPerWeek:  body.MaxPerWeek,
			MaxPerMonth: body.MaxPerMonth,
		}
		if err := h.Repo.CreateFrequencyControl(fc); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(fc)
		return
	}

	fc.MaxPerDay = body.MaxPerDay
	fc.MaxPerWeek = body.MaxPerWeek
	fc.MaxPerMonth = body.MaxPerMonth
	if err := h.Repo.SaveFrequencyControl(fc); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(fc)
}

func (h *RateLimitHandler) ListViolations(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 500 {
		limit = 100
	}

	logs, err := h.Repo.ListRateLimitLogs(limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(map[string]interface{}{"data": logs, "as_of": time.Now()})
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
