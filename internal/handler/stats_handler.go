// internal/handler/stats_handler.go
package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/unclebandit/message-router/internal/model"
	"github.com/unclebandit/message-router/internal/repository"
)

// StatsHandler serves delivery-attempt aggregations.
type StatsHandler struct {
	Attempts repository.DeliveryAttemptRepositoryInterface
}

func statsWindow(r *http.Request) (time.Time, time.Time) {
	until := time.Now()
	since := until.AddDate(0, 0, -30)
	if raw := r.URL.Query().Get("since"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			since = t
		}
	}
	if raw := r.URL.Query().Get("until"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			until = t
		}
	}
	return since, until
}

func (h *StatsHandler) ChannelStats(w http.ResponseWriter, r *http.Request) {
	channel := model.Channel(chi.URLParam(r, "channel"))
	switch channel {
	case model.ChannelSMS, model.ChannelMMS, model.ChannelEmail:
	default:
		http.Error(w, "unknown channel", http.StatusBadRequest)
		return
	}

	since, until := statsWindow(r)
	stats, err := h.Attempts.StatsByChannel(channel, since, until)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"stats": stats,
		"period": map[string]time.Time{
			"since": since,
			"until": until,
		},
	})
}

func (h *StatsHandler) OverallStats(w http.ResponseWriter, r *http.Request) {
	since, until := statsWindow(r)
	stats, err := h.Attempts.OverallStats(since, until)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"by_channel": stats,
		"period": map[string]time.Time{
			"since": since,
			"until": until,
		},
	})
}
