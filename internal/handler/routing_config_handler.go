// internal/handler/routing_config_handler.go
package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/unclebandit/message-router/internal/model"
	"github.com/unclebandit/message-router/internal/repository"
)

// RoutingConfigHandler holds the dependencies for routing-config HTTP handlers
type RoutingConfigHandler struct {
	Repo *repository.RoutingConfigRepository
}

func (h *RoutingConfigHandler) ListConfigs(w http.ResponseWriter, r *http.Request) {
	configs, err := h.Repo.List()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(map[string]interface{}{"data": configs})
}

func (h *RoutingConfigHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(chi.URLParam(r, "id"))

	cfg, err := h.Repo.GetByID(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if cfg == nil {
		http.Error(w, "routing config not found", http.StatusNotFound)
		return
	}
	json.NewEncoder(w).Encode(cfg)
}

func (h *RoutingConfigHandler) CreateConfig(w http.ResponseWriter, r *http.Request) {
	var cfg model.ChannelRoutingConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if cfg.RoutingStrategy == "" {
		cfg.RoutingStrategy = model.RoutePrimaryOnly
	}
	if cfg.RetryStrategy == "" {
		cfg.RetryStrategy = model.RetryExponential
	}

	if err := h.Repo.Create(&cfg); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(cfg)
}

func (h *RoutingConfigHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(chi.URLParam(r, "id"))

	existing, err := h.Repo.GetByID(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if existing == nil {
		http.Error(w, "routing config not found", http.StatusNotFound)
		return
	}

	var cfg model.ChannelRoutingConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	cfg.ID = id
	cfg.Channel = existing.Channel

	if err := h.Repo.Update(&cfg); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(cfg)
}

func (h *RoutingConfigHandler) DeleteConfig(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(chi.URLParam(r, "id"))

	deleted, err := h.Repo.Delete(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !deleted {
		http.Error(w, "routing config not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
