package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"wishlist-pricewatch/internal/storage"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

// Pinger reports backend health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	watchlist storage.WatchlistStore
	history   storage.HistoryStore
	alerts    storage.AlertStore
	pinger    Pinger
	logger    zerolog.Logger
}

// NewHandler creates a new Handler. alerts and pinger may be nil.
func NewHandler(watchlist storage.WatchlistStore, history storage.HistoryStore, alerts storage.AlertStore, pinger Pinger, logger zerolog.Logger) *Handler {
	return &Handler{
		watchlist: watchlist,
		history:   history,
		alerts:    alerts,
		pinger:    pinger,
		logger:    logger.With().Str("component", "api").Logger(),
	}
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if h.pinger != nil {
		if err := h.pinger.Ping(r.Context()); err != nil {
			h.logger.Warn().Err(err).Msg("health check failed")
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// ListItems handles GET /api/v1/items
func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.watchlist.ListItems(r.Context())
	if err != nil {
		h.serverError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, items)
}

type itemResponse struct {
	storage.Item
	Latest *storage.PriceObservation `json:"latest,omitempty"`
}

// GetItem handles GET /api/v1/items/{id}
func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	item, err := h.watchlist.GetItem(r.Context(), id)
	if errors.Is(err, storage.ErrItemNotFound) {
		http.Error(w, "item not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.serverError(w, err)
		return
	}

	resp := itemResponse{Item: item}
	latest, found, err := h.history.LatestObservation(r.Context(), id)
	if err != nil {
		h.serverError(w, err)
		return
	}
	if found {
		resp.Latest = &latest
	}
	respondJSON(w, http.StatusOK, resp)
}

// GetHistory handles GET /api/v1/items/{id}/history?limit=N
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	limit, err := parseLimit(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if _, err := h.watchlist.GetItem(r.Context(), id); errors.Is(err, storage.ErrItemNotFound) {
		http.Error(w, "item not found", http.StatusNotFound)
		return
	} else if err != nil {
		h.serverError(w, err)
		return
	}

	observations, err := h.history.ListRecentObservations(r.Context(), id, limit)
	if err != nil {
		h.serverError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, observations)
}

// ListAlerts handles GET /api/v1/alerts?limit=N
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	if h.alerts == nil {
		http.Error(w, "alert history not available", http.StatusNotFound)
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	records, err := h.alerts.ListRecentAlerts(r.Context(), limit)
	if err != nil {
		h.serverError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, records)
}

func (h *Handler) serverError(w http.ResponseWriter, err error) {
	h.logger.Error().Err(err).Msg("request failed")
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, errors.New("limit must be a positive integer")
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return limit, nil
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
