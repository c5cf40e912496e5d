package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

// SetupRoutes configures all API routes. metricsHandler may be nil.
func SetupRoutes(handler *Handler, metricsHandler http.Handler) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", handler.HealthCheck).Methods(http.MethodGet)
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/items", handler.ListItems).Methods(http.MethodGet)
	api.HandleFunc("/items/{id}", handler.GetItem).Methods(http.MethodGet)
	api.HandleFunc("/items/{id}/history", handler.GetHistory).Methods(http.MethodGet)
	api.HandleFunc("/alerts", handler.ListAlerts).Methods(http.MethodGet)

	return r
}
