// Package api provides HTTP routing and handlers for the admin API.
package api

import (
	"github.com/gorilla/mux"
	"github.com/homework-notify/backend/internal/api/handlers"
	"github.com/homework-notify/backend/internal/api/middleware"
	"github.com/homework-notify/backend/internal/cycle"
	"github.com/homework-notify/backend/internal/storage"
	"github.com/homework-notify/backend/internal/websocket"
)

// NewRouter creates and configures the HTTP router with all API routes.
// db may be nil when the deployment uses a remote calendar store.
func NewRouter(
	db *storage.DB,
	hub *websocket.Hub,
	runner *cycle.Runner,
	scheduler *cycle.Scheduler,
) *mux.Router {
	r := mux.NewRouter()

	// Apply global middleware
	r.Use(middleware.Logging)
	r.Use(middleware.ErrorRecovery)

	// API subrouter
	api := r.PathPrefix("/api").Subrouter()

	// Health and status endpoints
	api.HandleFunc("/health", handlers.HealthCheck(db)).Methods("GET")
	api.HandleFunc("/status", handlers.Status(runner, scheduler, hub)).Methods("GET")

	// WebSocket endpoint
	api.HandleFunc("/ws", handlers.WebSocketUpgrade(hub)).Methods("GET")

	// On-demand triggers
	api.HandleFunc("/cycle", handlers.RunCycle(runner)).Methods("POST")
	api.HandleFunc("/calendars", handlers.ListCalendars(runner)).Methods("GET")
	api.HandleFunc("/calendars/{id}/reconcile", handlers.ReconcileCalendar(runner)).Methods("POST")
	api.HandleFunc("/calendars/{id}/notify", handlers.NotifyCalendar(runner)).Methods("POST")
	api.HandleFunc("/calendars/{id}/feed.ics", handlers.ICSFeed(runner)).Methods("GET")

	// Admin cleanup
	api.HandleFunc("/calendars/{id}/entries", handlers.ClearCalendar(runner)).Methods("DELETE")
	api.HandleFunc("/channels/{id}/messages", handlers.PurgeChannel(runner)).Methods("DELETE")

	return r
}
