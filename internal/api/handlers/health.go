// Package handlers provides HTTP request handlers for the API endpoints.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/homework-notify/backend/internal/cycle"
	"github.com/homework-notify/backend/internal/storage"
	"github.com/homework-notify/backend/internal/websocket"
)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status      string `json:"status"`
	DBConnected bool   `json:"db_connected"`
}

// HealthCheck returns a handler that performs a health check. db is nil
// when the deployment uses a remote calendar store.
func HealthCheck(db *storage.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dbConnected := true
		if db != nil {
			dbConnected = db.Ping() == nil
		}

		status := "healthy"
		if !dbConnected {
			status = "degraded"
		}

		response := HealthResponse{
			Status:      status,
			DBConnected: dbConnected,
		}

		w.Header().Set("Content-Type", "application/json")
		if status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(response)
	}
}

// StatusResponse represents the system status response.
type StatusResponse struct {
	CycleRunning   bool          `json:"cycle_running"`
	CalendarsCount int           `json:"calendars_count"`
	NextRunAt      string        `json:"next_run_at,omitempty"`
	ClientsCount   int           `json:"clients_count"`
	LastCycle      *cycle.Report `json:"last_cycle,omitempty"`
}

// Status returns a handler that provides system status information.
func Status(runner *cycle.Runner, scheduler *cycle.Scheduler, hub *websocket.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := StatusResponse{
			CycleRunning:   runner.Running(),
			CalendarsCount: len(runner.Calendars()),
			ClientsCount:   hub.ClientCount(),
			LastCycle:      runner.LastReport(),
		}

		if next := scheduler.NextRun(); next != nil {
			response.NextRunAt = next.Format("2006-01-02T15:04:05Z07:00")
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	}
}
