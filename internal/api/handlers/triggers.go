package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/homework-notify/backend/internal/api/middleware"
	"github.com/homework-notify/backend/internal/cycle"
)

// ListCalendars returns the configured calendar to channel mapping.
func ListCalendars(runner *cycle.Runner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(runner.Calendars())
	}
}

// RunCycle triggers a full reconcile-and-notify cycle now.
func RunCycle(runner *cycle.Runner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := runner.RunCycle(r.Context(), true)
		if err != nil {
			writeTriggerError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(report)
	}
}

// ReconcileCalendar triggers reconciliation for one calendar now.
func ReconcileCalendar(runner *cycle.Runner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		report, err := runner.ReconcileNow(r.Context(), id)
		if err != nil {
			writeTriggerError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"calendar_id": report.CalendarID,
			"created":     report.Created,
			"updated":     report.Updated,
			"unchanged":   report.Unchanged,
			"skipped":     report.Skipped,
			"failed":      report.Failed,
		})
	}
}

// NotifyCalendar triggers the notification half for one mapped calendar now.
func NotifyCalendar(runner *cycle.Runner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		report, err := runner.NotifyNow(r.Context(), id)
		if err != nil {
			writeTriggerError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(report)
	}
}

// ClearCalendar deletes every entry of a mapped calendar from the store.
func ClearCalendar(runner *cycle.Runner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		deleted, err := runner.ClearCalendar(r.Context(), id)
		if err != nil && deleted == 0 {
			writeTriggerError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]int{"deleted": deleted})
	}
}

// PurgeChannel deletes every ledgered message in a mapped channel.
func PurgeChannel(runner *cycle.Runner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		deleted, err := runner.RetractChannel(r.Context(), id)
		if err != nil {
			writeTriggerError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]int{"deleted": deleted})
	}
}

// writeTriggerError maps runner errors onto API responses.
func writeTriggerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, cycle.ErrCycleInFlight):
		middleware.WriteError(w, http.StatusConflict, middleware.ErrConflict, err.Error())
	case errors.Is(err, cycle.ErrNotMapped):
		middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, err.Error())
	default:
		middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, err.Error())
	}
}
