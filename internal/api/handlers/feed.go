package handlers

import (
	"fmt"
	"net/http"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/gorilla/mux"
	"github.com/homework-notify/backend/internal/api/middleware"
	"github.com/homework-notify/backend/internal/cycle"
)

// ICSFeed exports the upcoming entries of a mapped calendar as an iCal
// feed, so the activity calendar can be subscribed to from regular
// calendar clients.
func ICSFeed(runner *cycle.Runner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		if _, ok := runner.Calendars()[id]; !ok {
			middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Calendar not mapped")
			return
		}

		now := time.Now().UTC()
		entries, err := runner.Store().ListEntries(r.Context(), id, now)
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to list entries")
			return
		}

		cal := ical.NewCalendar()
		cal.SetMethod(ical.MethodPublish)
		cal.SetProductId("-//homework-notify//calendar feed//EN")

		for i, e := range entries {
			uid := e.Annotation
			if uid == "" {
				uid = e.ID
			}
			if uid == "" {
				uid = fmt.Sprintf("entry-%d", i)
			}

			ev := cal.AddEvent(uid + "@homework-notify")
			ev.SetDtStampTime(now)
			ev.SetSummary(e.Title)
			if e.Annotation != "" {
				ev.SetDescription(e.Annotation)
			}
			if e.Start != nil {
				ev.SetStartAt(*e.Start)
			}
			if e.End != nil {
				ev.SetEndAt(*e.End)
			}
		}

		w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
		w.Header().Set("Content-Disposition", "attachment; filename=\"feed.ics\"")
		fmt.Fprint(w, cal.Serialize())
	}
}
