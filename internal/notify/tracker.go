// Package notify decides which calendar entries are due for an alert,
// renders them into channel-sized messages, and delivers them while keeping
// a retraction ledger of previously sent messages.
package notify

import (
	"sort"
	"time"

	"github.com/homework-notify/backend/internal/calendar"
)

// Key identifies one suppression record: an entry under one lookahead
// window of one calendar. Distinct windows are independent namespaces, so
// an entry is alerted once per configured window, not globally once.
type Key struct {
	CalendarID  string
	Identity    string
	WindowHours int
}

// Tracker suppresses repeat notifications for entries already alerted under
// a window. State is in-memory and owned by the single active cycle; it
// resets on process restart.
type Tracker struct {
	notified map[Key]int64
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{notified: make(map[Key]int64)}
}

// SelectEligible returns the entries whose end time is in the future and
// within windowHours of now, minus any already recorded under this window.
// The result is sorted ascending by end time. Elapsed suppression records
// are garbage-collected first.
func (t *Tracker) SelectEligible(calendarID string, entries []calendar.Entry, now time.Time, windowHours int) []calendar.Entry {
	t.collect(now)

	window := time.Duration(windowHours) * time.Hour

	var eligible []calendar.Entry
	for _, e := range entries {
		if e.End == nil || !e.End.After(now) {
			continue
		}
		if e.End.Sub(now) > window {
			continue
		}
		key := Key{CalendarID: calendarID, Identity: entryIdentity(e), WindowHours: windowHours}
		if _, seen := t.notified[key]; seen {
			continue
		}
		eligible = append(eligible, e)
	}

	SortByEnd(eligible)
	return eligible
}

// MarkNotified records that the entries were delivered under this window,
// suppressing them until their end time passes. Call only after a
// successful dispatch.
func (t *Tracker) MarkNotified(calendarID string, entries []calendar.Entry, windowHours int) {
	for _, e := range entries {
		if e.End == nil {
			continue
		}
		key := Key{CalendarID: calendarID, Identity: entryIdentity(e), WindowHours: windowHours}
		t.notified[key] = e.End.Unix()
	}
}

// Len reports how many suppression records are held.
func (t *Tracker) Len() int {
	return len(t.notified)
}

// collect drops records whose stored end time has passed. Those events have
// fully elapsed, so the keys can never be relevant again.
func (t *Tracker) collect(now time.Time) {
	epoch := now.Unix()
	for key, end := range t.notified {
		if end <= epoch {
			delete(t.notified, key)
		}
	}
}

// entryIdentity prefers the stable fingerprint annotation, falling back to
// the store-assigned id for entries this system did not create.
func entryIdentity(e calendar.Entry) string {
	if e.Annotation != "" {
		return e.Annotation
	}
	return e.ID
}

// SortByEnd orders entries ascending by end time, entries with no
// resolvable end time last.
func SortByEnd(entries []calendar.Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].End, entries[j].End
		if a == nil {
			return false
		}
		if b == nil {
			return true
		}
		return a.Before(*b)
	})
}
