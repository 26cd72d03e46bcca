// Package calendar provides the calendar store abstraction and the activity
// reconciliation logic that keeps store entries in step with the LMS feed.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// MaxListResults bounds a single store listing. Annotation lookups scan at
// most this many entries; a match beyond the bound is missed. That is a
// limitation of the underlying list APIs, not of the reconciler.
const MaxListResults = 1000

// ErrNotFound is returned by stores when an entry id does not exist.
var ErrNotFound = errors.New("entry not found")

// Entry is a store-resident calendar record. The store assigns ID on create
// and keeps it stable across updates. Annotation is the only field available
// to carry application identity; once set it is never changed.
//
// Start and End are nil when the store holds no resolvable timestamp for
// them (all-day or unscheduled entries). Adapters normalize whatever shape
// the backing store uses before an Entry reaches this package.
type Entry struct {
	ID         string
	Title      string
	Start      *time.Time
	End        *time.Time
	Annotation string
}

// Store is the narrow calendar collaborator interface. Implementations are
// expected to be safe for sequential use from a single cycle; none of the
// reconciler's state survives a call.
type Store interface {
	// ListEntries returns up to MaxListResults entries of the calendar,
	// optionally restricted to entries ending at or after timeMin.
	ListEntries(ctx context.Context, calendarID string, timeMin time.Time) ([]Entry, error)

	// CreateEntry inserts the entry and returns it with the store-assigned id.
	CreateEntry(ctx context.Context, calendarID string, entry Entry) (Entry, error)

	// UpdateEntry rewrites the entry's title and time range in place,
	// preserving id and annotation.
	UpdateEntry(ctx context.Context, calendarID, id string, entry Entry) (Entry, error)

	// DeleteEntry removes an entry by id.
	DeleteEntry(ctx context.Context, calendarID, id string) error
}

// FailureKind classifies per-item and per-entry failures.
type FailureKind string

const (
	FailureFetch  FailureKind = "fetch"
	FailureWrite  FailureKind = "write"
	FailureParse  FailureKind = "parse"
	FailureConfig FailureKind = "config"
)

// Failure pairs a failure classification with its underlying error.
type Failure struct {
	Kind FailureKind
	Err  error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %v", f.Kind, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// NewFailure wraps err with a failure classification.
func NewFailure(kind FailureKind, err error) *Failure {
	return &Failure{Kind: kind, Err: err}
}

// ClearCalendar deletes every entry currently listed in the calendar and
// returns how many were removed. Per-entry delete failures are reported but
// do not abort the sweep.
func ClearCalendar(ctx context.Context, store Store, calendarID string) (int, error) {
	entries, err := store.ListEntries(ctx, calendarID, time.Time{})
	if err != nil {
		return 0, fmt.Errorf("listing entries: %w", err)
	}

	deleted := 0
	var lastErr error
	for _, e := range entries {
		if err := store.DeleteEntry(ctx, calendarID, e.ID); err != nil {
			lastErr = fmt.Errorf("deleting entry %s: %w", e.ID, err)
			continue
		}
		deleted++
	}

	return deleted, lastErr
}
