package calendar

import (
	"context"
	"fmt"
	"log"
	"time"
)

// UnknownClassName is the display name used when a work item's group id has
// no configured name.
const UnknownClassName = "Unknown Class"

// WorkItem is an externally sourced unit of work from the activity feed.
// Identity is (GroupID, ItemID). Start or End may be nil when the activity
// is not yet scheduled upstream.
type WorkItem struct {
	GroupID int
	ItemID  int
	Title   string
	Start   *time.Time
	End     *time.Time
}

// Fingerprint returns the stable correlation key for the item, carried in
// the calendar entry's annotation.
func (w WorkItem) Fingerprint() string {
	return fmt.Sprintf("%d,%d", w.GroupID, w.ItemID)
}

// ItemAction describes what the reconciler did with one work item.
type ItemAction string

const (
	ActionCreated   ItemAction = "created"
	ActionUpdated   ItemAction = "updated"
	ActionUnchanged ItemAction = "unchanged"
	ActionSkipped   ItemAction = "skipped"
	ActionFailed    ItemAction = "failed"
)

// ItemResult is the per-item outcome of a reconcile pass.
type ItemResult struct {
	Fingerprint string
	Title       string
	Action      ItemAction
	Err         *Failure
}

// Report aggregates the outcome of one reconcile pass over a calendar.
type Report struct {
	CalendarID string
	Created    int
	Updated    int
	Unchanged  int
	Skipped    int
	Failed     int
	Items      []ItemResult
	StartedAt  time.Time
}

// Reconciler maps batches of work items onto calendar store entries
// idempotently. Group display names come from the configured id to name map.
type Reconciler struct {
	store      Store
	groupNames map[int]string
}

// NewReconciler creates a reconciler over the given store.
func NewReconciler(store Store, groupNames map[int]string) *Reconciler {
	return &Reconciler{store: store, groupNames: groupNames}
}

// Reconcile upserts each scheduled work item into the calendar. Items
// missing a start or end time are skipped, not errored. Failures are
// per-item: a failed write is logged and counted, and the loop continues.
// Running Reconcile twice with unchanged input performs zero writes on the
// second pass.
func (r *Reconciler) Reconcile(ctx context.Context, items []WorkItem, calendarID string) Report {
	report := Report{CalendarID: calendarID, StartedAt: time.Now().UTC()}

	for _, item := range items {
		result := r.reconcileItem(ctx, item, calendarID)
		report.Items = append(report.Items, result)

		switch result.Action {
		case ActionCreated:
			report.Created++
		case ActionUpdated:
			report.Updated++
		case ActionUnchanged:
			report.Unchanged++
		case ActionSkipped:
			report.Skipped++
		case ActionFailed:
			report.Failed++
			log.Printf("Reconcile failed for %s (%s): %v", result.Fingerprint, result.Title, result.Err)
		}
	}

	return report
}

// reconcileItem upserts a single work item.
func (r *Reconciler) reconcileItem(ctx context.Context, item WorkItem, calendarID string) ItemResult {
	fp := item.Fingerprint()
	title := r.displayTitle(item)
	result := ItemResult{Fingerprint: fp, Title: title}

	if item.Start == nil || item.End == nil {
		// Not yet scheduled upstream.
		result.Action = ActionSkipped
		return result
	}

	existing, err := r.findByAnnotation(ctx, calendarID, fp)
	if err != nil {
		result.Action = ActionFailed
		result.Err = NewFailure(FailureFetch, err)
		return result
	}

	if existing == nil {
		created := Entry{
			Title:      title,
			Start:      item.Start,
			End:        item.End,
			Annotation: fp,
		}
		if _, err := r.store.CreateEntry(ctx, calendarID, created); err != nil {
			result.Action = ActionFailed
			result.Err = NewFailure(FailureWrite, err)
			return result
		}
		result.Action = ActionCreated
		return result
	}

	if timesEqual(existing.Start, item.Start) && timesEqual(existing.End, item.End) {
		result.Action = ActionUnchanged
		return result
	}

	updated := *existing
	updated.Start = item.Start
	updated.End = item.End
	updated.Title = title
	if _, err := r.store.UpdateEntry(ctx, calendarID, existing.ID, updated); err != nil {
		result.Action = ActionFailed
		result.Err = NewFailure(FailureWrite, err)
		return result
	}
	result.Action = ActionUpdated
	return result
}

// findByAnnotation scans a bounded listing of the calendar for an entry
// whose annotation equals the fingerprint. The lookup is best-effort past
// MaxListResults entries.
func (r *Reconciler) findByAnnotation(ctx context.Context, calendarID, fingerprint string) (*Entry, error) {
	entries, err := r.store.ListEntries(ctx, calendarID, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("listing entries: %w", err)
	}

	for i := range entries {
		if entries[i].Annotation == fingerprint {
			return &entries[i], nil
		}
	}
	return nil, nil
}

// displayTitle renders "{class name} - {activity title}".
func (r *Reconciler) displayTitle(item WorkItem) string {
	name, ok := r.groupNames[item.GroupID]
	if !ok || name == "" {
		name = UnknownClassName
	}
	return name + " - " + item.Title
}

func timesEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
