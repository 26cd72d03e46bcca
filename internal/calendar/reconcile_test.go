package calendar

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

// fakeStore is an in-memory Store that counts writes.
type fakeStore struct {
	entries map[string][]Entry
	nextID  int
	creates int
	updates int
	deletes int
	lists   int

	failCreateFor string // annotation that makes CreateEntry fail
}

func newFakeStore() *fakeStore {
	return &fakeStore{entries: make(map[string][]Entry)}
}

func (s *fakeStore) ListEntries(ctx context.Context, calendarID string, timeMin time.Time) ([]Entry, error) {
	s.lists++
	var out []Entry
	for _, e := range s.entries[calendarID] {
		if !timeMin.IsZero() && e.End != nil && e.End.Before(timeMin) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *fakeStore) CreateEntry(ctx context.Context, calendarID string, entry Entry) (Entry, error) {
	if s.failCreateFor != "" && entry.Annotation == s.failCreateFor {
		return Entry{}, errors.New("store rejected the write")
	}
	s.creates++
	s.nextID++
	entry.ID = fmt.Sprintf("ev-%d", s.nextID)
	s.entries[calendarID] = append(s.entries[calendarID], entry)
	return entry, nil
}

func (s *fakeStore) UpdateEntry(ctx context.Context, calendarID, id string, entry Entry) (Entry, error) {
	for i, e := range s.entries[calendarID] {
		if e.ID == id {
			s.updates++
			entry.ID = id
			entry.Annotation = e.Annotation
			s.entries[calendarID][i] = entry
			return entry, nil
		}
	}
	return Entry{}, ErrNotFound
}

func (s *fakeStore) DeleteEntry(ctx context.Context, calendarID, id string) error {
	for i, e := range s.entries[calendarID] {
		if e.ID == id {
			s.deletes++
			s.entries[calendarID] = append(s.entries[calendarID][:i], s.entries[calendarID][i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (s *fakeStore) writes() int {
	return s.creates + s.updates + s.deletes
}

func tp(t time.Time) *time.Time {
	return &t
}

func mustParse(t *testing.T, s string) time.Time {
	t.Helper()
	parsed, err := time.Parse("2006-01-02 15:04:05", s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return parsed
}

func TestReconcileCreateThenUnchangedThenUpdated(t *testing.T) {
	store := newFakeStore()
	r := NewReconciler(store, map[int]string{1: "Math"})
	ctx := context.Background()

	item := WorkItem{
		GroupID: 1,
		ItemID:  10,
		Title:   "HW1",
		Start:   tp(mustParse(t, "2024-01-01 09:00:00")),
		End:     tp(mustParse(t, "2024-01-02 09:00:00")),
	}

	report := r.Reconcile(ctx, []WorkItem{item}, "cal-a")
	if report.Created != 1 || report.Updated != 0 || report.Unchanged != 0 {
		t.Fatalf("first pass: got %+v, want 1 created", report)
	}

	created := store.entries["cal-a"][0]
	if created.Annotation != "1,10" {
		t.Errorf("annotation = %q, want %q", created.Annotation, "1,10")
	}
	if created.Title != "Math - HW1" {
		t.Errorf("title = %q, want %q", created.Title, "Math - HW1")
	}

	// Identical input: no writes.
	before := store.writes()
	report = r.Reconcile(ctx, []WorkItem{item}, "cal-a")
	if report.Unchanged != 1 {
		t.Fatalf("second pass: got %+v, want 1 unchanged", report)
	}
	if store.writes() != before {
		t.Errorf("second pass performed %d extra writes", store.writes()-before)
	}

	// Moved due date: in-place update, same id.
	item.End = tp(mustParse(t, "2024-01-03 09:00:00"))
	report = r.Reconcile(ctx, []WorkItem{item}, "cal-a")
	if report.Updated != 1 {
		t.Fatalf("third pass: got %+v, want 1 updated", report)
	}

	updated := store.entries["cal-a"][0]
	if updated.ID != created.ID {
		t.Errorf("entry id changed across update: %q -> %q", created.ID, updated.ID)
	}
	if updated.Annotation != "1,10" {
		t.Errorf("annotation changed across update: %q", updated.Annotation)
	}
	if !updated.End.Equal(*item.End) {
		t.Errorf("end = %v, want %v", updated.End, item.End)
	}
	if len(store.entries["cal-a"]) != 1 {
		t.Errorf("entries = %d, want 1", len(store.entries["cal-a"]))
	}
}

func TestReconcileSkipsUnscheduledItems(t *testing.T) {
	store := newFakeStore()
	r := NewReconciler(store, nil)

	items := []WorkItem{
		{GroupID: 1, ItemID: 1, Title: "no times"},
		{GroupID: 1, ItemID: 2, Title: "no end", Start: tp(mustParse(t, "2024-01-01 09:00:00"))},
		{GroupID: 1, ItemID: 3, Title: "no start", End: tp(mustParse(t, "2024-01-02 09:00:00"))},
	}

	report := r.Reconcile(context.Background(), items, "cal-a")
	if report.Skipped != 3 {
		t.Errorf("skipped = %d, want 3", report.Skipped)
	}
	if store.writes() != 0 {
		t.Errorf("writes = %d, want 0", store.writes())
	}
}

func TestReconcileDistinctItemsDistinctEntries(t *testing.T) {
	store := newFakeStore()
	r := NewReconciler(store, nil)

	start := tp(mustParse(t, "2024-01-01 09:00:00"))
	end := tp(mustParse(t, "2024-01-02 09:00:00"))
	items := []WorkItem{
		{GroupID: 1, ItemID: 10, Title: "A", Start: start, End: end},
		{GroupID: 1, ItemID: 11, Title: "B", Start: start, End: end},
		{GroupID: 2, ItemID: 10, Title: "C", Start: start, End: end},
	}

	report := r.Reconcile(context.Background(), items, "cal-a")
	if report.Created != 3 {
		t.Fatalf("created = %d, want 3", report.Created)
	}

	seen := make(map[string]bool)
	for _, e := range store.entries["cal-a"] {
		if seen[e.Annotation] {
			t.Errorf("duplicate annotation %q", e.Annotation)
		}
		seen[e.Annotation] = true
	}
}

func TestReconcileUnknownClassTitle(t *testing.T) {
	store := newFakeStore()
	r := NewReconciler(store, map[int]string{1: "Math"})

	item := WorkItem{
		GroupID: 9,
		ItemID:  1,
		Title:   "Essay",
		Start:   tp(mustParse(t, "2024-01-01 09:00:00")),
		End:     tp(mustParse(t, "2024-01-02 09:00:00")),
	}
	r.Reconcile(context.Background(), []WorkItem{item}, "cal-a")

	if got := store.entries["cal-a"][0].Title; got != "Unknown Class - Essay" {
		t.Errorf("title = %q, want %q", got, "Unknown Class - Essay")
	}
}

func TestReconcileContinuesPastItemFailure(t *testing.T) {
	store := newFakeStore()
	store.failCreateFor = "1,1"
	r := NewReconciler(store, nil)

	start := tp(mustParse(t, "2024-01-01 09:00:00"))
	end := tp(mustParse(t, "2024-01-02 09:00:00"))
	items := []WorkItem{
		{GroupID: 1, ItemID: 1, Title: "bad", Start: start, End: end},
		{GroupID: 1, ItemID: 2, Title: "good", Start: start, End: end},
	}

	report := r.Reconcile(context.Background(), items, "cal-a")
	if report.Failed != 1 || report.Created != 1 {
		t.Fatalf("got %+v, want 1 failed and 1 created", report)
	}

	var failed *ItemResult
	for i := range report.Items {
		if report.Items[i].Action == ActionFailed {
			failed = &report.Items[i]
		}
	}
	if failed == nil {
		t.Fatal("no failed item result recorded")
	}
	if failed.Err == nil || failed.Err.Kind != FailureWrite {
		t.Errorf("failure kind = %+v, want write", failed.Err)
	}
}

func TestClearCalendar(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		store.CreateEntry(ctx, "cal-a", Entry{Title: fmt.Sprintf("e%d", i)})
	}

	deleted, err := ClearCalendar(ctx, store, "cal-a")
	if err != nil {
		t.Fatalf("ClearCalendar: %v", err)
	}
	if deleted != 3 {
		t.Errorf("deleted = %d, want 3", deleted)
	}
	if len(store.entries["cal-a"]) != 0 {
		t.Errorf("entries left = %d, want 0", len(store.entries["cal-a"]))
	}
}
