package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/homework-notify/backend/internal/calendar"
)

func newTestStore(t *testing.T) *EntryStore {
	t.Helper()

	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := RunMigrations(db); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	return NewEntryStore(db)
}

func TestEntryStoreRoundtrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC)

	created, err := store.CreateEntry(ctx, "cal-a", calendar.Entry{
		Title:      "Math - HW1",
		Start:      &start,
		End:        &end,
		Annotation: "1,10",
	})
	if err != nil {
		t.Fatalf("CreateEntry: %v", err)
	}
	if created.ID == "" {
		t.Fatal("created entry has no id")
	}

	entries, err := store.ListEntries(ctx, "cal-a", time.Time{})
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}

	got := entries[0]
	if got.ID != created.ID || got.Title != "Math - HW1" || got.Annotation != "1,10" {
		t.Errorf("entry = %+v", got)
	}
	if got.Start == nil || !got.Start.Equal(start) {
		t.Errorf("start = %v, want %v", got.Start, start)
	}
	if got.End == nil || !got.End.Equal(end) {
		t.Errorf("end = %v, want %v", got.End, end)
	}
}

func TestEntryStoreUpdatePreservesIdentity(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC)

	created, err := store.CreateEntry(ctx, "cal-a", calendar.Entry{
		Title: "HW1", Start: &start, End: &end, Annotation: "1,10",
	})
	if err != nil {
		t.Fatalf("CreateEntry: %v", err)
	}

	newEnd := end.Add(24 * time.Hour)
	if _, err := store.UpdateEntry(ctx, "cal-a", created.ID, calendar.Entry{
		Title: "HW1 (moved)", Start: &start, End: &newEnd,
	}); err != nil {
		t.Fatalf("UpdateEntry: %v", err)
	}

	entries, err := store.ListEntries(ctx, "cal-a", time.Time{})
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	got := entries[0]
	if got.ID != created.ID {
		t.Errorf("id changed across update: %q -> %q", created.ID, got.ID)
	}
	if got.Annotation != "1,10" {
		t.Errorf("annotation = %q, want preserved", got.Annotation)
	}
	if got.End == nil || !got.End.Equal(newEnd) {
		t.Errorf("end = %v, want %v", got.End, newEnd)
	}
}

func TestEntryStoreListTimeMin(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	past := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	future := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)

	store.CreateEntry(ctx, "cal-a", calendar.Entry{Title: "elapsed", End: &past})
	store.CreateEntry(ctx, "cal-a", calendar.Entry{Title: "upcoming", End: &future})
	store.CreateEntry(ctx, "cal-a", calendar.Entry{Title: "open"})

	cutoff := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	entries, err := store.ListEntries(ctx, "cal-a", cutoff)
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2 (upcoming and open)", len(entries))
	}
	for _, e := range entries {
		if e.Title == "elapsed" {
			t.Error("elapsed entry not filtered by timeMin")
		}
	}
}

func TestEntryStoreCalendarsAreIsolated(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	store.CreateEntry(ctx, "cal-a", calendar.Entry{Title: "A"})
	store.CreateEntry(ctx, "cal-b", calendar.Entry{Title: "B"})

	entries, err := store.ListEntries(ctx, "cal-a", time.Time{})
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}
	if len(entries) != 1 || entries[0].Title != "A" {
		t.Errorf("entries = %+v, want only A", entries)
	}
}

func TestEntryStoreNotFound(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.UpdateEntry(ctx, "cal-a", "missing", calendar.Entry{Title: "x"}); !errors.Is(err, calendar.ErrNotFound) {
		t.Errorf("update err = %v, want ErrNotFound", err)
	}
	if err := store.DeleteEntry(ctx, "cal-a", "missing"); !errors.Is(err, calendar.ErrNotFound) {
		t.Errorf("delete err = %v, want ErrNotFound", err)
	}
}

func TestEntryStoreNilTimes(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created, err := store.CreateEntry(ctx, "cal-a", calendar.Entry{Title: "open"})
	if err != nil {
		t.Fatalf("CreateEntry: %v", err)
	}

	entries, err := store.ListEntries(ctx, "cal-a", time.Time{})
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	if entries[0].Start != nil || entries[0].End != nil {
		t.Errorf("times = (%v, %v), want nil", entries[0].Start, entries[0].End)
	}
	if entries[0].ID != created.ID {
		t.Errorf("id = %q, want %q", entries[0].ID, created.ID)
	}
}
