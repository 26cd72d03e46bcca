package storage

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/homework-notify/backend/internal/calendar"
)

// EntryStore is a calendar.Store backed by the local SQLite database. It
// mirrors the external calendar semantics: ids are store-assigned and
// stable across updates, listings are bounded, and the annotation column is
// the only identity-correlation field.
type EntryStore struct {
	db *DB
}

// NewEntryStore creates a store over the given database.
func NewEntryStore(db *DB) *EntryStore {
	return &EntryStore{db: db}
}

// ListEntries returns up to calendar.MaxListResults entries of the
// calendar, restricted to entries ending at or after timeMin when timeMin
// is non-zero. Entries without an end time are always included.
func (s *EntryStore) ListEntries(ctx context.Context, calendarID string, timeMin time.Time) ([]calendar.Entry, error) {
	min := ""
	if !timeMin.IsZero() {
		min = timeMin.UTC().Format(time.RFC3339)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, start_at, end_at, annotation
		FROM calendar_entries
		WHERE calendar_id = ?
		  AND (? = '' OR end_at IS NULL OR end_at >= ?)
		ORDER BY end_at ASC
		LIMIT ?
	`, calendarID, min, min, calendar.MaxListResults)
	if err != nil {
		return nil, fmt.Errorf("querying entries: %w", err)
	}
	defer rows.Close()

	var entries []calendar.Entry
	for rows.Next() {
		var (
			e        calendar.Entry
			startRaw sql.NullString
			endRaw   sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Title, &startRaw, &endRaw, &e.Annotation); err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		e.Start = parseTime(startRaw)
		e.End = parseTime(endRaw)
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// CreateEntry inserts the entry and returns it with a freshly assigned id.
func (s *EntryStore) CreateEntry(ctx context.Context, calendarID string, entry calendar.Entry) (calendar.Entry, error) {
	entry.ID = generateID()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO calendar_entries (id, calendar_id, title, start_at, end_at, annotation, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, calendarID, entry.Title, formatTime(entry.Start), formatTime(entry.End), entry.Annotation, now, now)
	if err != nil {
		return calendar.Entry{}, fmt.Errorf("inserting entry: %w", err)
	}

	return entry, nil
}

// UpdateEntry rewrites the entry's title and time range in place. The id
// and annotation are preserved.
func (s *EntryStore) UpdateEntry(ctx context.Context, calendarID, id string, entry calendar.Entry) (calendar.Entry, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE calendar_entries SET
			title = ?, start_at = ?, end_at = ?, updated_at = ?
		WHERE calendar_id = ? AND id = ?
	`, entry.Title, formatTime(entry.Start), formatTime(entry.End), time.Now().UTC(), calendarID, id)
	if err != nil {
		return calendar.Entry{}, fmt.Errorf("updating entry: %w", err)
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return calendar.Entry{}, calendar.ErrNotFound
	}

	entry.ID = id
	return entry, nil
}

// DeleteEntry removes an entry by id.
func (s *EntryStore) DeleteEntry(ctx context.Context, calendarID, id string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM calendar_entries WHERE calendar_id = ? AND id = ?
	`, calendarID, id)
	if err != nil {
		return fmt.Errorf("deleting entry: %w", err)
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return calendar.ErrNotFound
	}
	return nil
}

// generateID creates a random 128-bit hex id for a new entry.
func generateID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand only fails when the platform source is broken.
		return time.Now().UTC().Format("20060102150405.000000000")
	}
	return hex.EncodeToString(buf)
}

// formatTime renders a nullable timestamp for storage; nil stores as NULL.
func formatTime(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

// parseTime reads a nullable stored timestamp.
func parseTime(raw sql.NullString) *time.Time {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, raw.String)
	if err != nil {
		return nil
	}
	return &t
}
